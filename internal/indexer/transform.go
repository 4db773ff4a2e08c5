package indexer

import (
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"hotswap/internal/events"
	"hotswap/internal/model"
)

func buildLogRecord(chainID uint64, log types.Log, timestamp uint64, ingestedAt time.Time) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
		Timestamp:   timestamp,
		IngestedAt:  ingestedAt.UTC().Format(time.RFC3339Nano),
	}
}

// nameRecord decodes rec to fill EventName. A record that does not decode
// is returned unnamed together with the decode error.
func nameRecord(rec model.LogRecord) (model.LogRecord, *model.DecodeError) {
	ev, err := events.Decode(rec)
	if err != nil {
		return rec, DecodeErrorFromRecord(rec, err)
	}
	rec.EventName = ev.EventName()
	return rec, nil
}

// DecodeErrorFromRecord describes why record could not be decoded.
func DecodeErrorFromRecord(record model.LogRecord, err error) *model.DecodeError {
	topic0 := ""
	if len(record.Topics) > 0 {
		topic0 = record.Topics[0]
	}
	return &model.DecodeError{
		ChainID:     record.ChainID,
		Sequence:    record.Sequence,
		BlockNumber: record.BlockNumber,
		TxHash:      record.TxHash,
		LogIndex:    record.LogIndex,
		Address:     record.Address,
		Topic0:      topic0,
		Error:       err.Error(),
	}
}
