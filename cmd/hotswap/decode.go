package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hotswap/internal/config"
	"hotswap/internal/events"
	"hotswap/internal/indexer"
	"hotswap/internal/model"
	"hotswap/internal/storage"
)

// typedEvent is one decoded log as written by `hotswap decode`.
type typedEvent struct {
	ChainID     uint64      `json:"chain_id"`
	Sequence    uint64      `json:"sequence,omitempty"`
	BlockNumber uint64      `json:"block_number,omitempty"`
	TxHash      string      `json:"tx_hash,omitempty"`
	LogIndex    uint64      `json:"log_index"`
	Address     string      `json:"address"`
	EventName   string      `json:"event_name"`
	Event       model.Event `json:"event"`
}

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}
	if cfg.Errors == "" {
		return fmt.Errorf("errors path is required")
	}

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	outWriter, err := storage.OpenJSONL(cfg.Out, false)
	if err != nil {
		return err
	}
	defer outWriter.Close()

	errWriter, err := storage.OpenJSONL(cfg.Errors, false)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	logger.Info("decode start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
	)

	var total, decoded, failed int
	writeFailure := func(d model.DecodeError) {
		failed++
		if err := errWriter.Write(d); err != nil {
			logger.Warn("write decode error failed", zap.Error(err))
		}
	}

	err = storage.ScanLogs(inputFile, func(record model.LogRecord) error {
		total++
		ev, err := events.Decode(record)
		if err != nil {
			writeFailure(*indexer.DecodeErrorFromRecord(record, err))
			return nil
		}
		if err := outWriter.Write(typedEvent{
			ChainID:     record.ChainID,
			Sequence:    record.Sequence,
			BlockNumber: record.BlockNumber,
			TxHash:      record.TxHash,
			LogIndex:    record.LogIndex,
			Address:     record.Address,
			EventName:   ev.EventName(),
			Event:       ev,
		}); err != nil {
			return err
		}
		decoded++
		return nil
	}, func(line int, err error) {
		total++
		writeFailure(model.DecodeError{Line: line, Error: err.Error()})
	})
	if err != nil {
		return err
	}

	logger.Info("decode complete",
		zap.Int("total", total),
		zap.Int("decoded", decoded),
		zap.Int("failed", failed),
	)
	return nil
}
