package model

import (
	"encoding/json"
)

// LogRecord is an EVM-style log carrying one ABI-encoded event. Records
// produced by the in-process engine use Sequence for ordering and leave the
// block fields zero; records pulled from a chain carry both.
type LogRecord struct {
	ChainID     uint64   `json:"chain_id"`
	Sequence    uint64   `json:"sequence"`
	BlockNumber uint64   `json:"block_number,omitempty"`
	BlockHash   string   `json:"block_hash,omitempty"`
	TxHash      string   `json:"tx_hash,omitempty"`
	LogIndex    uint64   `json:"log_index"`
	Address     string   `json:"address"`
	EventName   string   `json:"event_name"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	Removed     bool     `json:"removed,omitempty"`
	Timestamp   uint64   `json:"timestamp,omitempty"`
	IngestedAt  string   `json:"ingested_at"`
}

// MarshalJSON ensures LogRecord is encoded with stable field names.
func (lr LogRecord) MarshalJSON() ([]byte, error) {
	type Alias LogRecord
	return json.Marshal(Alias(lr))
}

// UnmarshalJSON decodes a LogRecord from JSON.
func (lr *LogRecord) UnmarshalJSON(data []byte) error {
	type Alias LogRecord
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*lr = LogRecord(a)
	return nil
}
