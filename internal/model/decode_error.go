package model

// DecodeError is written to the errors JSONL for a log that matched the
// hotswap filter but did not decode, or for an input line that was not a
// log record at all. Line is set only in the second case.
type DecodeError struct {
	ChainID     uint64 `json:"chain_id"`
	Sequence    uint64 `json:"sequence,omitempty"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	Topic0      string `json:"topic0"`
	Line        int    `json:"line,omitempty"`
	Error       string `json:"error"`
}
