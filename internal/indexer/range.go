package indexer

import "fmt"

// BlockRange is an inclusive span of blocks fetched in one FilterLogs call.
type BlockRange struct {
	From uint64
	To   uint64
}

// Blocks is the number of blocks the range covers.
func (r BlockRange) Blocks() uint64 { return r.To - r.From + 1 }

// SplitRange cuts [from, to] into consecutive batches of at most batchSize
// blocks. The last batch takes whatever is left.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block %d is before from block %d", to, from)
	}

	ranges := make([]BlockRange, 0, (to-from)/batchSize+1)
	for start := from; ; {
		end := to
		if to-start >= batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			return ranges, nil
		}
		start = end + 1
	}
}
