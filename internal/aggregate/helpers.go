package aggregate

import (
	"sort"
	"strings"
	"time"

	"hotswap/internal/model"
)

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func controllerKey(address string) string {
	return strings.ToLower(address)
}

// recordTime is the block timestamp, or the ingestion time for logs that
// never reached a chain.
func recordTime(record model.LogRecord) (uint64, bool) {
	if record.Timestamp > 0 {
		return record.Timestamp, true
	}
	if record.IngestedAt == "" {
		return 0, false
	}
	tm, err := time.Parse(time.RFC3339Nano, record.IngestedAt)
	if err != nil {
		return 0, false
	}
	return uint64(tm.Unix()), true
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}

func sortStats(stats []model.WindowStats) {
	sort.Slice(stats, func(i, j int) bool {
		if !stats[i].WindowStart.Equal(stats[j].WindowStart) {
			return stats[i].WindowStart.Before(stats[j].WindowStart)
		}
		return controllerKey(stats[i].Controller) < controllerKey(stats[j].Controller)
	})
}
