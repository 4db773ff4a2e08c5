// Package aggregate rolls Swap logs up into per-controller time windows.
package aggregate

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"hotswap/internal/events"
	"hotswap/internal/indexer"
	"hotswap/internal/model"
	"hotswap/internal/storage"
)

// Sink receives closed windows. The Postgres store implements it.
type Sink interface {
	UpsertWindowStats(ctx context.Context, stats []model.WindowStats) error
}

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	// RecomputeFrom, when set, reprocesses records at or after this unix
	// time regardless of the saved state.
	RecomputeFrom uint64
	State         indexer.Checkpointer
}

// Summary counts what a run saw.
type Summary struct {
	Total   int
	Swaps   int
	Windows int
	Skipped int
	Failed  int
}

// Aggregator aggregates hotswap logs into controller window stats.
type Aggregator struct {
	cfg          Config
	sink         Sink
	logger       *zap.Logger
	accumulators map[string]*Accumulator
}

func NewAggregator(cfg Config, sink Sink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
	}
}

// Run aggregates a JSONL stream of log records.
func (a *Aggregator) Run(ctx context.Context, r io.Reader) (Summary, error) {
	var sum Summary
	if a.sink == nil {
		return sum, fmt.Errorf("sink is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return sum, fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return sum, err
	}

	batch := make([]model.WindowStats, 0, a.cfg.BatchSize)
	maxTs := startTs

	err = storage.ScanLogs(r, func(record model.LogRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		sum.Total++

		ts, ok := recordTime(record)
		if !ok {
			sum.Failed++
			a.logger.Warn("log without time", zap.String("tx_hash", record.TxHash), zap.Uint64("sequence", record.Sequence))
			return nil
		}
		if ts <= startTs {
			sum.Skipped++
			return nil
		}

		ev, err := events.Decode(record)
		if err != nil {
			sum.Failed++
			a.logger.Warn("decode log", zap.Error(err), zap.String("address", record.Address))
			return nil
		}
		swap, ok := ev.(model.SwapRecord)
		if !ok {
			sum.Skipped++
			return nil
		}

		start := windowStart(ts, a.cfg.WindowSeconds)
		key := controllerKey(record.Address)
		acc := a.accumulators[key]
		if acc != nil && acc.WindowStart != start {
			batch = append(batch, acc.Stats())
			sum.Windows++
			acc = nil
		}
		if acc == nil {
			acc = NewAccumulator(record, start, start+a.cfg.WindowSeconds)
			a.accumulators[key] = acc
		}
		acc.AddSwap(record, ts, swap)
		sum.Swaps++

		if ts > maxTs {
			maxTs = ts
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flush(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
			if err := a.saveState(ctx, a.safeTimestamp(startTs)); err != nil {
				return err
			}
		}
		return nil
	}, func(line int, err error) {
		sum.Total++
		sum.Failed++
		a.logger.Warn("malformed log line", zap.Int("line", line), zap.Error(err))
	})
	if err != nil {
		return sum, err
	}

	for _, acc := range a.accumulators {
		batch = append(batch, acc.Stats())
		sum.Windows++
	}
	a.accumulators = make(map[string]*Accumulator)

	if err := a.flush(ctx, batch); err != nil {
		return sum, err
	}
	if err := a.saveState(ctx, maxTs); err != nil {
		return sum, err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", sum.Total),
		zap.Int("swaps", sum.Swaps),
		zap.Int("windows", sum.Windows),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.State == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.State.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load aggregate state: %w", err)
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

// safeTimestamp is the latest time every record before which is already in
// a flushed window.
func (a *Aggregator) safeTimestamp(fallback uint64) uint64 {
	open := minOpenWindowStart(a.accumulators)
	if open == 0 {
		return fallback
	}
	return open - 1
}

func (a *Aggregator) saveState(ctx context.Context, ts uint64) error {
	if a.cfg.State == nil {
		return nil
	}
	if err := a.cfg.State.Save(ctx, ts); err != nil {
		return fmt.Errorf("save aggregate state: %w", err)
	}
	return nil
}

func (a *Aggregator) flush(ctx context.Context, batch []model.WindowStats) error {
	if len(batch) == 0 {
		return nil
	}
	sortStats(batch)
	if err := a.sink.UpsertWindowStats(ctx, batch); err != nil {
		return fmt.Errorf("store window stats: %w", err)
	}
	return nil
}
