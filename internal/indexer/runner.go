package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"hotswap/internal/events"
	"hotswap/internal/model"
	"hotswap/internal/storage"
)

// LogSource is the chain surface the runner reads from. *chain.Client
// satisfies it.
type LogSource interface {
	ChainID(ctx context.Context) (uint64, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	FromBlock    uint64
	ToBlock      uint64
	Addresses    []common.Address
	Topic0       []common.Hash
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
}

// Runner streams hotswap logs from the chain and writes them to storage.
type Runner struct {
	cfg        RunConfig
	source     LogSource
	storage    storage.Storage
	checkpoint Checkpointer
	logger     *zap.Logger
	retry      retryPolicy
	seen       map[string]struct{}

	// OnDecodeError receives logs that matched the filter but did not decode
	// as a hotswap event. They are still stored, unnamed.
	OnDecodeError func(model.DecodeError)
}

// NewRunner builds a Runner. checkpoint may be nil to disable resuming.
func NewRunner(cfg RunConfig, source LogSource, sink storage.Storage, checkpoint Checkpointer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		source:     source,
		storage:    sink,
		checkpoint: checkpoint,
		logger:     logger,
		retry:      newRetryPolicy(cfg.MaxRetries, cfg.RetryBackoff, logger),
		seen:       make(map[string]struct{}),
	}
}

// Run executes the indexing loop and returns the last processed block.
func (r *Runner) Run(ctx context.Context) (uint64, error) {
	if r.source == nil {
		return 0, fmt.Errorf("chain client is nil")
	}
	if r.storage == nil {
		return 0, fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return 0, fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Addresses) == 0 {
		return 0, fmt.Errorf("at least one address is required")
	}
	topics := r.cfg.Topic0
	if len(topics) == 0 {
		var err error
		if topics, err = events.Topic0s(); err != nil {
			return 0, err
		}
	}

	chainID, err := r.source.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("get chain id: %w", err)
	}

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := r.source.LatestBlockNumber(ctx)
		if err != nil {
			return 0, fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	if r.checkpoint != nil {
		last, ok, err := r.checkpoint.Load(ctx)
		if err != nil {
			return 0, fmt.Errorf("load checkpoint: %w", err)
		}
		if ok && last >= from {
			from = last + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", from))
		}
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return to, nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	var processed uint64
	if from > 0 {
		processed = from - 1
	}
	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return processed, ctx.Err()
		default:
		}

		r.logger.Debug("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		logs, err := r.filterLogsWithRetry(ctx, blockRange, topics)
		if err != nil {
			return processed, fmt.Errorf("filter logs: %w", err)
		}

		ingestedAt := time.Now().UTC()
		records := make([]model.LogRecord, 0, len(logs))
		for _, log := range logs {
			if r.isDuplicate(log) {
				continue
			}

			ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
			if err != nil {
				return processed, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			rec, decodeErr := nameRecord(buildLogRecord(chainID, log, ts, ingestedAt))
			if decodeErr != nil {
				r.logger.Warn("undecodable log", zap.String("tx_hash", decodeErr.TxHash), zap.Uint64("log_index", decodeErr.LogIndex), zap.String("error", decodeErr.Error))
				if r.OnDecodeError != nil {
					r.OnDecodeError(*decodeErr)
				}
			}
			records = append(records, rec)
		}

		if err := r.storage.PutLogBatch(ctx, records); err != nil {
			return processed, fmt.Errorf("store logs: %w", err)
		}

		if r.checkpoint != nil {
			if err := r.checkpoint.Save(ctx, blockRange.To); err != nil {
				return processed, fmt.Errorf("save checkpoint: %w", err)
			}
		}
		processed = blockRange.To

		r.logger.Info("batch complete", zap.Int("logs", len(records)), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To), zap.Uint64("blocks", blockRange.Blocks()))
	}

	return processed, nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, blockRange BlockRange, topics []common.Hash) ([]types.Log, error) {
	var logs []types.Log
	err := r.retry.do(ctx, "filter logs", func(ctx context.Context) error {
		var err error
		logs, err = r.source.FilterLogs(ctx, blockRange.From, blockRange.To, r.cfg.Addresses, topics)
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := r.retry.do(ctx, fmt.Sprintf("block %d timestamp", blockNumber), func(ctx context.Context) error {
		var err error
		ts, err = r.source.BlockTimestamp(ctx, blockNumber)
		return err
	})
	return ts, err
}

func (r *Runner) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}
