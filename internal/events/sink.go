package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"hotswap/internal/model"
	"hotswap/internal/storage"
)

// LogSink encodes emitted events as log records and buffers them until Flush
// hands them to storage.
type LogSink struct {
	chainID uint64
	store   storage.Storage
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	seq     uint64
	pending []model.LogRecord
}

func NewLogSink(store storage.Storage, chainID uint64, logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{chainID: chainID, store: store, logger: logger, now: time.Now}
}

func (s *LogSink) Emit(e model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := ToRecord(e, s.chainID, s.seq, s.now())
	if err != nil {
		s.logger.Warn("encode event", zap.String("event", e.EventName()), zap.Error(err))
		return
	}
	s.seq++
	s.pending = append(s.pending, rec)
}

// Pending returns the number of records not yet flushed.
func (s *LogSink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush writes buffered records. On failure they stay buffered.
func (s *LogSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	if err := s.store.PutLogBatch(ctx, batch); err != nil {
		s.mu.Lock()
		s.pending = append(batch, s.pending...)
		s.mu.Unlock()
		return err
	}
	s.logger.Debug("flushed event logs", zap.Int("logs", len(batch)))
	return nil
}
