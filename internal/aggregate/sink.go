package aggregate

import (
	"context"

	"hotswap/internal/model"
	"hotswap/internal/storage"
)

// JSONLSink appends window stats to a JSONL file.
type JSONLSink struct {
	w *storage.JSONLWriter
}

func NewJSONLSink(w *storage.JSONLWriter) *JSONLSink {
	return &JSONLSink{w: w}
}

func (s *JSONLSink) UpsertWindowStats(ctx context.Context, stats []model.WindowStats) error {
	for _, st := range stats {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.w.Write(st); err != nil {
			return err
		}
	}
	return nil
}
