package export

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/creditscope/internal/dataset"
)

func init() {
	Register("json", func(l *slog.Logger) Sink { return NewJSON(l) })
}

// JSONSink writes the dataset documents into the output directory.
type JSONSink struct {
	dir    string
	logger *slog.Logger
}

// NewJSON creates a JSON sink. If logger is nil, a discard logger is used.
func NewJSON(logger *slog.Logger) *JSONSink {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &JSONSink{logger: logger}
}

// Name returns "json".
func (s *JSONSink) Name() string { return "json" }

// Open records the output directory.
func (s *JSONSink) Open(_ context.Context, cfg Config) error {
	if cfg.OutputDir == "" {
		return fmt.Errorf("output directory not configured")
	}
	s.dir = cfg.OutputDir
	return nil
}

// Write stores the dataset documents.
func (s *JSONSink) Write(ctx context.Context, ds *dataset.Dataset) error {
	if s.dir == "" {
		return fmt.Errorf("sink not opened")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Debug("writing dataset", "dir", s.dir, "sources", len(ds.Sources))
	return dataset.Write(s.dir, ds)
}

// Close is a no-op.
func (s *JSONSink) Close() error { return nil }
