package export

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/creditscope/internal/dataset"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

func init() {
	Register("duckdb", func(l *slog.Logger) Sink { return NewDuckDB(l) })
}

// DuckDBSink loads the dataset into a DuckDB database file for analysis.
type DuckDBSink struct {
	sqlSink
}

// NewDuckDB creates a DuckDB sink. If logger is nil, a discard logger is used.
func NewDuckDB(logger *slog.Logger) *DuckDBSink {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DuckDBSink{sqlSink: sqlSink{Logger: logger}}
}

// Name returns "duckdb".
func (s *DuckDBSink) Name() string { return "duckdb" }

// Open connects to the database at cfg.DuckDBPath. An empty path opens an
// in-memory database.
func (s *DuckDBSink) Open(ctx context.Context, cfg Config) error {
	path := cfg.DuckDBPath
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create duckdb directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	s.Logger.Debug("connected to duckdb", "path", path)
	s.DB = db
	return nil
}

// Write loads the dataset.
func (s *DuckDBSink) Write(ctx context.Context, ds *dataset.Dataset) error {
	return s.write(ctx, ds)
}
