package export

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/creditscope/internal/dataset"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
)

func init() {
	Register("postgres", func(l *slog.Logger) Sink { return NewPostgres(l) })
}

// PostgresSink upserts the dataset into a PostgreSQL database.
type PostgresSink struct {
	sqlSink
}

// NewPostgres creates a PostgreSQL sink. If logger is nil, a discard logger
// is used.
func NewPostgres(logger *slog.Logger) *PostgresSink {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PostgresSink{sqlSink: sqlSink{Logger: logger, numbered: true}}
}

// Name returns "postgres".
func (s *PostgresSink) Name() string { return "postgres" }

// Open connects to PostgreSQL.
func (s *PostgresSink) Open(ctx context.Context, cfg Config) error {
	dsn := buildPostgresDSN(cfg.Postgres)

	s.Logger.Debug("connecting to postgres", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	s.DB = db
	return nil
}

// Write upserts programs and replaces the observations of every source in
// the dataset.
func (s *PostgresSink) Write(ctx context.Context, ds *dataset.Dataset) error {
	return s.write(ctx, ds)
}

// buildPostgresDSN constructs a key=value connection string.
func buildPostgresDSN(cfg PostgresConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}

	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s", host, port, cfg.Database, sslmode)
	if cfg.Username != "" {
		dsn += fmt.Sprintf(" user=%s", cfg.Username)
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}
	return dsn
}
