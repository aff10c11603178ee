// Package export hands a built dataset to downstream stores. Sinks register
// themselves by name from init() and are selected through configuration.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/leapstack-labs/creditscope/internal/dataset"
)

// Sink receives a dataset.
type Sink interface {
	// Name returns the registered name of the sink.
	Name() string

	// Open prepares the sink using the settings it needs from cfg.
	Open(ctx context.Context, cfg Config) error

	// Write stores the dataset. Writing the same dataset twice leaves the
	// destination unchanged.
	Write(ctx context.Context, ds *dataset.Dataset) error

	// Close releases any connection held by the sink.
	Close() error
}

// Config carries the settings of every sink; each sink reads its own part.
type Config struct {
	OutputDir  string
	DuckDBPath string
	Postgres   PostgresConfig
}

// PostgresConfig holds connection settings for the postgres sink. DSN wins
// over the individual fields when set.
type PostgresConfig struct {
	DSN      string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func(*slog.Logger) Sink)
)

// Register adds a sink factory to the registry.
func Register(name string, factory func(*slog.Logger) Sink) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Get retrieves a sink factory by name.
func Get(name string) (func(*slog.Logger) Sink, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// IsRegistered reports whether a sink name is known.
func IsRegistered(name string) bool {
	_, ok := Get(name)
	return ok
}

// List returns all registered sink names (sorted).
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates a sink by name. A nil logger uses a discard logger.
func New(name string, logger *slog.Logger) (Sink, error) {
	if name == "" {
		return nil, fmt.Errorf("sink name not specified")
	}
	factory, ok := Get(name)
	if !ok {
		return nil, &UnknownSinkError{Name: name, Available: List()}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return factory(logger), nil
}

// UnknownSinkError is returned when an unknown sink is requested.
type UnknownSinkError struct {
	Name      string
	Available []string
}

func (e *UnknownSinkError) Error() string {
	return fmt.Sprintf("unknown export sink %q\nAvailable sinks: %v\nHint: Check exports in creditscope.yaml", e.Name, e.Available)
}

// WriteAll opens every named sink, writes ds through it and closes it. A
// failing sink does not stop the others; all failures are returned joined.
func WriteAll(ctx context.Context, names []string, cfg Config, ds *dataset.Dataset, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var errs []error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeOne(ctx, name, cfg, ds, logger); err != nil {
			logger.Warn("export failed", "sink", name, "error", err)
			errs = append(errs, fmt.Errorf("export %s: %w", name, err))
			continue
		}
		logger.Info("exported dataset", "sink", name, "programs", len(ds.Master))
	}
	return errors.Join(errs...)
}

func writeOne(ctx context.Context, name string, cfg Config, ds *dataset.Dataset, logger *slog.Logger) error {
	sink, err := New(name, logger)
	if err != nil {
		return err
	}
	if err := sink.Open(ctx, cfg); err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()
	return sink.Write(ctx, ds)
}
