// Package engine runs the FCS pipeline: discover sources, extract them
// concurrently, register every record in (year, table) order, reconcile
// identities and classify the surviving programs.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/creditscope/internal/agency"
	"github.com/leapstack-labs/creditscope/internal/extract"
	"github.com/leapstack-labs/creditscope/internal/identity"
	"github.com/leapstack-labs/creditscope/internal/lookups"
	"github.com/leapstack-labs/creditscope/internal/metrics"
	"github.com/leapstack-labs/creditscope/internal/registry"
	"github.com/leapstack-labs/creditscope/internal/sector"
	"github.com/leapstack-labs/creditscope/internal/source"
)

// DefaultWorkers bounds concurrent extraction when Config.Workers is unset.
const DefaultWorkers = 4

// Engine holds the lookup-derived state shared by every run.
type Engine struct {
	cfg        Config
	logger     *slog.Logger
	layouts    map[int]*extract.Layout
	aliases    *identity.Aliases
	classifier *sector.Classifier
	agencies   *agency.Normalizer
}

// Config holds engine configuration.
type Config struct {
	// RawDir holds the downloaded FCS workbooks.
	RawDir    string
	StartYear int
	EndYear   int
	// Tables to process; empty means all ten.
	Tables  []int
	Workers int
	// RateTolerance is the subsidy-rate difference in percentage points
	// above which reconciliation refuses a merge.
	RateTolerance float64
	// Lookups defaults to the embedded tables.
	Lookups *lookups.Tables
	// Prior seeds the registry so IDs from an earlier run are reused.
	Prior   *registry.Snapshot
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// New validates cfg and prepares layouts, aliases and classifiers.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Lookups == nil {
		cfg.Lookups = lookups.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.RateTolerance < 0 {
		return nil, fmt.Errorf("rate tolerance must not be negative, got %v", cfg.RateTolerance)
	}
	if cfg.StartYear != 0 && cfg.EndYear < cfg.StartYear {
		return nil, fmt.Errorf("end year %d is before start year %d", cfg.EndYear, cfg.StartYear)
	}

	layouts := extract.Layouts(cfg.Lookups.Bureaus)
	if len(cfg.Tables) == 0 {
		cfg.Tables = extract.Tables(layouts)
	}
	for _, t := range cfg.Tables {
		if _, ok := layouts[t]; !ok {
			return nil, fmt.Errorf("unknown table %d", t)
		}
	}

	logger.Debug("initializing engine",
		slog.String("raw_dir", cfg.RawDir),
		slog.Int("start_year", cfg.StartYear),
		slog.Int("end_year", cfg.EndYear),
		slog.Any("tables", cfg.Tables),
		slog.Int("workers", cfg.Workers))

	return &Engine{
		cfg:        cfg,
		logger:     logger,
		layouts:    layouts,
		aliases:    identity.NewAliases(cfg.Lookups.Aliases),
		classifier: sector.New(cfg.Lookups),
		agencies:   agency.New(cfg.Lookups.Agencies),
	}, nil
}

// Layout returns the layout of a table.
func (e *Engine) Layout(table int) (*extract.Layout, bool) {
	l, ok := e.layouts[table]
	return l, ok
}

// Tables returns the tables this engine processes.
func (e *Engine) Tables() []int {
	return append([]int(nil), e.cfg.Tables...)
}

// Classifier returns the sector classifier.
func (e *Engine) Classifier() *sector.Classifier {
	return e.classifier
}

// Discover resolves the configured year and table range.
func (e *Engine) Discover() ([]source.Source, []source.Missing) {
	return source.Discover(e.cfg.RawDir, source.Years(e.cfg.StartYear, e.cfg.EndYear), e.cfg.Tables)
}
