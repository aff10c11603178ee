package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/creditscope/internal/cli/config"
	"github.com/leapstack-labs/creditscope/internal/cli/output"
	"github.com/leapstack-labs/creditscope/internal/engine"
	"github.com/leapstack-labs/creditscope/internal/lookups"
	"github.com/leapstack-labs/creditscope/internal/metrics"
	"github.com/leapstack-labs/creditscope/internal/registry"
	"github.com/leapstack-labs/creditscope/internal/state"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext from the loaded configuration.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration, or the defaults when the
// command runs without the root's PersistentPreRunE (tests, direct calls).
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return config.Default()
}

// openStore opens and migrates the state database, creating its directory.
// The caller must close the returned store.
func openStore(cfg *config.Config, logger *slog.Logger) (*state.SQLiteStore, error) {
	if dir := filepath.Dir(cfg.StatePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// newEngine builds an engine from the configuration.
func newEngine(cfg *config.Config, prior *registry.Snapshot, m *metrics.Metrics, logger *slog.Logger) (*engine.Engine, error) {
	tables, err := lookups.Load(cfg.LookupsFile)
	if err != nil {
		return nil, err
	}

	return engine.New(engine.Config{
		RawDir:        cfg.RawDir,
		StartYear:     cfg.StartYear,
		EndYear:       cfg.EndYear,
		Tables:        cfg.Tables,
		Workers:       cfg.Workers,
		RateTolerance: cfg.RateTolerance,
		Lookups:       tables,
		Prior:         prior,
		Metrics:       m,
		Logger:        logger,
	})
}
