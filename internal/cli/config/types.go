// Package config loads creditscope CLI configuration.
//
// Values come from built-in defaults, creditscope.yaml, CREDITSCOPE_*
// environment variables and command-line flags, each layer overriding the
// one before.
package config

import (
	"github.com/leapstack-labs/creditscope/internal/engine"
	"github.com/leapstack-labs/creditscope/internal/export"
)

// Config holds all CLI configuration options.
type Config struct {
	RawDir        string         `koanf:"raw_dir"`
	OutputDir     string         `koanf:"output_dir"`
	StatePath     string         `koanf:"state_path"`
	StartYear     int            `koanf:"start_year"`
	EndYear       int            `koanf:"end_year"`
	Tables        []int          `koanf:"tables"`
	Workers       int            `koanf:"workers"`
	RateTolerance float64        `koanf:"rate_tolerance"`
	LookupsFile   string         `koanf:"lookups_file"`
	Exports       []string       `koanf:"exports"`
	MetricsFile   string         `koanf:"metrics_file"`
	Verbose       bool           `koanf:"verbose"`
	OutputFormat  string         `koanf:"output"`
	Postgres      PostgresConfig `koanf:"postgres"`
	DuckDB        DuckDBConfig   `koanf:"duckdb"`

	// ProjectRoot is the directory relative paths were resolved against.
	ProjectRoot string `koanf:"-"`
}

// PostgresConfig configures the postgres export sink.
type PostgresConfig struct {
	DSN      string `koanf:"dsn"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	SSLMode  string `koanf:"sslmode"`
}

// DuckDBConfig configures the duckdb export sink.
type DuckDBConfig struct {
	Path string `koanf:"path"`
}

// Default configuration values.
const (
	DefaultRawDir        = "data/raw"
	DefaultOutputDir     = "data/processed/historical"
	DefaultStateFile     = ".creditscope/state.db"
	DefaultStartYear     = 2010
	DefaultEndYear       = 2026
	DefaultRateTolerance = 0.5
	DefaultOutput        = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)

// ConfigFileNames are searched in order in the project root.
var ConfigFileNames = []string{"creditscope.yaml", "creditscope.yml"}

// DefaultTables returns every FCS table number.
func DefaultTables() []int {
	return []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
}

// Default returns the configuration used when nothing was loaded.
func Default() *Config {
	return &Config{
		RawDir:        DefaultRawDir,
		OutputDir:     DefaultOutputDir,
		StatePath:     DefaultStateFile,
		StartYear:     DefaultStartYear,
		EndYear:       DefaultEndYear,
		Tables:        DefaultTables(),
		Workers:       engine.DefaultWorkers,
		RateTolerance: DefaultRateTolerance,
		Exports:       []string{"json"},
		OutputFormat:  DefaultOutput,
	}
}

// ExportConfig converts the sink settings for the export package.
func (c *Config) ExportConfig() export.Config {
	return export.Config{
		OutputDir:  c.OutputDir,
		DuckDBPath: c.DuckDB.Path,
		Postgres: export.PostgresConfig{
			DSN:      c.Postgres.DSN,
			Host:     c.Postgres.Host,
			Port:     c.Postgres.Port,
			Database: c.Postgres.Database,
			Username: c.Postgres.User,
			Password: c.Postgres.Password,
			SSLMode:  c.Postgres.SSLMode,
		},
	}
}
