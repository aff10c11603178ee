// Package state persists run history and program identities in SQLite so
// later runs reuse program IDs.
package state

import (
	"errors"
	"time"

	"github.com/leapstack-labs/creditscope/internal/registry"
)

// ErrRunNotFound is returned for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one pipeline execution.
type Run struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	StartYear   int        `json:"start_year"`
	EndYear     int        `json:"end_year"`
	Tables      []int      `json:"tables"`
	Stats       RunStats   `json:"stats"`
	Error       string     `json:"error,omitempty"`
}

// RunStats is the reconciliation summary of a run.
type RunStats struct {
	ProgramsBefore int `json:"programs_before"`
	ProgramsAfter  int `json:"programs_after"`
	Merges         int `json:"merges"`
	Blocked        int `json:"blocked"`
}

// SourceRun is the outcome of one source within a run.
type SourceRun struct {
	RunID     string `json:"run_id"`
	Year      int    `json:"year"`
	Table     int    `json:"table"`
	Status    string `json:"status"`
	Path      string `json:"path,omitempty"`
	Records   int    `json:"records"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// Labels are the derived attributes stored alongside an identity.
type Labels struct {
	Sector     string
	Department string
}

// Program is a persisted identity with its labels.
type Program struct {
	registry.Info
	Sector     string `json:"sector"`
	Department string `json:"department"`
	RunID      string `json:"run_id,omitempty"`
}

// Store is the persistence interface used by the CLI.
type Store interface {
	Open(path string) error
	Close() error
	Migrate() error

	CreateRun(startYear, endYear int, tables []int) (*Run, error)
	CompleteRun(id string, status RunStatus, stats RunStats, errMsg string) error
	GetRun(id string) (*Run, error)
	GetLatestRun() (*Run, error)
	ListRuns(limit int) ([]*Run, error)
	RecordSources(runID string, sources []SourceRun) error
	GetSources(runID string) ([]SourceRun, error)

	SaveRegistry(runID string, snap registry.Snapshot, labels map[string]Labels) error
	LoadRegistry() (*registry.Snapshot, error)
	ListPrograms() ([]Program, error)
}
