package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/leapstack-labs/creditscope/internal/extract"
	"github.com/leapstack-labs/creditscope/internal/metrics"
	"github.com/leapstack-labs/creditscope/internal/registry"
	"github.com/leapstack-labs/creditscope/internal/source"
)

// SourceResult is the outcome of one (year, table) source.
type SourceResult struct {
	Source  source.Source
	Status  string
	Records []extract.Record
	// ProgramIDs parallels Records with live IDs after reconciliation.
	ProgramIDs []string
	Err        error
	Elapsed    time.Duration
}

// Label renders the source as "FY2015 table 2".
func (r SourceResult) Label() string {
	return fmt.Sprintf("FY%d table %d", r.Source.Year, r.Source.Table)
}

// Program is a resolved identity with its display department and sector.
type Program struct {
	registry.Info
	Department string `json:"department"`
	Sector     string `json:"sector"`
}

// Result is everything a run produced.
type Result struct {
	Started   time.Time
	Elapsed   time.Duration
	StartYear int
	EndYear   int
	Tables    []int
	Sources   []SourceResult
	Reconcile registry.Result
	Programs  []Program
	Registry  *registry.Registry
}

// ByStatus returns the sources with a status, in (year, table) order.
func (r *Result) ByStatus(status string) []SourceResult {
	var out []SourceResult
	for _, s := range r.Sources {
		if s.Status == status {
			out = append(out, s)
		}
	}
	return out
}

// Err joins the errors of failed sources. It is nil when nothing failed.
func (r *Result) Err() error {
	var errs []error
	for _, s := range r.ByStatus(metrics.StatusFailed) {
		errs = append(errs, fmt.Errorf("%s: %w", s.Label(), s.Err))
	}
	return errors.Join(errs...)
}

// Program looks up a program by live ID.
func (r *Result) Program(id string) (Program, bool) {
	i := sort.Search(len(r.Programs), func(i int) bool { return r.Programs[i].Seq >= seqOf(id) })
	if i < len(r.Programs) && r.Programs[i].ID == id {
		return r.Programs[i], true
	}
	return Program{}, false
}

func seqOf(id string) int {
	var n int
	_, _ = fmt.Sscanf(id, "P%d", &n)
	return n
}

func sortSources(rs []SourceResult) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Source.Year != rs[j].Source.Year {
			return rs[i].Source.Year < rs[j].Source.Year
		}
		return rs[i].Source.Table < rs[j].Source.Table
	})
}
