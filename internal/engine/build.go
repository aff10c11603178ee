package engine

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/creditscope/internal/extract"
	"github.com/leapstack-labs/creditscope/internal/registry"
)

// Build is the identity outcome of a record set.
type Build struct {
	Registry  *registry.Registry
	Reconcile registry.Result
	Programs  []Program
	// RecordIDs parallels the input records with live program IDs.
	RecordIDs []string
}

// BuildFromRecords registers records in the given order, reconciles,
// finalizes names and classifies. Callers own the ordering; the pipeline
// passes records sorted by (year, table).
func (e *Engine) BuildFromRecords(records []extract.Record) (*Build, error) {
	reg := registry.New(registry.Config{Aliases: e.aliases, Logger: e.logger})
	if e.cfg.Prior != nil {
		if err := reg.Restore(*e.cfg.Prior); err != nil {
			return nil, fmt.Errorf("failed to restore registry: %w", err)
		}
		e.logger.Debug("registry restored", slog.Int("programs", reg.Count()))
	}

	ids := make([]string, len(records))
	rates := make(registry.Rates)
	for i, rec := range records {
		id := reg.Register(rec.Agency, rec.Bureau, rec.Account, rec.Program, rec.BudgetYear)
		ids[i] = id
		if rec.Table == 7 || rec.Table == 8 {
			addRates(rates, id, rec)
		}
	}
	e.logger.Debug("records registered",
		slog.Int("records", len(records)),
		slog.Int("programs", reg.Count()))

	rec := reg.Reconcile(rates, e.cfg.RateTolerance)
	reg.FinalizeCanonicalNames()
	e.cfg.Metrics.Reconciled(rec.ProgramsBefore, rec.ProgramsAfter, rec.Merges, rec.BlockedByRates)
	e.logger.Info("identities reconciled",
		slog.Int("programs_before", rec.ProgramsBefore),
		slog.Int("programs_after", rec.ProgramsAfter),
		slog.Int("merges", rec.Merges),
		slog.Int("blocked", rec.BlockedByRates))

	for i, id := range ids {
		live, ok := reg.ResolveID(id)
		if !ok {
			return nil, fmt.Errorf("program %s has no live identity after reconciliation", id)
		}
		ids[i] = live
	}

	return &Build{
		Registry:  reg,
		Reconcile: rec,
		Programs:  e.classify(reg.Programs()),
		RecordIDs: ids,
	}, nil
}

// addRates records the original subsidy rate of every cohort in a
// reestimate record.
func addRates(rates registry.Rates, id string, rec extract.Record) {
	for _, o := range rec.Observations {
		if o.CohortYear == 0 {
			continue
		}
		if rate, ok := o.Float(extract.FieldOriginalSubsidyRate); ok {
			rates.Add(id, o.CohortYear, rate)
		}
	}
}

func (e *Engine) classify(infos []registry.Info) []Program {
	out := make([]Program, 0, len(infos))
	for _, info := range infos {
		dept, _ := e.agencies.Normalize(info.Agency)
		out = append(out, Program{
			Info:       info,
			Department: dept,
			Sector:     e.classifier.Classify(info.Agency, info.Bureau, info.Account, info.CanonicalName),
		})
	}
	return out
}

// build flattens source results in order, builds identities and writes the
// live IDs back onto each source.
func (e *Engine) build(results []SourceResult) (*Result, error) {
	var all []extract.Record
	for _, r := range results {
		all = append(all, r.Records...)
	}
	b, err := e.BuildFromRecords(all)
	if err != nil {
		return nil, err
	}
	off := 0
	for i := range results {
		n := len(results[i].Records)
		results[i].ProgramIDs = b.RecordIDs[off : off+n : off+n]
		off += n
	}
	return &Result{
		StartYear: e.cfg.StartYear,
		EndYear:   e.cfg.EndYear,
		Tables:    e.Tables(),
		Sources:   results,
		Reconcile: b.Reconcile,
		Programs:  b.Programs,
		Registry:  b.Registry,
	}, nil
}
