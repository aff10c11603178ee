package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/creditscope/internal/extract"
	"github.com/leapstack-labs/creditscope/internal/metrics"
	"github.com/leapstack-labs/creditscope/internal/source"
)

// Run executes the pipeline over the configured range. Per-source failures
// do not abort the run; they are reported through Result.Err. Run only
// returns an error when ctx is cancelled or identities cannot be built.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	started := time.Now()
	e.logger.Info("starting run",
		slog.Int("start_year", e.cfg.StartYear),
		slog.Int("end_year", e.cfg.EndYear))

	found, missing := e.Discover()
	results, err := e.ExtractAll(ctx, found)
	if err != nil {
		return nil, err
	}
	for _, m := range missing {
		e.logger.Debug("source missing", slog.Int("budget_year", m.Year), slog.Int("table", m.Table))
		results = append(results, SourceResult{
			Source: source.Source{Year: m.Year, Table: m.Table, Sheet: source.SheetName(m.Table)},
			Status: metrics.StatusSkipped,
			Err:    fmt.Errorf("%s: %w", m.Reason, source.ErrNotFound),
		})
		e.cfg.Metrics.Source(metrics.StatusSkipped)
	}
	sortSources(results)

	res, err := e.build(results)
	if err != nil {
		return nil, err
	}
	res.Started = started
	res.Elapsed = time.Since(started)
	e.cfg.Metrics.Duration(res.Elapsed)

	e.logger.Info("run completed",
		slog.Int("succeeded", len(res.ByStatus(metrics.StatusSuccess))),
		slog.Int("failed", len(res.ByStatus(metrics.StatusFailed))),
		slog.Int("skipped", len(res.ByStatus(metrics.StatusSkipped))),
		slog.Int("programs", len(res.Programs)),
		slog.Duration("elapsed", res.Elapsed))
	return res, nil
}

// ExtractAll extracts sources concurrently, at most Workers at a time.
// Results keep the order of srcs whatever order workers finish in.
func (e *Engine) ExtractAll(ctx context.Context, srcs []source.Source) ([]SourceResult, error) {
	results := make([]SourceResult, len(srcs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for i, src := range srcs {
		g.Go(func() error {
			start := time.Now()
			recs, err := e.ExtractSource(gctx, src)
			r := SourceResult{Source: src, Records: recs, Err: err, Elapsed: time.Since(start)}
			switch {
			case err == nil:
				r.Status = metrics.StatusSuccess
				e.cfg.Metrics.Records(src.Table, len(recs))
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			case errors.Is(err, source.ErrNotFound):
				r.Status = metrics.StatusSkipped
			default:
				r.Status = metrics.StatusFailed
				e.logger.Warn("source failed", slog.String("source", src.String()), slog.String("error", err.Error()))
			}
			e.cfg.Metrics.Source(r.Status)
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extraction interrupted: %w", err)
	}
	return results, nil
}

// ExtractSource reads and extracts one source with the layout of its table.
func (e *Engine) ExtractSource(ctx context.Context, src source.Source) ([]extract.Record, error) {
	l, ok := e.layouts[src.Table]
	if !ok {
		return nil, fmt.Errorf("no layout for table %d", src.Table)
	}
	rows, err := source.ReadRows(ctx, src, e.logger)
	if err != nil {
		return nil, err
	}
	return extract.Extract(l, rows, extract.Options{BudgetYear: src.Year, Logger: e.logger}), nil
}
