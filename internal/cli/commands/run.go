package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/leapstack-labs/creditscope/internal/cli/output"
	"github.com/leapstack-labs/creditscope/internal/dataset"
	"github.com/leapstack-labs/creditscope/internal/engine"
	"github.com/leapstack-labs/creditscope/internal/export"
	"github.com/leapstack-labs/creditscope/internal/metrics"
	"github.com/leapstack-labs/creditscope/internal/registry"
	"github.com/leapstack-labs/creditscope/internal/state"
	"github.com/spf13/cobra"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Fresh  bool
	Strict bool
	Watch  bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"build"},
		Short:   "Build the historical dataset from the raw workbooks",
		Long: `Extract every Federal Credit Supplement table in the configured year range,
assign stable program identities, reconcile renamed programs and write the
dataset through every configured export sink.

Identities from the previous run are loaded from the state database so that
program IDs stay stable across runs. Use --fresh to start from an empty
registry.

Sources that fail to parse are reported but do not stop the run unless
--strict is given.

With --watch the dataset is rebuilt whenever a workbook in the raw directory
or the lookups file changes, until interrupted.`,
		Example: `  # Build everything with the configured defaults
  creditscope run

  # Rebuild the last five budget years of the direct loan tables
  creditscope run --start-year 2022 --end-year 2026 --tables 1,3,5,7,9

  # Start over and also load DuckDB
  creditscope run --fresh --export json,duckdb

  # Rebuild as new workbooks are downloaded
  creditscope run --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().Int("start-year", 0, "First budget year to process")
	cmd.Flags().Int("end-year", 0, "Last budget year to process")
	cmd.Flags().IntSlice("tables", nil, "Tables to process (default: all)")
	cmd.Flags().Int("workers", 0, "Number of sources extracted concurrently")
	cmd.Flags().StringSlice("export", nil, "Export sinks to write (json|duckdb|postgres)")
	cmd.Flags().BoolVar(&opts.Fresh, "fresh", false, "Ignore identities persisted by earlier runs")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "Exit non-zero when any source fails")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Rebuild when raw workbooks or lookups change")

	_ = cmd.RegisterFlagCompletionFunc("export", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return export.List(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// RunSummary is the JSON output of the run command.
type RunSummary struct {
	RunID          string                 `json:"run_id"`
	Status         state.RunStatus        `json:"status"`
	StartYear      int                    `json:"start_year"`
	EndYear        int                    `json:"end_year"`
	Tables         []int                  `json:"tables"`
	ElapsedSeconds float64                `json:"elapsed_seconds"`
	Sources        dataset.Summary        `json:"sources"`
	Failed         []SourceFailure        `json:"failed,omitempty"`
	Reconcile      dataset.ReconcileStats `json:"reconcile"`
	Programs       int                    `json:"programs"`
	Exports        []string               `json:"exports"`
	ExportError    string                 `json:"export_error,omitempty"`
}

// SourceFailure names a source that could not be extracted.
type SourceFailure struct {
	Year  int    `json:"year"`
	Table int    `json:"table"`
	Error string `json:"error"`
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	cmdCtx := NewCommandContext(cmd)
	if opts.Watch {
		return runWatch(cmd.Context(), cmdCtx, opts)
	}
	return runBuild(cmd.Context(), cmdCtx, opts)
}

// runBuild performs one complete run: extract, reconcile, export and record.
func runBuild(ctx context.Context, cmdCtx *CommandContext, opts *RunOptions) error {
	cfg := cmdCtx.Cfg
	logger := cmdCtx.Logger
	r := cmdCtx.Renderer

	if err := cfg.ValidateRawDir(); err != nil {
		return err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var prior *registry.Snapshot
	if !opts.Fresh {
		prior, err = store.LoadRegistry()
		if err != nil {
			return fmt.Errorf("failed to load identities: %w", err)
		}
	}

	var m *metrics.Metrics
	if cfg.MetricsFile != "" {
		m = metrics.New()
	}

	eng, err := newEngine(cfg, prior, m, logger)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	run, err := store.CreateRun(cfg.StartYear, cfg.EndYear, eng.Tables())
	if err != nil {
		return err
	}

	res, err := eng.Run(ctx)
	if err != nil {
		_ = store.CompleteRun(run.ID, state.RunStatusFailed, state.RunStats{}, err.Error())
		return fmt.Errorf("run failed: %w", err)
	}

	ds := dataset.Build(res, eng.Classifier().Taxonomy())
	ds.Manifest.RunID = run.ID

	exportErr := export.WriteAll(ctx, cfg.Exports, cfg.ExportConfig(), ds, logger)

	if err := store.RecordSources(run.ID, sourceRuns(run.ID, res)); err != nil {
		return err
	}
	if err := store.SaveRegistry(run.ID, res.Registry.Snapshot(), programLabels(res)); err != nil {
		return err
	}
	if err := m.WriteFile(cfg.MetricsFile); err != nil {
		r.Warning(err.Error())
	}

	status := state.RunStatusCompleted
	errMsg := ""
	if exportErr != nil {
		status = state.RunStatusFailed
		errMsg = exportErr.Error()
	}
	stats := state.RunStats{
		ProgramsBefore: res.Reconcile.ProgramsBefore,
		ProgramsAfter:  res.Reconcile.ProgramsAfter,
		Merges:         res.Reconcile.Merges,
		Blocked:        res.Reconcile.BlockedByRates,
	}
	if err := store.CompleteRun(run.ID, status, stats, errMsg); err != nil {
		return err
	}

	summary := buildRunSummary(run.ID, status, res, ds, cfg.Exports, exportErr)
	switch r.EffectiveMode() {
	case output.ModeJSON:
		if err := r.JSON(summary); err != nil {
			return err
		}
	case output.ModeMarkdown:
		renderRunMarkdown(r, summary)
	default:
		renderRunText(r, summary)
	}

	if exportErr != nil {
		return exportErr
	}
	if opts.Strict {
		return res.Err()
	}
	return nil
}

// sourceRuns converts source results into state rows.
func sourceRuns(runID string, res *engine.Result) []state.SourceRun {
	out := make([]state.SourceRun, 0, len(res.Sources))
	for _, s := range res.Sources {
		sr := state.SourceRun{
			RunID:     runID,
			Year:      s.Source.Year,
			Table:     s.Source.Table,
			Status:    s.Status,
			Path:      s.Source.Path,
			Records:   len(s.Records),
			ElapsedMS: s.Elapsed.Milliseconds(),
		}
		if s.Err != nil {
			sr.Error = s.Err.Error()
		}
		out = append(out, sr)
	}
	return out
}

// programLabels collects the derived labels persisted with each identity.
func programLabels(res *engine.Result) map[string]state.Labels {
	labels := make(map[string]state.Labels, len(res.Programs))
	for _, p := range res.Programs {
		labels[p.ID] = state.Labels{Sector: p.Sector, Department: p.Department}
	}
	return labels
}

func buildRunSummary(runID string, status state.RunStatus, res *engine.Result, ds *dataset.Dataset, exports []string, exportErr error) *RunSummary {
	s := &RunSummary{
		RunID:          runID,
		Status:         status,
		StartYear:      res.StartYear,
		EndYear:        res.EndYear,
		Tables:         res.Tables,
		ElapsedSeconds: res.Elapsed.Seconds(),
		Sources:        ds.Manifest.Summary,
		Reconcile:      ds.Manifest.Reconcile,
		Programs:       len(ds.Master),
		Exports:        exports,
	}
	for _, f := range res.ByStatus(metrics.StatusFailed) {
		s.Failed = append(s.Failed, SourceFailure{Year: f.Source.Year, Table: f.Source.Table, Error: errString(f.Err)})
	}
	if exportErr != nil {
		s.ExportError = exportErr.Error()
	}
	return s
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func renderRunText(r *output.Renderer, s *RunSummary) {
	styles := r.Styles()

	r.Println(styles.Header1.Render("Run " + s.RunID))
	r.Printf("  Budget years %d-%d, tables %v\n", s.StartYear, s.EndYear, s.Tables)
	r.Println("")

	r.Printf("  %s %d extracted  %s %d failed  %s %d skipped\n",
		styles.StatusSuccess.String(), s.Sources.Success,
		styles.StatusFailed.String(), s.Sources.Failed,
		styles.StatusSkipped.String(), s.Sources.Skipped)
	for _, f := range s.Failed {
		r.Println(styles.Error.Render(fmt.Sprintf("    FY%d table %d: %s", f.Year, f.Table, f.Error)))
	}
	r.Println("")

	r.Printf("  Programs: %d (registered %d, merged %d, blocked by rates %d)\n",
		s.Programs, s.Reconcile.ProgramsBefore, s.Reconcile.Merges, s.Reconcile.BlockedByRates)
	r.Printf("  Exports:  %v\n", s.Exports)
	r.Muted(fmt.Sprintf("  Elapsed %s", time.Duration(s.ElapsedSeconds*float64(time.Second)).Round(time.Millisecond)))
	r.Println("")

	if s.ExportError != "" {
		r.Error(s.ExportError)
		return
	}
	if s.Sources.Failed > 0 {
		r.Warning(fmt.Sprintf("%d sources failed", s.Sources.Failed))
		return
	}
	r.Success("Run completed")
}

func renderRunMarkdown(r *output.Renderer, s *RunSummary) {
	r.Header(1, "Run "+s.RunID)
	r.Printf("Budget years %d-%d, tables %v, %s.\n\n", s.StartYear, s.EndYear, s.Tables, s.Status)

	r.Header(2, "Sources")
	r.Table([]string{"Extracted", "Failed", "Skipped"}, [][]string{{
		strconv.Itoa(s.Sources.Success), strconv.Itoa(s.Sources.Failed), strconv.Itoa(s.Sources.Skipped),
	}})
	if len(s.Failed) > 0 {
		r.Println("")
		rows := make([][]string, 0, len(s.Failed))
		for _, f := range s.Failed {
			rows = append(rows, []string{strconv.Itoa(f.Year), strconv.Itoa(f.Table), f.Error})
		}
		r.Table([]string{"Year", "Table", "Error"}, rows)
	}
	r.Println("")

	r.Header(2, "Programs")
	r.Table([]string{"Registered", "Merges", "Blocked by rates", "Final"}, [][]string{{
		strconv.Itoa(s.Reconcile.ProgramsBefore), strconv.Itoa(s.Reconcile.Merges),
		strconv.Itoa(s.Reconcile.BlockedByRates), strconv.Itoa(s.Programs),
	}})
	if s.ExportError != "" {
		r.Println("")
		r.Printf("**Export failed:** %s\n", s.ExportError)
	}
}
