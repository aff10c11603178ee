package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/leapstack-labs/creditscope/internal/cli/output"
	"github.com/leapstack-labs/creditscope/internal/state"
	"github.com/spf13/cobra"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show the run history",
		Long: `List recent runs recorded in the state database.

With a run ID, show that run and the outcome of each of its sources.`,
		Example: `  # Last ten runs
  creditscope runs

  # Sources of one run
  creditscope runs 5f0c9a52-2f6e-4c35-9a0b-1d6f1b2a7c11`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runShowRun(cmd, args[0])
			}
			return runListRuns(cmd, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")

	return cmd
}

// RunDetail is the JSON output for a single run.
type RunDetail struct {
	*state.Run
	Sources []state.SourceRun `json:"sources"`
}

func runListRuns(cmd *cobra.Command, limit int) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	if !statePresent(cmdCtx.Cfg) {
		r.Warning("No runs recorded yet")
		return nil
	}
	store, err := openStore(cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		if runs == nil {
			runs = []*state.Run{}
		}
		return r.JSON(runs)
	}

	r.Header(2, "Runs")
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			string(run.Status),
			run.StartedAt.Local().Format(time.DateTime),
			fmt.Sprintf("%d-%d", run.StartYear, run.EndYear),
			strconv.Itoa(run.Stats.ProgramsAfter),
			strconv.Itoa(run.Stats.Merges),
		})
	}
	r.Table([]string{"ID", "Status", "Started", "Years", "Programs", "Merges"}, rows)
	return nil
}

func runShowRun(cmd *cobra.Command, id string) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	if !statePresent(cmdCtx.Cfg) {
		return fmt.Errorf("run %s not found: no state database at %s", id, cmdCtx.Cfg.StatePath)
	}
	store, err := openStore(cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	run, err := store.GetRun(id)
	if err != nil {
		return err
	}
	sources, err := store.GetSources(id)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		if sources == nil {
			sources = []state.SourceRun{}
		}
		return r.JSON(RunDetail{Run: run, Sources: sources})
	}

	r.Header(1, "Run "+run.ID)
	r.Printf("Status: %s\n", run.Status)
	r.Printf("Budget years: %d-%d, tables %v\n", run.StartYear, run.EndYear, run.Tables)
	r.Printf("Programs: %d registered, %d merges, %d blocked, %d final\n",
		run.Stats.ProgramsBefore, run.Stats.Merges, run.Stats.Blocked, run.Stats.ProgramsAfter)
	if run.Error != "" {
		r.Printf("Error: %s\n", run.Error)
	}
	r.Println("")

	rows := make([][]string, 0, len(sources))
	for _, s := range sources {
		rows = append(rows, []string{
			strconv.Itoa(s.Year),
			strconv.Itoa(s.Table),
			s.Status,
			strconv.Itoa(s.Records),
			(time.Duration(s.ElapsedMS) * time.Millisecond).String(),
			s.Error,
		})
	}
	r.Table([]string{"Year", "Table", "Status", "Records", "Elapsed", "Error"}, rows)
	return nil
}
