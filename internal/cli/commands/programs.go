package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/leapstack-labs/creditscope/internal/cli/config"
	"github.com/leapstack-labs/creditscope/internal/cli/output"
	"github.com/leapstack-labs/creditscope/internal/dataset"
	"github.com/spf13/cobra"
)

// ProgramsOptions holds options for the programs command.
type ProgramsOptions struct {
	Sector string
	Agency string
}

// NewProgramsCommand creates the programs command.
func NewProgramsCommand() *cobra.Command {
	opts := &ProgramsOptions{}

	cmd := &cobra.Command{
		Use:     "programs",
		Aliases: []string{"ls"},
		Short:   "List program identities",
		Long: `List the programs known from the last run.

Programs are read from the state database. When no run has been recorded
there, the programs master in the output directory is used instead.
--agency matches the raw agency label or the normalized department,
ignoring case.`,
		Example: `  # Every program
  creditscope programs

  # Housing programs of one department
  creditscope programs --sector housing --agency agriculture

  # Machine-readable
  creditscope programs -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPrograms(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Sector, "sector", "", "Only programs in this sector")
	cmd.Flags().StringVar(&opts.Agency, "agency", "", "Only programs whose agency or department contains this text")

	return cmd
}

// ProgramRow is one program in the programs output.
type ProgramRow struct {
	ProgramID     string `json:"program_id"`
	CanonicalName string `json:"canonical_name"`
	Agency        string `json:"agency"`
	Department    string `json:"department"`
	Sector        string `json:"sector"`
	FirstYear     int    `json:"first_year,omitempty"`
	LastYear      int    `json:"last_year,omitempty"`
	Years         int    `json:"years"`
}

func runPrograms(cmd *cobra.Command, opts *ProgramsOptions) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	rows, from, err := loadProgramRows(cmdCtx)
	if err != nil {
		return err
	}
	rows = filterPrograms(rows, opts)
	cmdCtx.Logger.Debug("listing programs", "source", from, "programs", len(rows))

	switch r.EffectiveMode() {
	case output.ModeJSON:
		if rows == nil {
			rows = []ProgramRow{}
		}
		return r.JSON(rows)
	case output.ModeMarkdown:
		r.Header(2, fmt.Sprintf("Programs (%d)", len(rows)))
	default:
		r.Println(r.Styles().Header2.Render(fmt.Sprintf("Programs (%d)", len(rows))))
	}

	table := make([][]string, 0, len(rows))
	for _, p := range rows {
		table = append(table, []string{
			p.ProgramID,
			p.CanonicalName,
			p.Department,
			p.Sector,
			yearRange(p.FirstYear, p.LastYear),
		})
	}
	r.Table([]string{"ID", "Program", "Department", "Sector", "Years"}, table)
	return nil
}

// loadProgramRows reads programs from the state database, falling back to
// the programs master. It reports which one was used.
func loadProgramRows(cmdCtx *CommandContext) ([]ProgramRow, string, error) {
	cfg := cmdCtx.Cfg
	if statePresent(cfg) {
		rows, err := programsFromState(cmdCtx)
		if err != nil {
			return nil, "", err
		}
		if len(rows) > 0 {
			return rows, "state", nil
		}
	}

	ds, err := dataset.Load(cfg.OutputDir)
	if err != nil {
		return nil, "", fmt.Errorf("no programs found: %w\nHint: Run 'creditscope run' first", err)
	}
	entries := ds.Programs()
	rows := make([]ProgramRow, 0, len(entries))
	for _, m := range entries {
		first, last := span(m.BudgetYearsSeen)
		rows = append(rows, ProgramRow{
			ProgramID:     m.ProgramID,
			CanonicalName: m.CanonicalName,
			Agency:        m.Agency,
			Department:    m.Department,
			Sector:        m.Sector,
			FirstYear:     first,
			LastYear:      last,
			Years:         len(m.BudgetYearsSeen),
		})
	}
	return rows, "output", nil
}

func programsFromState(cmdCtx *CommandContext) ([]ProgramRow, error) {
	store, err := openStore(cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	programs, err := store.ListPrograms()
	if err != nil {
		return nil, err
	}
	rows := make([]ProgramRow, 0, len(programs))
	for _, p := range programs {
		first, last := span(p.BudgetYearsSeen)
		rows = append(rows, ProgramRow{
			ProgramID:     p.ID,
			CanonicalName: p.CanonicalName,
			Agency:        p.Agency,
			Department:    p.Department,
			Sector:        p.Sector,
			FirstYear:     first,
			LastYear:      last,
			Years:         len(p.BudgetYearsSeen),
		})
	}
	return rows, nil
}

func filterPrograms(rows []ProgramRow, opts *ProgramsOptions) []ProgramRow {
	if opts.Sector == "" && opts.Agency == "" {
		return rows
	}
	agency := strings.ToLower(opts.Agency)
	var out []ProgramRow
	for _, p := range rows {
		if opts.Sector != "" && !strings.EqualFold(p.Sector, opts.Sector) {
			continue
		}
		if agency != "" &&
			!strings.Contains(strings.ToLower(p.Agency), agency) &&
			!strings.Contains(strings.ToLower(p.Department), agency) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// span returns the smallest and largest year of a sorted or unsorted list.
func span(years []int) (first, last int) {
	for i, y := range years {
		if i == 0 || y < first {
			first = y
		}
		if y > last {
			last = y
		}
	}
	return first, last
}

func yearRange(first, last int) string {
	switch {
	case first == 0:
		return "-"
	case first == last:
		return strconv.Itoa(first)
	default:
		return fmt.Sprintf("%d-%d", first, last)
	}
}

// statePresent reports whether a state database exists for cfg.
func statePresent(cfg *config.Config) bool {
	_, err := os.Stat(cfg.StatePath)
	return err == nil
}
