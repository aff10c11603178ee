package commands

import (
	"fmt"
	"strconv"

	"github.com/leapstack-labs/creditscope/internal/cli/output"
	"github.com/leapstack-labs/creditscope/internal/source"
	"github.com/spf13/cobra"
)

// NewSourcesCommand creates the sources command.
func NewSourcesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Show which workbooks are available per budget year and table",
		Long: `Scan the raw directory and print a budget year by table coverage matrix.

Each cell shows the format of the file that would be extracted (xlsx, xls or
csv); consolidated workbooks holding every table are marked with *. A dash
means the run command will skip the source and ? marks a file whose format
could not be identified.`,
		Example: `  # Coverage of the configured year range
  creditscope sources

  # Only the most recent budgets
  creditscope sources --start-year 2020`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSources(cmd)
		},
	}

	cmd.Flags().Int("start-year", 0, "First budget year to scan")
	cmd.Flags().Int("end-year", 0, "Last budget year to scan")

	return cmd
}

// SourcesOutput is the JSON output of the sources command.
type SourcesOutput struct {
	RawDir  string           `json:"raw_dir"`
	Found   []source.Source  `json:"found"`
	Missing []source.Missing `json:"missing"`
}

func runSources(cmd *cobra.Command) error {
	cmdCtx := NewCommandContext(cmd)
	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer

	if err := cfg.ValidateRawDir(); err != nil {
		return err
	}

	years := source.Years(cfg.StartYear, cfg.EndYear)
	found, missing := source.Discover(cfg.RawDir, years, cfg.Tables)
	cmdCtx.Logger.Debug("discovered sources", "found", len(found), "missing", len(missing))

	if r.EffectiveMode() == output.ModeJSON {
		if found == nil {
			found = []source.Source{}
		}
		if missing == nil {
			missing = []source.Missing{}
		}
		return r.JSON(SourcesOutput{RawDir: cfg.RawDir, Found: found, Missing: missing})
	}

	headers, rows := coverageMatrix(years, cfg.Tables, found)
	r.Header(2, "Sources in "+cfg.RawDir)
	r.Table(headers, rows)
	r.Println("")
	r.Muted(fmt.Sprintf("%d found, %d missing", len(found), len(missing)))
	return nil
}

// coverageMatrix lays out discovered sources with one row per year and one
// column per table.
func coverageMatrix(years, tables []int, found []source.Source) ([]string, [][]string) {
	type key struct{ year, table int }
	byKey := make(map[key]source.Source, len(found))
	for _, s := range found {
		byKey[key{s.Year, s.Table}] = s
	}

	headers := make([]string, 0, len(tables)+1)
	headers = append(headers, "Year")
	for _, t := range tables {
		headers = append(headers, "T"+strconv.Itoa(t))
	}

	rows := make([][]string, 0, len(years))
	for _, y := range years {
		row := make([]string, 0, len(tables)+1)
		row = append(row, strconv.Itoa(y))
		for _, t := range tables {
			s, ok := byKey[key{y, t}]
			switch {
			case !ok:
				row = append(row, "-")
			case s.Format == "":
				row = append(row, "?")
			case s.Consolidated:
				row = append(row, string(s.Format)+"*")
			default:
				row = append(row, string(s.Format))
			}
		}
		rows = append(rows, row)
	}
	return headers, rows
}
