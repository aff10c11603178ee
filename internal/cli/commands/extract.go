package commands

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/leapstack-labs/creditscope/internal/cli/output"
	"github.com/leapstack-labs/creditscope/internal/extract"
	"github.com/leapstack-labs/creditscope/internal/source"
	"github.com/spf13/cobra"
)

// ExtractOptions holds options for the extract command.
type ExtractOptions struct {
	Year    int
	Table   int
	File    string
	Summary bool
}

// NewExtractCommand creates the extract command.
func NewExtractCommand() *cobra.Command {
	opts := &ExtractOptions{}

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract one source and print its records",
		Long: `Extract a single (budget year, table) source and print the records as JSON.

The source is resolved in the raw directory the same way the run command
resolves it. Use --file to extract a workbook or CSV at any path instead.
Identities are not assigned; the output is the raw extraction result.`,
		Example: `  # Extract FY2015 Table 2 from the raw directory
  creditscope extract --year 2015 --table 2

  # Extract a file somewhere else
  creditscope extract --year 2020 --table 8 --file ~/Downloads/BUDGET-2020-FCS.xlsx

  # Show a per-program overview instead of JSON
  creditscope extract --year 2015 --table 1 --summary`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExtract(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Year, "year", 0, "Budget year of the source")
	cmd.Flags().IntVar(&opts.Table, "table", 0, "Table number (1-10)")
	cmd.Flags().StringVar(&opts.File, "file", "", "Extract this file instead of resolving one in the raw directory")
	cmd.Flags().BoolVar(&opts.Summary, "summary", false, "Print a table of programs instead of JSON")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("table")

	return cmd
}

func runExtract(cmd *cobra.Command, opts *ExtractOptions) error {
	cmdCtx := NewCommandContext(cmd)
	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer

	if opts.Table < 1 || opts.Table > 10 {
		return fmt.Errorf("table %d is out of range 1-10", opts.Table)
	}

	eng, err := newEngine(cfg, nil, nil, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	src, err := resolveSource(cfg.RawDir, opts)
	if err != nil {
		return err
	}

	records, err := eng.ExtractSource(cmd.Context(), src)
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", src, err)
	}
	cmdCtx.Logger.Debug("extracted source", "source", src.String(), "records", len(records))

	if opts.Summary {
		renderExtractSummary(r, src, records)
		return nil
	}

	if records == nil {
		records = []extract.Record{}
	}
	enc := json.NewEncoder(r.Writer())
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// resolveSource builds the source for an explicit file or looks one up in rawDir.
func resolveSource(rawDir string, opts *ExtractOptions) (source.Source, error) {
	if opts.File == "" {
		return source.Resolve(rawDir, opts.Year, opts.Table)
	}

	path, err := filepath.Abs(opts.File)
	if err != nil {
		return source.Source{}, err
	}
	format, err := source.DetectFormat(path)
	if err != nil {
		return source.Source{}, err
	}
	return source.Source{
		Year:   opts.Year,
		Table:  opts.Table,
		Path:   path,
		Sheet:  source.SheetName(opts.Table),
		Format: format,
	}, nil
}

func renderExtractSummary(r *output.Renderer, src source.Source, records []extract.Record) {
	r.Header(2, src.String())
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.Program,
			rec.Agency,
			rec.Bureau,
			rec.Account,
			strconv.Itoa(len(rec.Observations)),
		})
	}
	r.Table([]string{"Program", "Agency", "Bureau", "Account", "Observations"}, rows)
	if r.EffectiveMode() != output.ModeJSON {
		r.Muted(fmt.Sprintf("%d records", len(records)))
	}
}
