package commands

import (
	"fmt"
	"strconv"

	"github.com/leapstack-labs/creditscope/internal/cli/output"
	"github.com/leapstack-labs/creditscope/internal/lookups"
	"github.com/leapstack-labs/creditscope/internal/sector"
	"github.com/spf13/cobra"
)

// NewTaxonomyCommand creates the taxonomy command.
func NewTaxonomyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Show the sector taxonomy and classification rules",
		Long: `Show the sectors programs are classified into and how many rules feed
each classification tier.

Rules from lookups_file extend the built-in tables and are included in the
counts.`,
		Example: `  # Show the taxonomy
  creditscope taxonomy

  # Export it as JSON (same document as sector_taxonomy.json)
  creditscope taxonomy -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTaxonomy(cmd)
		},
	}
	return cmd
}

func runTaxonomy(cmd *cobra.Command) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	tables, err := lookups.Load(cmdCtx.Cfg.LookupsFile)
	if err != nil {
		return err
	}
	c := sector.New(tables)
	tax := c.Taxonomy()

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(tax)
	}

	r.Header(1, "Sector Taxonomy")
	rows := make([][]string, 0, len(tax.Sectors))
	for _, def := range c.Sectors() {
		s := tax.Sectors[def.ID]
		id := def.ID
		if def.ID == tax.DefaultSector {
			id += " (default)"
		}
		rows = append(rows, []string{id, s.Name, s.Description})
	}
	r.Table([]string{"ID", "Name", "Description"}, rows)
	r.Println("")

	r.Header(2, "Classification Priority")
	for _, p := range tax.ClassificationPriority {
		r.Println("  " + p)
	}
	r.Println("")

	r.Table([]string{"Tier", "Rules"}, [][]string{
		{"Program overrides", strconv.Itoa(tax.ProgramOverrideCount)},
		{"Bureau rules", strconv.Itoa(tax.BureauRuleCount)},
		{"Agency rules", strconv.Itoa(tax.AgencyRuleCount)},
	})
	if r.EffectiveMode() == output.ModeText {
		r.Muted(fmt.Sprintf("Unmatched programs fall back to %q", tax.DefaultSector))
	}
	return nil
}
