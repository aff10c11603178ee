package commands

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/creditscope/internal/cli/output"
	"github.com/leapstack-labs/creditscope/internal/verify"
	"github.com/spf13/cobra"
)

// maxDetails limits the details printed per check in text and markdown.
const maxDetails = 5

// ErrVerifyFailed is returned when a failing check fails.
var ErrVerifyFailed = errors.New("verification failed")

// NewVerifyCommand creates the verify command.
func NewVerifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a built dataset for quality problems",
		Long: `Run quality checks over the dataset in the output directory.

Checks:
  - coverage of budget years and tables
  - sector classification (fails when a program is unclassified)
  - sector distribution
  - short-lived programs
  - cross-table consistency between Table 1 and the other direct loan tables
  - year over year subsidy rate jumps in Tables 1 and 2

Only failing checks make the command exit non-zero; warnings are reported.`,
		Example: `  # Verify the configured output directory
  creditscope verify

  # Verify another build
  creditscope verify --output-dir /tmp/fcs -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVerify(cmd)
		},
	}
	return cmd
}

func runVerify(cmd *cobra.Command) error {
	cmdCtx := NewCommandContext(cmd)
	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer

	report, err := verify.Run(cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to load dataset from %s: %w", cfg.OutputDir, err)
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		if err := r.JSON(report); err != nil {
			return err
		}
	case output.ModeMarkdown:
		renderVerifyMarkdown(r, report)
	default:
		renderVerifyText(r, report)
	}

	if report.Failed() {
		return ErrVerifyFailed
	}
	return nil
}

func renderVerifyText(r *output.Renderer, report *verify.Report) {
	styles := r.Styles()
	titleCaser := cases.Title(language.English)

	r.Println("")
	r.Println(styles.Header1.Render("Dataset Verification Report"))
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	r.Printf("   Programs: %d | Budget years: %d\n", report.Programs, len(report.Coverage))
	r.Println("")

	for _, c := range report.Checks {
		icon := styles.StatusSuccess.String()
		switch c.Status {
		case verify.StatusWarn:
			icon = styles.Warning.Render("!")
		case verify.StatusFail:
			icon = styles.StatusFailed.String()
		case verify.StatusInfo:
			icon = styles.Info.Render("i")
		}
		r.Printf("   %s %s: %s\n", icon, titleCaser.String(c.Name), c.Summary)

		for i, detail := range c.Details {
			if i >= maxDetails {
				r.Println(styles.Muted.Render(fmt.Sprintf("       ... and %d more", len(c.Details)-maxDetails)))
				break
			}
			r.Println(styles.Muted.Render("       - " + detail))
		}
	}
	r.Println("")
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))

	if report.Failed() {
		r.Println(styles.Error.Render("   Verification failed"))
	} else {
		r.Println(styles.Success.Render("   Verification passed"))
	}
	r.Println("")
}

func renderVerifyMarkdown(r *output.Renderer, report *verify.Report) {
	r.Header(1, "Dataset Verification Report")
	r.Printf("**Programs:** %d\n\n", report.Programs)

	r.Header(2, "Checks")
	rows := make([][]string, 0, len(report.Checks))
	for _, c := range report.Checks {
		rows = append(rows, []string{c.Name, string(c.Status), c.Summary})
	}
	r.Table([]string{"Check", "Status", "Summary"}, rows)

	for _, c := range report.Checks {
		if len(c.Details) == 0 || c.Status == verify.StatusPass {
			continue
		}
		r.Println("")
		r.Header(3, c.Name)
		for i, detail := range c.Details {
			if i >= maxDetails {
				r.Printf("- ... and %d more\n", len(c.Details)-maxDetails)
				break
			}
			r.Printf("- %s\n", detail)
		}
	}

	if len(report.Sectors) > 0 {
		r.Println("")
		r.Header(2, "Sectors")
		names := make([]string, 0, len(report.Sectors))
		for name := range report.Sectors {
			names = append(names, name)
		}
		sort.Strings(names)
		sectorRows := make([][]string, 0, len(names))
		for _, name := range names {
			sectorRows = append(sectorRows, []string{name, strconv.Itoa(report.Sectors[name])})
		}
		r.Table([]string{"Sector", "Programs"}, sectorRows)
	}
}
