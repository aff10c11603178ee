package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/creditscope/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new creditscope project",
		Long: `Initialize a creditscope project with a default configuration.

This creates:
  - creditscope.yaml configuration file
  - lookups.yaml for project-specific bureaus, aliases and rules
  - data/raw/ for the downloaded Federal Credit Supplement workbooks
  - .gitignore excluding the state database and processed output`,
		Example: `  # Initialize in current directory
  creditscope init

  # Initialize in a new directory
  creditscope init fcs-history

  # Force overwrite existing config
  creditscope init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			cfg := getConfig()
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))
			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func runInit(r *output.Renderer, dir string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, "creditscope.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("creditscope.yaml already exists. Use --force to overwrite")
	}

	if err := copyTemplate("project", dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	files, _ := listTemplateFiles("project")
	styles := r.Styles()
	for _, f := range files {
		r.Printf("  %s %s\n", styles.StatusSuccess.String(), f)
	}

	r.Println("")
	r.Success("creditscope project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Download the FCS workbooks into data/raw/")
	r.Println("  2. Run 'creditscope sources' to check coverage")
	r.Println("  3. Run 'creditscope run' to build the dataset")
	r.Println("  4. Run 'creditscope verify' to check the output")

	return nil
}
