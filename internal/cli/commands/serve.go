package commands

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/leapstack-labs/creditscope/internal/api"
	"github.com/spf13/cobra"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Host string
	Port int
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dataset over a read-only JSON API",
		Long: `Serve the built dataset and the run history over HTTP.

Endpoints:
  GET /api/programs        programs master (?sector=, ?agency=)
  GET /api/programs/{id}   one program with its data from every unified file
  GET /api/manifest        manifest of the last run
  GET /api/taxonomy        sector taxonomy
  GET /api/verify          verification report
  GET /api/runs            run history (?limit=)
  GET /api/runs/{id}       one run with its sources
  GET /healthz             liveness
  GET /metrics             Prometheus metrics

The dataset is read from the output directory on every request, so a
'creditscope run' in another terminal is picked up without a restart.`,
		Example: `  # Serve on the default port
  creditscope serve

  # Listen on every interface
  creditscope serve --host 0.0.0.0 --port 9000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Host, "host", "localhost", "Address to listen on")
	cmd.Flags().IntVarP(&opts.Port, "port", "p", 8484, "Port to listen on")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cmdCtx := NewCommandContext(cmd)
	cfg := cmdCtx.Cfg

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srvCfg := api.Config{
		OutputDir: cfg.OutputDir,
		Addr:      net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		Logger:    cmdCtx.Logger,
	}
	if statePresent(cfg) {
		store, err := openStore(cfg, cmdCtx.Logger)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		srvCfg.Store = store
	} else {
		cmdCtx.Renderer.Warning("No state database at " + cfg.StatePath + "; run endpoints are disabled")
	}

	cmdCtx.Renderer.Muted("Serving " + cfg.OutputDir + " on http://" + srvCfg.Addr + ". Press Ctrl+C to stop.")
	return api.NewServer(srvCfg).Serve(ctx)
}
