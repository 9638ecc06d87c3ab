package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/p4th0r/sitefence/internal/daemon"
	"github.com/p4th0r/sitefence/internal/logging"
	"github.com/p4th0r/sitefence/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewRunCmd creates the run subcommand.
func NewRunCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Keep enforcement in sync periodically",
		Long: `Runs a sync cycle immediately and then every interval while the domain
list is non-empty. The domains and domain_files entries of the config file,
and the list files they name, are re-read on every cycle; changes to any
other setting need a restart. SIGHUP forces a cycle.

With metrics_addr set, an HTTP server exposes /healthz, /status, /metrics
and POST /sync.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger := logging.NewStderrLogger(cfg.Quiet, cfg.Verbose)
			eng, err := newEngine(cfg, logger)
			if err != nil {
				return err
			}

			d := daemon.New(daemon.Config{
				Engine:      eng,
				Source:      domainSource(cfg),
				Interval:    cfg.Interval,
				MinInterval: cfg.MinInterval,
				ReportPath:  cfg.ReportPath,
				Logger:      logger,
			})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case <-hup:
						logger.Info("SIGHUP received, syncing")
						d.Trigger()
					}
				}
			}()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return d.Run(gctx) })
			if cfg.MetricsAddr != "" {
				g.Go(func() error {
					return server.Serve(gctx, cfg.MetricsAddr, server.NewRouter(d), logger)
				})
			}
			return g.Wait()
		},
	}
}
