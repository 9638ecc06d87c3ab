// Package cli provides the root command and subcommands for sitefence.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p4th0r/sitefence/internal/config"
	"github.com/p4th0r/sitefence/internal/domain"
	"github.com/p4th0r/sitefence/internal/engine"
	"github.com/p4th0r/sitefence/internal/logging"
	"github.com/spf13/cobra"
)

// ErrCanceled is returned when the user dismisses the authorization prompt.
var ErrCanceled = errors.New("authorization canceled; nothing changed")

// NewRootCmd creates the root command for sitefence.
func NewRootCmd(version ...string) *cobra.Command {
	ver := "dev"
	if len(version) > 0 && version[0] != "" {
		ver = version[0]
	}
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "sitefence",
		Short: "Block websites through the hosts file and the packet filter",
		Long: `sitefence keeps a managed section of the hosts file and a packet-filter
anchor in sync with a list of blocked domains.

Each sync resolves the domains through several channels, merges the result
with the previously installed tables and installs both files with a single
privileged command.

Example:
  sitefence apply example.com news.example.org
  sitefence apply --file ~/blocklist.txt
  sitefence run --config /etc/sitefence/config.yaml
  sitefence clear`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	AddFlags(cmd, opts)

	cmd.AddCommand(NewApplyCmd(opts))
	cmd.AddCommand(NewClearCmd(opts))
	cmd.AddCommand(NewRunCmd(opts))
	cmd.AddCommand(NewResolveCmd(opts))
	cmd.AddCommand(NewStatusCmd(opts))
	cmd.AddCommand(NewCleanupCmd(opts))
	cmd.AddCommand(NewVersionCmd(ver))
	cmd.AddCommand(NewCompletionCmd())

	return cmd
}

// loadConfig reads the config file, applies flag overrides and validates
// the result.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err == nil {
			path = config.DefaultConfigPath
		}
	}

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	opts.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyOnce runs one sync cycle with domains and reports the outcome.
func applyOnce(cfg *config.Config, domains []string) error {
	logger := logging.NewStderrLogger(cfg.Quiet, cfg.Verbose)
	eng, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.CycleStart(domains)
	start := time.Now()
	res, err := eng.Apply(ctx, domains)
	end := time.Now()

	if cfg.ReportPath != "" {
		report := eng.BuildReport(domains, res, err, start, end)
		if werr := logging.WriteReport(cfg.ReportPath, report); werr != nil {
			logger.Warn("Writing cycle report: %v", werr)
		}
	}

	switch {
	case engine.IsCanceled(err):
		return ErrCanceled
	case err != nil:
		return fmt.Errorf("sync failed: %w", err)
	case cfg.DryRun:
		if res.Script == "" {
			logger.DryRun("")
		}
		return nil
	}
	logger.CycleDone(res.Applied, res.HostsChanged, res.AnchorChanged,
		res.Addresses.Len(), res.NewlyBlocked.Len(), res.Duration)
	return nil
}

// domainSource returns the daemon's domain list loader. The config file is
// re-read on every call so domain edits apply on the next cycle; other
// settings keep their startup values. A reload that fails validation fails
// the cycle.
func domainSource(cfg *config.Config) func() ([]string, error) {
	return func() ([]string, error) {
		current := cfg
		if cfg.ConfigPath != "" {
			reloaded, err := config.Load(cfg.ConfigPath)
			if err != nil {
				return nil, err
			}
			if err := reloaded.Validate(); err != nil {
				return nil, fmt.Errorf("reloading %s: %w", cfg.ConfigPath, err)
			}
			current = reloaded
		}
		return domain.Collect(current.Domains, current.DomainFiles)
	}
}
