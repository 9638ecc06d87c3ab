package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/p4th0r/sitefence/internal/firewall"
	"github.com/p4th0r/sitefence/internal/logging"
	"github.com/p4th0r/sitefence/internal/privileged"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

// NewCleanupCmd creates the cleanup subcommand.
func NewCleanupCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove leftover sitefence resources",
		Long: `Finds and removes resources left behind by an interrupted sync:

  - install files next to the hosts file and the anchor ("*` + privileged.StagedSuffix + `")
  - staging files in the temp directory ("sitefence-hosts-*", "sitefence-anchor-*")
  - the live nftables table "inet ` + firewall.DefaultTable + `" (Linux, root only)

The hosts section and the anchor file are left alone; use "sitefence clear"
to remove enforcement.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger := logging.NewStderrLogger(cfg.Quiet, cfg.Verbose)
			return runCleanup(logger, cfg.HostsPath, cfg.AnchorPath, cfg.TempDir, cfg.DryRun)
		},
	}
}

func runCleanup(logger *logging.StderrLogger, hostsPath, anchorPath, tempDir string, dryRun bool) error {
	logger.CleanupStart()
	found := 0

	files := []string{hostsPath + privileged.StagedSuffix, anchorPath + privileged.StagedSuffix}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	for _, pattern := range []string{"sitefence-hosts-*", "sitefence-anchor-*"} {
		matches, err := filepath.Glob(filepath.Join(tempDir, pattern))
		if err != nil {
			return fmt.Errorf("scanning %s: %w", tempDir, err)
		}
		files = append(files, matches...)
	}

	for _, p := range files {
		if _, err := os.Lstat(p); err != nil {
			continue
		}
		found++
		logger.CleanupFound("staging file", p)
		if dryRun {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", p, err)
		}
		logger.CleanupRemoved("staging file", p)
	}

	if runtime.GOOS == "linux" {
		switch {
		case unix.Geteuid() != 0:
			logger.Debug("Not root, skipping nftables table check")
		case dryRun:
			status, err := firewall.InspectTable(firewall.DefaultTable)
			if err != nil {
				logger.Warn("Inspecting nftables: %v", err)
			} else if status.Present {
				found++
				logger.CleanupFound("nftables table", "inet "+firewall.DefaultTable)
			}
		default:
			removed, err := firewall.RemoveTable(firewall.DefaultTable)
			if err != nil {
				logger.Warn("Removing nftables table: %v", err)
			} else if removed {
				found++
				logger.CleanupFound("nftables table", "inet "+firewall.DefaultTable)
				logger.CleanupRemoved("nftables table", "inet "+firewall.DefaultTable)
			}
		}
	}

	if found == 0 {
		logger.CleanupNone()
	}
	return nil
}
