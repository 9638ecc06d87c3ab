package cli

import (
	"fmt"

	"github.com/p4th0r/sitefence/internal/domain"
	"github.com/spf13/cobra"
)

// NewApplyCmd creates the apply subcommand.
func NewApplyCmd(opts *globalOptions) *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:   "apply [DOMAIN...]",
		Short: "Run one sync cycle with a domain list",
		Long: `Runs one sync cycle. Domains come from the arguments and --file lists; when
neither is given, the domains and domain_files of the config file are used.

Entries may be URLs or carry ports and credentials; only the host is kept.
Each domain also blocks its www. peer.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			inline, lists := cfg.Domains, cfg.DomainFiles
			if len(args) > 0 || len(files) > 0 {
				inline, lists = args, files
			}
			domains, err := domain.Collect(inline, lists)
			if err != nil {
				return err
			}
			if len(domains) == 0 {
				return fmt.Errorf("no valid domains given (use \"sitefence clear\" to remove enforcement)")
			}
			return applyOnce(cfg, domains)
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Domain list file, one entry per line (repeatable)")
	return cmd
}

// NewClearCmd creates the clear subcommand.
func NewClearCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the hosts section and flush the anchor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return applyOnce(cfg, nil)
		},
	}
}
