package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/p4th0r/sitefence/internal/addrs"
	"github.com/p4th0r/sitefence/internal/firewall"
	"github.com/p4th0r/sitefence/internal/hosts"
	"github.com/spf13/cobra"
)

// NewStatusCmd creates the status subcommand.
func NewStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the installed hosts section and anchor",
		Long: `Shows the hosts managed in the hosts file, the signature, age and size of
the installed anchor and, on Linux with CAP_NET_ADMIN, the live nftables
table and open flows to blocked addresses.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			backend, err := firewall.New(cfg.Backend, cfg.PFAnchor)
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), cfg.HostsPath, cfg.AnchorPath, backend, cfg.Verbose, time.Now())
		},
	}
}

func printStatus(w io.Writer, hostsPath, anchorPath string, backend firewall.Backend, verbose bool, now time.Time) error {
	text, err := os.ReadFile(hostsPath)
	if err != nil {
		return fmt.Errorf("reading hosts file: %w", err)
	}
	managed := hosts.Hosts(string(text))
	fmt.Fprintf(w, "Hosts file:   %s (%d managed hosts)\n", hostsPath, len(managed))
	if verbose {
		for _, h := range managed {
			fmt.Fprintf(w, "  %s\n", h)
		}
	}

	data, err := os.ReadFile(anchorPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(w, "Anchor:       %s (not installed)\n", anchorPath)
		return nil
	case err != nil:
		return fmt.Errorf("reading anchor: %w", err)
	}
	snap := backend.ParseAnchor(string(data))

	fmt.Fprintf(w, "Anchor:       %s (%s)\n", anchorPath, backend.Name())
	sig := snap.Signature
	if sig == "" {
		sig = "(none)"
	}
	fmt.Fprintf(w, "Signature:    %s\n", sig)
	if !snap.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "Updated:      %s (%s ago)\n", snap.UpdatedAt.Format(time.DateTime), snap.Age(now).Round(time.Second))
	}
	for _, f := range addrs.Families {
		fmt.Fprintf(w, "  %-10s  %d\n", f, len(snap.Addresses.Family(f)))
	}

	if runtime.GOOS != "linux" || backend.Name() != firewall.BackendNFT {
		return nil
	}
	live, err := firewall.InspectTable(firewall.DefaultTable)
	if err != nil {
		fmt.Fprintf(w, "Live table:   unavailable (%v)\n", err)
		return nil
	}
	if !live.Present {
		fmt.Fprintf(w, "Live table:   inet %s not loaded\n", firewall.DefaultTable)
		return nil
	}
	fmt.Fprintf(w, "Live table:   inet %s loaded\n", firewall.DefaultTable)
	names := make([]string, 0, len(live.Elements))
	for name := range live.Elements {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-16s  %d\n", name, live.Elements[name])
	}
	if flows, err := firewall.CountFlows(snap.Addresses); err == nil {
		fmt.Fprintf(w, "Open flows:   %d to blocked addresses\n", flows)
	}
	return nil
}
