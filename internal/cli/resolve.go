package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"

	"github.com/p4th0r/sitefence/internal/addrs"
	"github.com/p4th0r/sitefence/internal/domain"
	"github.com/p4th0r/sitefence/internal/logging"
	"github.com/p4th0r/sitefence/internal/resolver"
	"github.com/spf13/cobra"
)

// NewResolveCmd creates the resolve subcommand.
func NewResolveCmd(opts *globalOptions) *cobra.Command {
	var (
		asJSON bool
		byHost bool
	)

	cmd := &cobra.Command{
		Use:   "resolve DOMAIN...",
		Short: "Resolve domains and print the address set that would be blocked",
		Long: `Resolves the domains through every enabled channel and prints the
aggregated address set. Nothing is installed and no privileges are needed.

With --by-host, every blocked hostname (including its www. variant) is
listed with the addresses found for it instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger := logging.NewStderrLogger(cfg.Quiet, cfg.Verbose)

			domains := domain.NormalizeList(args)
			if len(domains) == 0 {
				return fmt.Errorf("no valid domains given")
			}
			r, err := newResolver(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			res := r.Resolve(ctx, domains)
			set := addrs.WithAggregates(res.Addresses)

			if logger.Verbose() {
				for _, rr := range res.Tracker.Resolutions() {
					if rr.Err != nil {
						logger.Debug("%s via %s: %v", rr.Host, rr.Channel, rr.Err)
						continue
					}
					logger.Debug("%s via %s: %d address(es)", rr.Host, rr.Channel, len(rr.IPs))
				}
			}

			out := cmd.OutOrStdout()
			if byHost {
				byHostAddrs := hostAddresses(res.Tracker, domains)
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(byHostAddrs)
				}
				printHostAddresses(out, byHostAddrs, domain.ExpandAll(domains))
				return nil
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(set)
			}
			for _, f := range addrs.Families {
				for _, e := range set.Family(f) {
					fmt.Fprintf(out, "%s\t%s\n", f, e)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the set as JSON")
	cmd.Flags().BoolVar(&byHost, "by-host", false, "List the addresses found for each hostname")
	return cmd
}

// hostAddresses maps every expanded hostname of domains to the sorted
// addresses the channels returned for it. Unresolved hosts map to an empty
// list.
func hostAddresses(t *resolver.Tracker, domains []string) map[string][]string {
	out := make(map[string][]string)
	for _, h := range domain.ExpandAll(domains) {
		ips := t.IPsForHost(h)
		list := make([]string, 0, len(ips))
		for _, ip := range ips {
			list = append(list, ip.String())
		}
		sort.Strings(list)
		out[h] = list
	}
	return out
}

func printHostAddresses(w io.Writer, byHost map[string][]string, order []string) {
	for _, h := range order {
		if len(byHost[h]) == 0 {
			fmt.Fprintf(w, "%s\t(unresolved)\n", h)
			continue
		}
		for _, ip := range byHost[h] {
			fmt.Fprintf(w, "%s\t%s\n", h, ip)
		}
	}
}
