package cli

import (
	"github.com/p4th0r/sitefence/internal/config"
	"github.com/spf13/cobra"
)

// globalOptions holds the persistent flags. Empty values leave the config
// file settings in place.
type globalOptions struct {
	configPath string
	hostsPath  string
	anchorPath string
	backend    string
	transport  string
	dryRun     bool
	quiet      bool
	verbose    bool
}

// AddFlags adds the persistent flags to the root command.
func AddFlags(cmd *cobra.Command, opts *globalOptions) {
	f := cmd.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "Path to YAML config file (default: "+config.DefaultConfigPath+" if present)")
	f.StringVar(&opts.hostsPath, "hosts", "", "Hosts file to manage")
	f.StringVar(&opts.anchorPath, "anchor", "", "Packet-filter anchor file to manage")
	f.StringVar(&opts.backend, "backend", "", "Firewall backend: auto, nft, or pf")
	f.StringVar(&opts.transport, "transport", "", "Privilege transport: auto, sudo, pkexec, osascript, or direct")
	f.BoolVar(&opts.dryRun, "dry-run", false, "Print the privileged command instead of running it")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Only log errors")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Show debug output")
}

func (o *globalOptions) apply(cfg *config.Config) {
	if o.hostsPath != "" {
		cfg.HostsPath = o.hostsPath
	}
	if o.anchorPath != "" {
		cfg.AnchorPath = o.anchorPath
	}
	if o.backend != "" {
		cfg.Backend = o.backend
	}
	if o.transport != "" {
		cfg.Transport = o.transport
	}
	cfg.DryRun = o.dryRun
	cfg.Quiet = o.quiet
	cfg.Verbose = o.verbose
}
