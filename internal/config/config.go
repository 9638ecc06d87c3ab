// Package config provides the configuration for sitefence.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/p4th0r/sitefence/internal/anchor"
	"github.com/p4th0r/sitefence/internal/resolver"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is read when no --config flag is given and the file
// exists.
const DefaultConfigPath = "/etc/sitefence/config.yaml"

// MinSyncInterval is the shortest allowed period between sync cycles.
const MinSyncInterval = time.Minute

// Config holds the file configuration merged with CLI flags.
type Config struct {
	// Domains are raw entries; they are normalized at sync time.
	Domains     []string `yaml:"domains"`
	DomainFiles []string `yaml:"domain_files"`

	HostsPath  string `yaml:"hosts_path"`
	AnchorPath string `yaml:"anchor_path"`
	Backend    string `yaml:"backend"`   // auto, nft, pf
	PFAnchor   string `yaml:"pf_anchor"` // pf only
	Transport  string `yaml:"transport"` // auto, sudo, pkexec, osascript, direct
	TempDir    string `yaml:"temp_dir"`  // staging directory, default os.TempDir()

	Interval          time.Duration `yaml:"interval"`
	MinInterval       time.Duration `yaml:"min_interval"`
	PrivilegedTimeout time.Duration `yaml:"privileged_timeout"`

	Merge    MergeConfig    `yaml:"merge"`
	Resolver ResolverConfig `yaml:"resolver"`

	MetricsAddr string `yaml:"metrics_addr"` // daemon status server, empty disables
	ReportPath  string `yaml:"report_path"`  // JSON cycle report, empty disables

	// CLI-only options
	ConfigPath string `yaml:"-"`
	DryRun     bool   `yaml:"-"`
	Quiet      bool   `yaml:"-"`
	Verbose    bool   `yaml:"-"`
}

// MergeConfig tunes the anchor state merger.
type MergeConfig struct {
	FreshnessWindow time.Duration `yaml:"freshness_window"`
	MaxEntries      int           `yaml:"max_entries"`
}

// ResolverConfig tunes the resolution channels.
type ResolverConfig struct {
	Timeout                     time.Duration `yaml:"timeout"`
	Concurrency                 int           `yaml:"concurrency"`
	IterativeAttempts           int           `yaml:"iterative_attempts"`
	AggressiveIterativeAttempts int           `yaml:"aggressive_iterative_attempts"`
	DoHAttempts                 int           `yaml:"doh_attempts"`
	AggressiveDoHAttempts       int           `yaml:"aggressive_doh_attempts"`
	MaxAliases                  int           `yaml:"max_aliases"`
	ResolvConf                  string        `yaml:"resolv_conf"`
	Nameservers                 []string      `yaml:"nameservers"` // overrides resolv_conf
	DoHEndpoints                []string      `yaml:"doh_endpoints"`
	ClientSubnets               []string      `yaml:"client_subnets"`
	EdgeSuffixes                []string      `yaml:"edge_suffixes"`
	DisableSystem               bool          `yaml:"disable_system"`
	DisableIterative            bool          `yaml:"disable_iterative"`
	DisableDoH                  bool          `yaml:"disable_doh"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HostsPath:         "/etc/hosts",
		AnchorPath:        DefaultAnchorPath(runtime.GOOS),
		Backend:           "auto",
		Transport:         "auto",
		Interval:          5 * time.Minute,
		MinInterval:       MinSyncInterval,
		PrivilegedTimeout: 5 * time.Minute,
		Merge: MergeConfig{
			FreshnessWindow: anchor.DefaultPolicy.FreshnessWindow,
			MaxEntries:      anchor.DefaultPolicy.MaxEntries,
		},
		Resolver: ResolverConfig{
			Timeout:                     1500 * time.Millisecond,
			Concurrency:                 8,
			IterativeAttempts:           4,
			AggressiveIterativeAttempts: 8,
			DoHAttempts:                 1,
			AggressiveDoHAttempts:       3,
			MaxAliases:                  resolver.DefaultMaxAliases,
			ResolvConf:                  "/etc/resolv.conf",
			DoHEndpoints:                append([]string{}, resolver.DefaultDoHEndpoints...),
			ClientSubnets:               append([]string{}, resolver.DefaultClientSubnets...),
			EdgeSuffixes:                append([]string{}, resolver.DefaultEdgeSuffixes...),
		},
	}
}

// DefaultAnchorPath returns where the anchor file lives on goos.
func DefaultAnchorPath(goos string) string {
	if goos == "darwin" {
		return "/etc/pf.anchors/com.sitefence"
	}
	return "/etc/sitefence/anchor.nft"
}

// Load reads a YAML file over the defaults. Keys absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.ConfigPath = path

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Policy returns the anchor merge policy.
func (c *Config) Policy() anchor.Policy {
	return anchor.Policy{
		FreshnessWindow: c.Merge.FreshnessWindow,
		MaxEntries:      c.Merge.MaxEntries,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	for name, p := range map[string]string{"hosts_path": c.HostsPath, "anchor_path": c.AnchorPath} {
		if p == "" || !filepath.IsAbs(p) {
			return fmt.Errorf("%s must be an absolute path (got %q)", name, p)
		}
	}
	if c.TempDir != "" && !filepath.IsAbs(c.TempDir) {
		return fmt.Errorf("temp_dir must be an absolute path (got %q)", c.TempDir)
	}

	switch c.Backend {
	case "", "auto", "nft", "pf":
	default:
		return fmt.Errorf("invalid backend %q: use auto, nft, or pf", c.Backend)
	}
	switch c.Transport {
	case "", "auto", "sudo", "pkexec", "osascript", "direct":
	default:
		return fmt.Errorf("invalid transport %q: use auto, sudo, pkexec, osascript, or direct", c.Transport)
	}

	if c.MinInterval < MinSyncInterval {
		return fmt.Errorf("min_interval must be at least %s (got %s)", MinSyncInterval, c.MinInterval)
	}
	if c.Interval < c.MinInterval {
		return fmt.Errorf("interval %s is shorter than min_interval %s", c.Interval, c.MinInterval)
	}
	if c.PrivilegedTimeout <= 0 {
		return fmt.Errorf("privileged_timeout must be positive (got %s)", c.PrivilegedTimeout)
	}

	if c.Merge.FreshnessWindow <= 0 {
		return fmt.Errorf("merge.freshness_window must be positive (got %s)", c.Merge.FreshnessWindow)
	}
	if c.Merge.MaxEntries <= 0 {
		return fmt.Errorf("merge.max_entries must be positive (got %d)", c.Merge.MaxEntries)
	}

	return c.Resolver.validate()
}

func (r *ResolverConfig) validate() error {
	if r.DisableSystem && r.DisableIterative && r.DisableDoH {
		return fmt.Errorf("resolver: at least one channel must be enabled")
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("resolver.timeout must be positive (got %s)", r.Timeout)
	}
	if r.Concurrency <= 0 {
		return fmt.Errorf("resolver.concurrency must be positive (got %d)", r.Concurrency)
	}
	if r.IterativeAttempts < 4 {
		return fmt.Errorf("resolver.iterative_attempts must be at least 4 (got %d)", r.IterativeAttempts)
	}
	if r.AggressiveIterativeAttempts < r.IterativeAttempts {
		return fmt.Errorf("resolver.aggressive_iterative_attempts (%d) must not be below iterative_attempts (%d)",
			r.AggressiveIterativeAttempts, r.IterativeAttempts)
	}
	if r.DoHAttempts <= 0 || r.AggressiveDoHAttempts < 0 {
		return fmt.Errorf("resolver: invalid DoH attempts (%d, aggressive %d)", r.DoHAttempts, r.AggressiveDoHAttempts)
	}
	if r.MaxAliases < resolver.DefaultMaxAliases {
		return fmt.Errorf("resolver.max_aliases must be at least %d (got %d)", resolver.DefaultMaxAliases, r.MaxAliases)
	}
	for _, ns := range r.Nameservers {
		host, _, err := net.SplitHostPort(ns)
		if err != nil {
			host = ns
		}
		if net.ParseIP(host) == nil {
			return fmt.Errorf("invalid nameserver %q", ns)
		}
	}
	if !r.DisableDoH && len(r.DoHEndpoints) < 2 {
		return fmt.Errorf("resolver: DoH needs at least 2 doh_endpoints (got %d)", len(r.DoHEndpoints))
	}
	for _, ep := range r.DoHEndpoints {
		u, err := url.Parse(ep)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return fmt.Errorf("invalid DoH endpoint %q", ep)
		}
	}
	for _, s := range r.ClientSubnets {
		if _, _, err := net.ParseCIDR(s); err != nil {
			return fmt.Errorf("invalid client subnet %q: %w", s, err)
		}
	}
	return nil
}

// NameserverAddrs returns the iterative channel's nameservers as host:port,
// from the explicit list or from resolv.conf.
func (r *ResolverConfig) NameserverAddrs() ([]string, error) {
	if len(r.Nameservers) == 0 {
		return resolver.SystemNameservers(r.ResolvConf)
	}
	out := make([]string, 0, len(r.Nameservers))
	for _, ns := range r.Nameservers {
		if _, _, err := net.SplitHostPort(ns); err == nil {
			out = append(out, ns)
			continue
		}
		out = append(out, net.JoinHostPort(ns, "53"))
	}
	return out, nil
}
