package cli

import (
	"bytes"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/p4th0r/sitefence/internal/addrs"
	"github.com/p4th0r/sitefence/internal/anchor"
	"github.com/p4th0r/sitefence/internal/config"
	"github.com/p4th0r/sitefence/internal/firewall"
	"github.com/p4th0r/sitefence/internal/hosts"
	"github.com/p4th0r/sitefence/internal/logging"
	"github.com/p4th0r/sitefence/internal/privileged"
	"github.com/p4th0r/sitefence/internal/resolver"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, "hosts_path: /etc/hosts\nbackend: pf\ndomains: [example.com]\n")

	opts := &globalOptions{
		configPath: cfgPath,
		hostsPath:  "/tmp/hosts",
		transport:  "direct",
		dryRun:     true,
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.HostsPath != "/tmp/hosts" {
		t.Errorf("HostsPath = %q, flag not applied", cfg.HostsPath)
	}
	if cfg.Backend != "pf" {
		t.Errorf("Backend = %q, file value lost", cfg.Backend)
	}
	if cfg.Transport != "direct" || !cfg.DryRun {
		t.Errorf("Transport/DryRun = %q/%v", cfg.Transport, cfg.DryRun)
	}
	if diff := cmp.Diff([]string{"example.com"}, cfg.Domains); diff != "" {
		t.Errorf("Domains mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigRejectsInvalidFlag(t *testing.T) {
	opts := &globalOptions{configPath: filepath.Join(t.TempDir(), "none.yaml")}
	if _, err := loadConfig(opts); err == nil {
		t.Error("expected error for missing config file")
	}

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, "{}\n")
	opts = &globalOptions{configPath: cfgPath, backend: "iptables"}
	if _, err := loadConfig(opts); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestDomainSourceRereadsConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	listPath := filepath.Join(dir, "list.txt")
	writeFile(t, listPath, "news.example.org # evening reading\n")
	writeFile(t, cfgPath, "domains: [example.com]\ndomain_files: ["+listPath+"]\n")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	src := domainSource(cfg)

	got, err := src()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"example.com", "news.example.org"}, got); diff != "" {
		t.Errorf("first load mismatch (-want +got):\n%s", diff)
	}

	writeFile(t, cfgPath, "domains: []\n")
	got, err = src()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("after edit got %v, want empty", got)
	}
}

func TestDomainSourceRejectsInvalidReload(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, "domains: [example.com]\n")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	src := domainSource(cfg)
	if _, err := src(); err != nil {
		t.Fatal(err)
	}

	writeFile(t, cfgPath, "domains: [example.org]\nresolver:\n  max_aliases: 2\n")
	got, err := src()
	if err == nil {
		t.Fatalf("invalid reload accepted, got %v", got)
	}
	if !strings.Contains(err.Error(), "max_aliases") {
		t.Errorf("error = %q, want it to name max_aliases", err)
	}
}

func TestApplyRejectsEmptyList(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, "{}\n")

	root := NewRootCmd("test")
	root.SetArgs([]string{"--config", cfgPath, "apply", "not a domain", "bad..name"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "no valid domains") {
		t.Errorf("Execute error = %v, want no valid domains", err)
	}
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := NewVersionCmd("1.2.3")
	cmd.SetOut(&out)
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "sitefence 1.2.3\n") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestPrintStatus(t *testing.T) {
	dir := t.TempDir()
	hostsPath := filepath.Join(dir, "hosts")
	anchorPath := filepath.Join(dir, "anchor.conf")
	writeFile(t, hostsPath, hosts.Render("127.0.0.1 localhost\n", []string{"example.com"}))

	backend := &firewall.PFBackend{Anchor: firewall.DefaultPFAnchor}
	updated := time.Unix(1_700_000_000, 0)
	writeFile(t, anchorPath, backend.RenderAnchor(anchor.Snapshot{
		Addresses: addrs.Set{IPv4: []string{"93.184.216.34"}, IPv6Nets: []string{"2606:2800::/32"}},
		Signature: "example.com",
		UpdatedAt: updated,
	}))

	var out bytes.Buffer
	if err := printStatus(&out, hostsPath, anchorPath, backend, true, updated.Add(90*time.Minute)); err != nil {
		t.Fatalf("printStatus: %v", err)
	}
	for _, want := range []string{"(2 managed hosts)", "www.example.com", "Signature:    example.com", "1h30m0s ago", "ipv4        1"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("status output missing %q:\n%s", want, out.String())
		}
	}
}

func TestPrintStatusWithoutAnchor(t *testing.T) {
	dir := t.TempDir()
	hostsPath := filepath.Join(dir, "hosts")
	writeFile(t, hostsPath, "127.0.0.1 localhost\n")

	var out bytes.Buffer
	err := printStatus(&out, hostsPath, filepath.Join(dir, "missing"), &firewall.PFBackend{Anchor: "a"}, false, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "not installed") {
		t.Errorf("status output:\n%s", out.String())
	}
}

func TestRunCleanupRemovesStagingFiles(t *testing.T) {
	dir := t.TempDir()
	tempDir := filepath.Join(dir, "tmp")
	if err := os.Mkdir(tempDir, 0755); err != nil {
		t.Fatal(err)
	}
	hostsPath := filepath.Join(dir, "hosts")
	anchorPath := filepath.Join(dir, "anchor.nft")
	leftovers := []string{
		hostsPath + privileged.StagedSuffix,
		filepath.Join(tempDir, "sitefence-anchor-123"),
	}
	for _, p := range leftovers {
		writeFile(t, p, "x")
	}
	keep := filepath.Join(tempDir, "unrelated")
	writeFile(t, keep, "x")

	if err := runCleanup(logging.Discard(), hostsPath, anchorPath, tempDir, true); err != nil {
		t.Fatal(err)
	}
	for _, p := range leftovers {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("dry run removed %s", p)
		}
	}

	if err := runCleanup(logging.Discard(), hostsPath, anchorPath, tempDir, false); err != nil {
		t.Fatal(err)
	}
	for _, p := range leftovers {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s not removed", p)
		}
	}
	if _, err := os.Stat(keep); err != nil {
		t.Errorf("unrelated file removed: %v", err)
	}
}

func TestHostAddresses(t *testing.T) {
	tr := resolver.NewTracker()
	tr.RecordResolution("example.com", "system", false, []net.IP{net.ParseIP("93.184.216.34")}, nil)
	tr.RecordResolution("example.com", "doh", true, []net.IP{net.ParseIP("93.184.216.34"), net.ParseIP("2606:2800:220:1::1")}, nil)
	tr.RecordResolution("www.example.com", "iterative", false, nil, errors.New("i/o timeout"))

	got := hostAddresses(tr, []string{"example.com"})
	want := map[string][]string{
		"example.com":     {"2606:2800:220:1::1", "93.184.216.34"},
		"www.example.com": {},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("hostAddresses mismatch (-want +got):\n%s", diff)
	}

	var buf bytes.Buffer
	printHostAddresses(&buf, got, []string{"example.com", "www.example.com"})
	wantOut := "example.com\t2606:2800:220:1::1\n" +
		"example.com\t93.184.216.34\n" +
		"www.example.com\t(unresolved)\n"
	if buf.String() != wantOut {
		t.Errorf("output = %q, want %q", buf.String(), wantOut)
	}
}
