package resolver

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/p4th0r/sitefence/internal/addrs"
)

// fakeChannel answers from a fixed table and records the aggressive flag
// it was called with.
type fakeChannel struct {
	name    string
	answers map[string][]string
	fail    map[string]bool

	mu         sync.Mutex
	aggressive map[string]bool
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Lookup(_ context.Context, host string, aggressive bool) ([]net.IP, error) {
	f.mu.Lock()
	if f.aggressive == nil {
		f.aggressive = make(map[string]bool)
	}
	f.aggressive[host] = aggressive
	f.mu.Unlock()

	if f.fail[host] {
		return nil, errors.New("lookup failed")
	}
	var ips []net.IP
	for _, s := range f.answers[host] {
		ips = append(ips, net.ParseIP(s))
	}
	return ips, nil
}

func TestResolveUnionsChannelsInOrder(t *testing.T) {
	system := &fakeChannel{name: "system", answers: map[string][]string{
		"example.com":     {"93.184.216.34", "127.0.0.1"},
		"www.example.com": {"93.184.216.35"},
	}}
	doh := &fakeChannel{name: "doh", answers: map[string][]string{
		"example.com":     {"93.184.216.34", "2606:2800:220:1:248:1893:25c8:1946", "0.0.0.0", "::"},
		"www.example.com": {"::1"},
	}}

	r := New(Config{Channels: []Channel{system, doh}, Concurrency: 2})
	res := r.Resolve(context.Background(), []string{"example.com"})

	want := addrs.Set{
		IPv4: []string{"93.184.216.34", "93.184.216.35"},
		IPv6: []string{"2606:2800:220:1:248:1893:25c8:1946"},
	}
	if diff := cmp.Diff(want, res.Addresses); diff != "" {
		t.Errorf("Resolve mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveAbsorbsFailures(t *testing.T) {
	broken := &fakeChannel{name: "iterative", fail: map[string]bool{"example.com": true, "www.example.com": true}}
	system := &fakeChannel{name: "system", answers: map[string][]string{"example.com": {"93.184.216.34"}}}

	r := New(Config{Channels: []Channel{broken, system}})
	res := r.Resolve(context.Background(), []string{"example.com"})

	if diff := cmp.Diff([]string{"93.184.216.34"}, res.Addresses.IPv4); diff != "" {
		t.Errorf("addresses mismatch (-want +got):\n%s", diff)
	}
	lookups, failures, resolved := res.Tracker.Stats()
	if lookups != 4 || failures != 2 || resolved != 1 {
		t.Errorf("Stats() = %d, %d, %d; want 4, 2, 1", lookups, failures, resolved)
	}
}

func TestResolveAllChannelsFail(t *testing.T) {
	broken := &fakeChannel{name: "system", fail: map[string]bool{"example.com": true, "www.example.com": true}}
	res := New(Config{Channels: []Channel{broken}}).Resolve(context.Background(), []string{"example.com"})
	if !res.Addresses.Empty() {
		t.Errorf("Addresses = %+v, want empty", res.Addresses)
	}
}

func TestResolvePassesAggressiveForEdgeHosts(t *testing.T) {
	ch := &fakeChannel{name: "doh"}
	r := New(Config{Channels: []Channel{ch}, Edges: NewEdgeMatcher([]string{"akamaihd.net"})})
	r.Resolve(context.Background(), []string{"video.akamaihd.net", "example.com"})

	if !ch.aggressive["video.akamaihd.net"] {
		t.Error("edge host not resolved aggressively")
	}
	if ch.aggressive["example.com"] {
		t.Error("ordinary host resolved aggressively")
	}
}

func TestResolveEmpty(t *testing.T) {
	ch := &fakeChannel{name: "system"}
	res := New(Config{Channels: []Channel{ch}}).Resolve(context.Background(), nil)
	if !res.Addresses.Empty() {
		t.Errorf("Addresses = %+v, want empty", res.Addresses)
	}
	if len(ch.aggressive) != 0 {
		t.Error("channel queried for empty domain list")
	}
}

func TestEdgeMatcher(t *testing.T) {
	m := NewEdgeMatcher([]string{"akamaiedge.net", "*.cloudfront.net", "CDN.Cloudflare.net."})
	tests := []struct {
		host string
		want bool
	}{
		{"e1234.a.akamaiedge.net", true},
		{"akamaiedge.net", true},
		{"d111.cloudfront.net.", true},
		{"www.example.com.cdn.cloudflare.net", true},
		{"notakamaiedge.net", false},
		{"example.com", false},
	}
	for _, tt := range tests {
		if got := m.Match(tt.host); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}

	var nilMatcher *EdgeMatcher
	if nilMatcher.Match("e1.akamaiedge.net") {
		t.Error("nil matcher matched")
	}
}

func TestTrackerIPsForHost(t *testing.T) {
	tr := NewTracker()
	tr.RecordResolution("example.com", "system", false, []net.IP{net.ParseIP("1.1.1.1")}, nil)
	tr.RecordResolution("example.com", "doh", false, []net.IP{net.ParseIP("1.1.1.1"), net.ParseIP("2.2.2.2")}, nil)
	tr.RecordResolution("example.com", "iterative", false, nil, errors.New("timeout"))

	if got := len(tr.IPsForHost("example.com")); got != 2 {
		t.Errorf("IPsForHost returned %d addresses, want 2", got)
	}
	if got := tr.IPsForHost("unknown.com"); got != nil {
		t.Errorf("IPsForHost(unknown) = %v, want nil", got)
	}
	if got := len(tr.Resolutions()); got != 3 {
		t.Errorf("Resolutions() has %d entries, want 3", got)
	}
}
