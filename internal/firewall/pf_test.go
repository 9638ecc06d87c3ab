package firewall

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/p4th0r/sitefence/internal/addrs"
	"github.com/p4th0r/sitefence/internal/anchor"
)

func TestPFRenderParseRoundTrip(t *testing.T) {
	b := &PFBackend{Anchor: DefaultPFAnchor}
	text := b.RenderAnchor(sample)

	if !strings.Contains(text, "table <sitefence_v4> persist { 142.250.72.14, 2.17.147.10, 2.17.147.0/24 }") {
		t.Errorf("unexpected v4 table:\n%s", text)
	}
	if !strings.Contains(text, "block drop out quick inet6 to <sitefence_v6>") {
		t.Errorf("missing v6 rule:\n%s", text)
	}

	got := b.ParseAnchor(text)
	if diff := cmp.Diff(sample.Addresses, got.Addresses); diff != "" {
		t.Errorf("addresses mismatch (-want +got):\n%s", diff)
	}
	if got.Signature != sample.Signature {
		t.Errorf("signature = %q, want %q", got.Signature, sample.Signature)
	}
}

func TestPFRenderEmpty(t *testing.T) {
	text := (&PFBackend{Anchor: DefaultPFAnchor}).RenderAnchor(anchor.Snapshot{})
	if !strings.Contains(text, anchor.NoAddressesLine) {
		t.Errorf("empty anchor lacks %q:\n%s", anchor.NoAddressesLine, text)
	}
	if strings.Contains(text, "block") {
		t.Errorf("empty anchor contains rules:\n%s", text)
	}
}

func TestPFSegments(t *testing.T) {
	b := &PFBackend{Anchor: "com.sitefence"}

	load := b.LoadSegments("/etc/sitefence/anchor.pf")
	if len(load) == 0 || strings.Join(load[0].Argv, " ") != "pfctl -a com.sitefence -f /etc/sitefence/anchor.pf" || load[0].BestEffort {
		t.Errorf("LoadSegments = %+v", load)
	}

	kill := b.KillStateSegments(addrs.Set{IPv4: []string{"1.2.3.4"}, IPv6: []string{"2001:db8::1"}})
	var got []string
	for _, s := range kill {
		got = append(got, strings.Join(s.Argv, " "))
	}
	want := []string{"pfctl -k 0.0.0.0/0 -k 1.2.3.4", "pfctl -k ::/0 -k 2001:db8::1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("KillStateSegments mismatch (-want +got):\n%s", diff)
	}
}
