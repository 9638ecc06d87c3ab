package anchor

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/p4th0r/sitefence/internal/addrs"
)

var now = time.Unix(1760900000, 0)

func TestMerge(t *testing.T) {
	prevSet := addrs.Set{
		IPv4:     []string{"1.1.1.1", "2.2.2.2"},
		IPv6:     []string{"2001:db8::1"},
		IPv4Nets: []string{"5.5.5.0/24"},
	}
	fresh := addrs.Set{IPv4: []string{"3.3.3.3", "1.1.1.1"}}

	tests := []struct {
		name  string
		fresh addrs.Set
		prev  Snapshot
		sig   string
		want  addrs.Set
	}{
		{
			name:  "empty fresh keeps previous",
			fresh: addrs.Set{},
			prev:  Snapshot{Addresses: prevSet, Signature: "other.com", UpdatedAt: now.Add(-30 * 24 * time.Hour)},
			sig:   "example.com",
			want:  prevSet,
		},
		{
			name:  "same signature recent rolls forward",
			fresh: fresh,
			prev:  Snapshot{Addresses: prevSet, Signature: "example.com", UpdatedAt: now.Add(-time.Hour)},
			sig:   "example.com",
			want: addrs.Set{
				IPv4:     []string{"3.3.3.3", "1.1.1.1", "2.2.2.2"},
				IPv6:     []string{"2001:db8::1"},
				IPv4Nets: []string{"5.5.5.0/24"},
			},
		},
		{
			name:  "same signature without timestamp rolls forward",
			fresh: fresh,
			prev:  Snapshot{Addresses: prevSet, Signature: "example.com"},
			sig:   "example.com",
			want: addrs.Set{
				IPv4:     []string{"3.3.3.3", "1.1.1.1", "2.2.2.2"},
				IPv6:     []string{"2001:db8::1"},
				IPv4Nets: []string{"5.5.5.0/24"},
			},
		},
		{
			name:  "exactly at window is still fresh",
			fresh: fresh,
			prev:  Snapshot{Addresses: prevSet, Signature: "example.com", UpdatedAt: now.Add(-7 * 24 * time.Hour)},
			sig:   "example.com",
			want: addrs.Set{
				IPv4:     []string{"3.3.3.3", "1.1.1.1", "2.2.2.2"},
				IPv6:     []string{"2001:db8::1"},
				IPv4Nets: []string{"5.5.5.0/24"},
			},
		},
		{
			name:  "stale previous is discarded",
			fresh: fresh,
			prev:  Snapshot{Addresses: prevSet, Signature: "example.com", UpdatedAt: now.Add(-8 * 24 * time.Hour)},
			sig:   "example.com",
			want:  fresh,
		},
		{
			name:  "different signature is discarded",
			fresh: fresh,
			prev:  Snapshot{Addresses: prevSet, Signature: "example.com,youtube.com", UpdatedAt: now},
			sig:   "example.com",
			want:  fresh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.fresh, tt.prev, tt.sig, now, DefaultPolicy)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Merge mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMergeCapsPreviousEntries(t *testing.T) {
	var prevV4 []string
	for i := 0; i < 10; i++ {
		prevV4 = append(prevV4, fmt.Sprintf("10.0.%d.1", i))
	}
	fresh := addrs.Set{IPv4: []string{"192.0.2.1", "192.0.2.2", "192.0.2.3"}}
	prev := Snapshot{Addresses: addrs.Set{IPv4: prevV4}, Signature: "x.com", UpdatedAt: now}

	got := Merge(fresh, prev, "x.com", now, Policy{FreshnessWindow: time.Hour, MaxEntries: 5})
	want := []string{"192.0.2.1", "192.0.2.2", "192.0.2.3", "10.0.0.1", "10.0.1.1"}
	if diff := cmp.Diff(want, got.IPv4); diff != "" {
		t.Errorf("capped union mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeNeverDropsFreshEntries(t *testing.T) {
	fresh := addrs.Set{IPv4: []string{"192.0.2.1", "192.0.2.2", "192.0.2.3"}}
	prev := Snapshot{Addresses: addrs.Set{IPv4: []string{"10.0.0.1"}}, Signature: "x.com", UpdatedAt: now}

	got := Merge(fresh, prev, "x.com", now, Policy{FreshnessWindow: time.Hour, MaxEntries: 2})
	if diff := cmp.Diff(fresh.IPv4, got.IPv4); diff != "" {
		t.Errorf("fresh entries dropped (-want +got):\n%s", diff)
	}
}

func TestMergeDoesNotAliasInputs(t *testing.T) {
	prev := Snapshot{Addresses: addrs.Set{IPv4: []string{"1.1.1.1"}}}
	got := Merge(addrs.Set{}, prev, "", now, DefaultPolicy)
	got.IPv4[0] = "9.9.9.9"
	if prev.Addresses.IPv4[0] != "1.1.1.1" {
		t.Error("Merge result aliases previous snapshot")
	}
}
