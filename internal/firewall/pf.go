package firewall

import (
	"fmt"
	"strings"

	"github.com/p4th0r/sitefence/internal/addrs"
	"github.com/p4th0r/sitefence/internal/anchor"
	"github.com/p4th0r/sitefence/internal/privileged"
)

// DefaultPFAnchor is the pf anchor loaded with the sitefence rules. The main
// ruleset must reference it (anchor "com.sitefence").
const DefaultPFAnchor = "com.sitefence"

const (
	pfTableV4 = "sitefence_v4"
	pfTableV6 = "sitefence_v6"
)

// PFBackend drives the macOS packet filter through a named anchor.
type PFBackend struct {
	Anchor string
}

// Name returns "pf".
func (b *PFBackend) Name() string {
	return BackendPF
}

// RenderAnchor renders the pf anchor. An empty snapshot renders only the
// header, which loads as an empty ruleset.
func (b *PFBackend) RenderAnchor(s anchor.Snapshot) string {
	var sb strings.Builder
	sb.WriteString(anchor.RenderHeader(s))

	v4 := append(append([]string{}, s.Addresses.IPv4...), s.Addresses.IPv4Nets...)
	v6 := append(append([]string{}, s.Addresses.IPv6...), s.Addresses.IPv6Nets...)
	if len(v4) > 0 {
		fmt.Fprintf(&sb, "table <%s> persist { %s }\n", pfTableV4, strings.Join(v4, ", "))
	}
	if len(v6) > 0 {
		fmt.Fprintf(&sb, "table <%s> persist { %s }\n", pfTableV6, strings.Join(v6, ", "))
	}
	if len(v4) > 0 {
		fmt.Fprintf(&sb, "block drop out quick inet to <%s>\n", pfTableV4)
	}
	if len(v6) > 0 {
		fmt.Fprintf(&sb, "block drop out quick inet6 to <%s>\n", pfTableV6)
	}
	return sb.String()
}

// ParseAnchor reads the header and both tables.
func (b *PFBackend) ParseAnchor(text string) anchor.Snapshot {
	sig, updated := anchor.ParseHeader(text)

	var builder addrs.Builder
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "table <"+pfTableV4+">") && !strings.HasPrefix(line, "table <"+pfTableV6+">") {
			continue
		}
		for _, e := range braceList(line) {
			builder.AddString(e)
		}
	}
	return anchor.Snapshot{Addresses: builder.Set(), Signature: sig, UpdatedAt: updated}
}

// LoadSegments loads the anchor file and makes sure pf is enabled.
func (b *PFBackend) LoadSegments(path string) []privileged.Segment {
	return []privileged.Segment{
		privileged.Cmd("pfctl", "-a", b.Anchor, "-f", path),
		privileged.BestEffort("pfctl", "-E"),
	}
}

// FlushSegments flushes rules and tables of the anchor.
func (b *PFBackend) FlushSegments() []privileged.Segment {
	return []privileged.Segment{privileged.BestEffort("pfctl", "-a", b.Anchor, "-F", "all")}
}

// KillStateSegments kills pf states from any source toward each entry.
func (b *PFBackend) KillStateSegments(s addrs.Set) []privileged.Segment {
	var segs []privileged.Segment
	for _, e := range append(append([]string{}, s.IPv4...), s.IPv4Nets...) {
		segs = append(segs, privileged.BestEffort("pfctl", "-k", "0.0.0.0/0", "-k", e))
	}
	for _, e := range append(append([]string{}, s.IPv6...), s.IPv6Nets...) {
		segs = append(segs, privileged.BestEffort("pfctl", "-k", "::/0", "-k", e))
	}
	return segs
}

// FlushDNSCacheSegments flushes the directory service cache and restarts
// mDNSResponder's cache.
func (b *PFBackend) FlushDNSCacheSegments() []privileged.Segment {
	return []privileged.Segment{
		privileged.BestEffort("dscacheutil", "-flushcache"),
		privileged.BestEffort("killall", "-HUP", "mDNSResponder"),
	}
}
