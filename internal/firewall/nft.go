package firewall

import (
	"fmt"
	"net"
	"strings"

	"github.com/p4th0r/sitefence/internal/addrs"
	"github.com/p4th0r/sitefence/internal/anchor"
	"github.com/p4th0r/sitefence/internal/privileged"
)

// DefaultTable is the inet table holding the sitefence sets and chain.
const DefaultTable = "sitefence"

// nftSets maps set names to the address family they hold.
var nftSets = []struct {
	name     string
	family   string
	keyType  string
	interval bool
	match    string
}{
	{"blocked_v4", addrs.FamilyIPv4, "ipv4_addr", false, "ip daddr"},
	{"blocked_v4_nets", addrs.FamilyIPv4Nets, "ipv4_addr", true, "ip daddr"},
	{"blocked_v6", addrs.FamilyIPv6, "ipv6_addr", false, "ip6 daddr"},
	{"blocked_v6_nets", addrs.FamilyIPv6Nets, "ipv6_addr", true, "ip6 daddr"},
}

// NFTBackend drives nftables through an nft script. Addresses and
// aggregated prefixes live in separate sets so that a /24 never conflicts
// with a member address.
type NFTBackend struct {
	Table string
}

// Name returns "nft".
func (b *NFTBackend) Name() string {
	return BackendNFT
}

// RenderAnchor renders an nft script. The script always declares and then
// deletes the table, so loading it replaces any previous ruleset; a
// non-empty snapshot then recreates the table with its sets and chain.
func (b *NFTBackend) RenderAnchor(s anchor.Snapshot) string {
	var sb strings.Builder
	sb.WriteString(anchor.RenderHeader(s))
	fmt.Fprintf(&sb, "table inet %s\n", b.Table)
	fmt.Fprintf(&sb, "delete table inet %s\n", b.Table)
	if s.Addresses.Empty() {
		return sb.String()
	}

	fmt.Fprintf(&sb, "table inet %s {\n", b.Table)
	var rules []string
	for _, set := range nftSets {
		entries := s.Addresses.Family(set.family)
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\tset %s {\n", set.name)
		fmt.Fprintf(&sb, "\t\ttype %s\n", set.keyType)
		if set.interval {
			sb.WriteString("\t\tflags interval\n")
		}
		fmt.Fprintf(&sb, "\t\telements = { %s }\n", strings.Join(entries, ", "))
		sb.WriteString("\t}\n")
		rules = append(rules, fmt.Sprintf("%s @%s reject", set.match, set.name))
	}
	sb.WriteString("\tchain output {\n")
	sb.WriteString("\t\ttype filter hook output priority filter; policy accept;\n")
	for _, r := range rules {
		fmt.Fprintf(&sb, "\t\t%s\n", r)
	}
	sb.WriteString("\t}\n")
	sb.WriteString("}\n")
	return sb.String()
}

// ParseAnchor reads the header and the element lists of every known set.
func (b *NFTBackend) ParseAnchor(text string) anchor.Snapshot {
	sig, updated := anchor.ParseHeader(text)

	families := make(map[string]string, len(nftSets))
	for _, set := range nftSets {
		families[set.name] = set.family
	}

	var builder addrs.Builder
	current := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "set ") && strings.HasSuffix(line, "{"):
			current = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(line, "set "), "{"))
		case line == "}":
			current = ""
		case strings.HasPrefix(line, "elements"):
			if _, ok := families[current]; !ok {
				continue
			}
			for _, e := range braceList(line) {
				builder.AddString(e)
			}
		}
	}

	return anchor.Snapshot{Addresses: builder.Set(), Signature: sig, UpdatedAt: updated}
}

// LoadSegments runs nft -f on the anchor file.
func (b *NFTBackend) LoadSegments(path string) []privileged.Segment {
	return []privileged.Segment{privileged.Cmd("nft", "-f", path)}
}

// FlushSegments deletes the table if present.
func (b *NFTBackend) FlushSegments() []privileged.Segment {
	return []privileged.Segment{privileged.BestEffort("nft", "delete", "table", "inet", b.Table)}
}

// KillStateSegments deletes conntrack entries toward each destination.
func (b *NFTBackend) KillStateSegments(s addrs.Set) []privileged.Segment {
	var segs []privileged.Segment
	for _, ip := range append(append([]string{}, s.IPv4...), s.IPv6...) {
		segs = append(segs, privileged.BestEffort("conntrack", "-D", "-d", ip))
	}
	for _, cidr := range append(append([]string{}, s.IPv4Nets...), s.IPv6Nets...) {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		segs = append(segs, privileged.BestEffort("conntrack", "-D", "-d", network.IP.String(), "--mask-dst", maskString(network)))
	}
	return segs
}

// FlushDNSCacheSegments flushes systemd-resolved.
func (b *NFTBackend) FlushDNSCacheSegments() []privileged.Segment {
	return []privileged.Segment{privileged.BestEffort("resolvectl", "flush-caches")}
}

// maskString renders a prefix mask in address form, e.g. 255.255.255.0.
func maskString(n *net.IPNet) string {
	if len(n.Mask) == net.IPv4len {
		return net.IP(n.Mask).String()
	}
	return net.IP(n.Mask).To16().String()
}

// braceList returns the comma or space separated items between the first
// "{" and the last "}" of line.
func braceList(line string) []string {
	open := strings.IndexByte(line, '{')
	end := strings.LastIndexByte(line, '}')
	if open < 0 || end <= open {
		return nil
	}
	inner := strings.ReplaceAll(line[open+1:end], ",", " ")
	return strings.Fields(inner)
}
