package addrs

import (
	"fmt"
	"net"
)

// ChurnThreshold is the number of distinct addresses sharing a /24 above
// which the whole /24 is blocked.
const ChurnThreshold = 4

// Aggregate returns the /24 prefixes covering at least ChurnThreshold distinct
// addresses of ipv4, in order of first appearance. Entries that are not IPv4
// addresses are ignored.
func Aggregate(ipv4 []string) []string {
	counts := make(map[string]int)
	seen := make(map[string]struct{})
	var order []string

	for _, s := range ipv4 {
		ip := net.ParseIP(s).To4()
		if ip == nil {
			continue
		}
		key := ip.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		prefix := fmt.Sprintf("%d.%d.%d.0/24", ip[0], ip[1], ip[2])
		if counts[prefix] == 0 {
			order = append(order, prefix)
		}
		counts[prefix]++
	}

	var out []string
	for _, p := range order {
		if counts[p] >= ChurnThreshold {
			out = append(out, p)
		}
	}
	return out
}

// WithAggregates returns s with the /24 aggregates of its IPv4 addresses
// added to IPv4Nets.
func WithAggregates(s Set) Set {
	out := s.Clone()
	var b Builder
	b.AddSet(Set{IPv4Nets: out.IPv4Nets})
	for _, n := range Aggregate(out.IPv4) {
		b.AddString(n)
	}
	out.IPv4Nets = b.Set().IPv4Nets
	return out
}
