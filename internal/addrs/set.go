// Package addrs holds the address sets pushed into the firewall anchor.
package addrs

import (
	"net"
	"strings"
)

// Set is a collection of blocked destinations split by family. Each slice is
// ordered and free of duplicates; the four slices are disjoint.
type Set struct {
	IPv4     []string `json:"ipv4"`
	IPv6     []string `json:"ipv6"`
	IPv4Nets []string `json:"ipv4_nets"`
	IPv6Nets []string `json:"ipv6_nets"`
}

// Family names used in logs, metrics and anchor parsing.
const (
	FamilyIPv4     = "ipv4"
	FamilyIPv6     = "ipv6"
	FamilyIPv4Nets = "ipv4_nets"
	FamilyIPv6Nets = "ipv6_nets"
)

// Families lists the family names in rendering order.
var Families = []string{FamilyIPv4, FamilyIPv6, FamilyIPv4Nets, FamilyIPv6Nets}

// Empty reports whether the set holds no entries at all.
func (s Set) Empty() bool {
	return s.Len() == 0
}

// Len returns the total number of entries across all families.
func (s Set) Len() int {
	return len(s.IPv4) + len(s.IPv6) + len(s.IPv4Nets) + len(s.IPv6Nets)
}

// Family returns the entries of the named family.
func (s Set) Family(name string) []string {
	switch name {
	case FamilyIPv4:
		return s.IPv4
	case FamilyIPv6:
		return s.IPv6
	case FamilyIPv4Nets:
		return s.IPv4Nets
	case FamilyIPv6Nets:
		return s.IPv6Nets
	}
	return nil
}

// SetFamily replaces the entries of the named family.
func (s *Set) SetFamily(name string, entries []string) {
	switch name {
	case FamilyIPv4:
		s.IPv4 = entries
	case FamilyIPv6:
		s.IPv6 = entries
	case FamilyIPv4Nets:
		s.IPv4Nets = entries
	case FamilyIPv6Nets:
		s.IPv6Nets = entries
	}
}

// Clone returns a deep copy.
func (s Set) Clone() Set {
	return Set{
		IPv4:     cloneStrings(s.IPv4),
		IPv6:     cloneStrings(s.IPv6),
		IPv4Nets: cloneStrings(s.IPv4Nets),
		IPv6Nets: cloneStrings(s.IPv6Nets),
	}
}

// Equal reports whether both sets hold the same entries per family,
// ignoring order.
func (s Set) Equal(o Set) bool {
	for _, f := range Families {
		if !sameMembers(s.Family(f), o.Family(f)) {
			return false
		}
	}
	return true
}

// Minus returns the entries of s that are not in o, family by family, in the
// order of s.
func (s Set) Minus(o Set) Set {
	var out Set
	for _, f := range Families {
		drop := toMap(o.Family(f))
		var kept []string
		for _, e := range s.Family(f) {
			if _, ok := drop[e]; !ok {
				kept = append(kept, e)
			}
		}
		out.SetFamily(f, kept)
	}
	return out
}

// Builder accumulates addresses into a Set, classifying them by family and
// dropping duplicates. The zero value is ready to use.
type Builder struct {
	set  Set
	seen map[string]struct{}
}

// AddIP adds a single address. Loopback and unspecified addresses are
// rejected. It reports whether the address was new.
func (b *Builder) AddIP(ip net.IP) bool {
	if ip == nil || ip.IsLoopback() || ip.IsUnspecified() {
		return false
	}
	if v4 := ip.To4(); v4 != nil {
		return b.add(FamilyIPv4, v4.String())
	}
	return b.add(FamilyIPv6, ip.String())
}

// AddString parses and adds an address or CIDR literal. Unparseable input is
// ignored.
func (b *Builder) AddString(s string) bool {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		ip, network, err := net.ParseCIDR(s)
		if err != nil {
			return false
		}
		if ip.To4() != nil {
			return b.add(FamilyIPv4Nets, network.String())
		}
		return b.add(FamilyIPv6Nets, network.String())
	}
	return b.AddIP(net.ParseIP(s))
}

// AddSet adds every entry of s, keeping its order.
func (b *Builder) AddSet(s Set) {
	for _, f := range Families {
		for _, e := range s.Family(f) {
			b.add(f, e)
		}
	}
}

// Set returns a copy of the accumulated set.
func (b *Builder) Set() Set {
	return b.set.Clone()
}

func (b *Builder) add(family, entry string) bool {
	if b.seen == nil {
		b.seen = make(map[string]struct{})
	}
	key := family + "|" + entry
	if _, dup := b.seen[key]; dup {
		return false
	}
	b.seen[key] = struct{}{}
	b.set.SetFamily(family, append(b.set.Family(family), entry))
	return true
}

// Union merges sets in argument order, keeping first occurrences.
func Union(sets ...Set) Set {
	var b Builder
	for _, s := range sets {
		b.AddSet(s)
	}
	return b.Set()
}

func sameMembers(a, b []string) bool {
	ma, mb := toMap(a), toMap(b)
	if len(ma) != len(mb) {
		return false
	}
	for k := range ma {
		if _, ok := mb[k]; !ok {
			return false
		}
	}
	return true
}

func toMap(entries []string) map[string]struct{} {
	m := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		m[e] = struct{}{}
	}
	return m
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
