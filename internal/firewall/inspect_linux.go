//go:build linux

package firewall

import (
	"fmt"
	"net"

	"github.com/google/nftables"
	"github.com/p4th0r/sitefence/internal/addrs"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// TableStatus describes the live sitefence nftables table.
type TableStatus struct {
	Present bool
	// Elements maps set names to their element count. Interval sets count
	// ranges, not addresses.
	Elements map[string]int
}

// InspectTable reads the live table through netlink. It needs CAP_NET_ADMIN.
func InspectTable(name string) (TableStatus, error) {
	status := TableStatus{Elements: make(map[string]int)}

	conn, err := nftables.New()
	if err != nil {
		return status, fmt.Errorf("creating nftables connection: %w", err)
	}

	tables, err := conn.ListTablesOfFamily(nftables.TableFamilyINet)
	if err != nil {
		return status, fmt.Errorf("listing nftables tables: %w", err)
	}

	var table *nftables.Table
	for _, t := range tables {
		if t.Name == name {
			table = t
			break
		}
	}
	if table == nil {
		return status, nil
	}
	status.Present = true

	sets, err := conn.GetSets(table)
	if err != nil {
		return status, fmt.Errorf("listing sets of %s: %w", name, err)
	}
	for _, set := range sets {
		elems, err := conn.GetSetElements(set)
		if err != nil {
			return status, fmt.Errorf("listing elements of %s: %w", set.Name, err)
		}
		n := 0
		for _, e := range elems {
			if !e.IntervalEnd {
				n++
			}
		}
		status.Elements[set.Name] = n
	}
	return status, nil
}

// RemoveTable deletes the sitefence table directly through netlink. It
// reports whether a table was found. Idempotent.
func RemoveTable(name string) (bool, error) {
	conn, err := nftables.New()
	if err != nil {
		return false, fmt.Errorf("creating nftables connection: %w", err)
	}

	tables, err := conn.ListTablesOfFamily(nftables.TableFamilyINet)
	if err != nil {
		return false, fmt.Errorf("listing nftables tables: %w", err)
	}

	found := false
	for _, t := range tables {
		if t.Name == name {
			conn.DelTable(t)
			found = true
		}
	}
	if !found {
		return false, nil
	}
	if err := conn.Flush(); err != nil {
		return false, fmt.Errorf("deleting table %s: %w", name, err)
	}
	return true, nil
}

// CountFlows counts conntrack flows whose original destination is blocked
// by s.
func CountFlows(s addrs.Set) (int, error) {
	m := newMatcher(s)

	count := 0
	for _, family := range []netlink.InetFamily{unix.AF_INET, unix.AF_INET6} {
		flows, err := netlink.ConntrackTableList(netlink.ConntrackTable, family)
		if err != nil {
			return 0, fmt.Errorf("listing conntrack table: %w", err)
		}
		for _, f := range flows {
			if m.contains(f.Forward.DstIP) {
				count++
			}
		}
	}
	return count, nil
}

type matcher struct {
	ips  map[string]struct{}
	nets []*net.IPNet
}

func newMatcher(s addrs.Set) *matcher {
	m := &matcher{ips: make(map[string]struct{})}
	for _, ip := range append(append([]string{}, s.IPv4...), s.IPv6...) {
		if parsed := net.ParseIP(ip); parsed != nil {
			m.ips[parsed.String()] = struct{}{}
		}
	}
	for _, cidr := range append(append([]string{}, s.IPv4Nets...), s.IPv6Nets...) {
		if _, n, err := net.ParseCIDR(cidr); err == nil {
			m.nets = append(m.nets, n)
		}
	}
	return m
}

func (m *matcher) contains(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if _, ok := m.ips[ip.String()]; ok {
		return true
	}
	for _, n := range m.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
