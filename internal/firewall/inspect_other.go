//go:build !linux

package firewall

import (
	"errors"

	"github.com/p4th0r/sitefence/internal/addrs"
)

// TableStatus describes the live sitefence nftables table.
type TableStatus struct {
	Present  bool
	Elements map[string]int
}

var errUnsupported = errors.New("live nftables inspection is only available on Linux")

// InspectTable is unavailable on this platform.
func InspectTable(string) (TableStatus, error) {
	return TableStatus{}, errUnsupported
}

// RemoveTable is unavailable on this platform.
func RemoveTable(string) (bool, error) {
	return false, errUnsupported
}

// CountFlows is unavailable on this platform.
func CountFlows(addrs.Set) (int, error) {
	return 0, errUnsupported
}
