package anchor

import (
	"time"

	"github.com/p4th0r/sitefence/internal/addrs"
)

// Policy tunes how fresh resolutions are combined with the previous anchor.
type Policy struct {
	// FreshnessWindow is the maximum age of a previous snapshot that may
	// still contribute addresses.
	FreshnessWindow time.Duration
	// MaxEntries caps each family of a rolling union.
	MaxEntries int
}

// DefaultPolicy keeps a week of history and at most 4096 entries per family.
var DefaultPolicy = Policy{
	FreshnessWindow: 7 * 24 * time.Hour,
	MaxEntries:      4096,
}

// Merge decides the address tables to install.
//
//   - An empty fresh set keeps the previous tables, so a transient resolution
//     outage never unblocks anything.
//   - A previous snapshot for the same signature that is within the freshness
//     window (or carries no timestamp) is rolled forward: fresh entries first,
//     then previous entries not already present, while the family holds fewer
//     than MaxEntries.
//   - Anything else installs the fresh set as is.
//
// Fresh entries are never dropped by the cap.
func Merge(fresh addrs.Set, prev Snapshot, signature string, now time.Time, p Policy) addrs.Set {
	if fresh.Empty() {
		return prev.Addresses.Clone()
	}
	if prev.Signature != signature || prev.Age(now) > p.FreshnessWindow {
		return fresh.Clone()
	}

	var out addrs.Set
	for _, f := range addrs.Families {
		out.SetFamily(f, rollingUnion(fresh.Family(f), prev.Addresses.Family(f), p.MaxEntries))
	}
	return out
}

func rollingUnion(fresh, prev []string, limit int) []string {
	seen := make(map[string]struct{}, len(fresh)+len(prev))
	var out []string
	for _, e := range fresh {
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	for _, e := range prev {
		if limit > 0 && len(out) >= limit {
			break
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
