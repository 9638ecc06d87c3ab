// Package anchor keeps the firewall anchor state that survives between sync
// cycles: the blocked address tables plus the domain signature and timestamp
// they were built for.
package anchor

import (
	"strconv"
	"strings"
	"time"

	"github.com/p4th0r/sitefence/internal/addrs"
)

// Header lines written at the top of every anchor file.
const (
	GeneratedLine   = "# generated by sitefence; do not edit"
	SignaturePrefix = "# signature: "
	UpdatedAtPrefix = "# updated-at: "
	NoAddressesLine = "# no resolvable addresses"
)

// Snapshot is the state parsed from, or rendered into, an anchor file.
type Snapshot struct {
	Addresses addrs.Set
	Signature string
	// UpdatedAt is the zero time when the anchor carried no timestamp.
	UpdatedAt time.Time
}

// Age returns how long ago the snapshot was written. A snapshot without a
// timestamp has age zero.
func (s Snapshot) Age(now time.Time) time.Duration {
	if s.UpdatedAt.IsZero() {
		return 0
	}
	return now.Sub(s.UpdatedAt)
}

// RenderHeader returns the comment header for s, one line each, ending in a
// newline.
func RenderHeader(s Snapshot) string {
	var b strings.Builder
	b.WriteString(GeneratedLine + "\n")
	b.WriteString(SignaturePrefix + s.Signature + "\n")
	if !s.UpdatedAt.IsZero() {
		b.WriteString(UpdatedAtPrefix + strconv.FormatInt(s.UpdatedAt.Unix(), 10) + "\n")
	}
	if s.Addresses.Empty() {
		b.WriteString(NoAddressesLine + "\n")
	}
	return b.String()
}

// staleEpoch stands in for a timestamp that could not be parsed. It is older
// than any freshness window, so the tables are kept but never rolled forward.
var staleEpoch = time.Unix(0, 0)

// ParseHeader extracts the signature and timestamp from anchor text. Missing
// lines yield the empty signature and the zero time; a malformed timestamp
// yields the Unix epoch.
func ParseHeader(text string) (signature string, updatedAt time.Time) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, SignaturePrefix):
			signature = strings.TrimSpace(strings.TrimPrefix(line, SignaturePrefix))
		case strings.HasPrefix(line, UpdatedAtPrefix):
			raw := strings.TrimSpace(strings.TrimPrefix(line, UpdatedAtPrefix))
			epoch, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				updatedAt = staleEpoch
				continue
			}
			updatedAt = time.Unix(epoch, 0)
		}
	}
	return signature, updatedAt
}
