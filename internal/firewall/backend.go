// Package firewall renders and parses the sitefence anchor file and supplies
// the privileged commands that load it.
package firewall

import (
	"fmt"
	"runtime"

	"github.com/p4th0r/sitefence/internal/addrs"
	"github.com/p4th0r/sitefence/internal/anchor"
	"github.com/p4th0r/sitefence/internal/privileged"
)

// Backend names accepted by New.
const (
	BackendAuto = "auto"
	BackendNFT  = "nft"
	BackendPF   = "pf"
)

// Backend knows one packet filter's anchor format and commands.
type Backend interface {
	Name() string
	// RenderAnchor returns the anchor file contents for s. Loading the
	// result always yields exactly s, including the empty set.
	RenderAnchor(s anchor.Snapshot) string
	// ParseAnchor reads back a file produced by RenderAnchor. Unknown lines
	// are ignored, so a damaged header never hides the tables.
	ParseAnchor(text string) anchor.Snapshot
	// LoadSegments loads the anchor file at path into the packet filter.
	LoadSegments(path string) []privileged.Segment
	// FlushSegments removes every sitefence rule and table.
	FlushSegments() []privileged.Segment
	// KillStateSegments drops established connection state toward s.
	KillStateSegments(s addrs.Set) []privileged.Segment
	// FlushDNSCacheSegments clears the system resolver cache.
	FlushDNSCacheSegments() []privileged.Segment
}

// New returns the backend for name. "auto" picks pf on macOS and nft
// elsewhere. anchorName is the pf anchor and is ignored by nft.
func New(name, anchorName string) (Backend, error) {
	if name == "" || name == BackendAuto {
		name = BackendNFT
		if runtime.GOOS == "darwin" {
			name = BackendPF
		}
	}
	switch name {
	case BackendNFT:
		return &NFTBackend{Table: DefaultTable}, nil
	case BackendPF:
		if anchorName == "" {
			anchorName = DefaultPFAnchor
		}
		return &PFBackend{Anchor: anchorName}, nil
	default:
		return nil, fmt.Errorf("unknown firewall backend %q (use auto, nft, or pf)", name)
	}
}
