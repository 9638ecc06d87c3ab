package resolver

import (
	"strings"
)

// DefaultEdgeSuffixes name multi-CDN edge networks whose answers rotate
// quickly across large address pools.
var DefaultEdgeSuffixes = []string{
	"akamai.net",
	"akamaiedge.net",
	"akamaihd.net",
	"edgekey.net",
	"edgesuite.net",
	"cloudfront.net",
	"fastly.net",
	"fastlylb.net",
	"cdn.cloudflare.net",
	"azureedge.net",
	"azurefd.net",
	"llnwd.net",
	"googlevideo.com",
	"gvt1.com",
	"fbcdn.net",
	"cdninstagram.com",
	"ttlivecdn.com",
	"tiktokcdn.com",
}

// EdgeMatcher recognizes hosts served from a CDN edge network. A nil
// matcher matches nothing.
type EdgeMatcher struct {
	suffixes []string // stored with a leading dot, e.g. ".akamaiedge.net"
}

// NewEdgeMatcher creates a matcher for the given suffixes. A suffix matches
// itself and every name below it.
func NewEdgeMatcher(suffixes []string) *EdgeMatcher {
	m := &EdgeMatcher{suffixes: make([]string, 0, len(suffixes))}
	for _, s := range suffixes {
		s = normalizeName(strings.TrimPrefix(s, "*."))
		if s == "" {
			continue
		}
		m.suffixes = append(m.suffixes, "."+s)
	}
	return m
}

// Match reports whether host lies under one of the edge suffixes.
func (m *EdgeMatcher) Match(host string) bool {
	if m == nil {
		return false
	}
	host = normalizeName(host)
	for _, suffix := range m.suffixes {
		if host == suffix[1:] || strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// normalizeName lowercases and strips the trailing dot from a DNS name.
func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimSuffix(name, ".")
	return name
}
