// Package domain turns user-entered site strings into canonical hostnames.
package domain

import (
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

// Localhost is the only single-label name Normalize accepts.
const Localhost = "localhost"

// Normalize canonicalizes a raw user-entered string (bare host, URL, or
// host:port) into a lowercase hostname. The second return value is false when
// the input cannot be turned into a plausible hostname.
//
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))

	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, '@'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, ".")

	if s == "" {
		return "", false
	}

	if !isASCII(s) {
		ascii, err := idna.Lookup.ToASCII(s)
		if err != nil {
			return "", false
		}
		s = strings.ToLower(ascii)
	}

	if s == Localhost {
		return s, true
	}
	if !validHostname(s) {
		return "", false
	}
	return s, true
}

// NormalizeList normalizes every entry, drops the ones that fail and removes
// duplicates while keeping first-seen order.
func NormalizeList(raws []string) []string {
	seen := make(map[string]struct{}, len(raws))
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		d, ok := Normalize(raw)
		if !ok {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

// Expand returns the hostnames covered by a normalized domain: the domain
// itself followed by its "www." peer. The peer of "www.example.com" is
// "example.com".
func Expand(d string) []string {
	if d == Localhost {
		return []string{d}
	}
	if bare, ok := strings.CutPrefix(d, "www."); ok {
		if strings.Contains(bare, ".") {
			return []string{d, bare}
		}
		return []string{d}
	}
	return []string{d, "www." + d}
}

// ExpandAll expands every domain and returns the union in first-seen order.
func ExpandAll(domains []string) []string {
	seen := make(map[string]struct{}, len(domains)*2)
	out := make([]string, 0, len(domains)*2)
	for _, d := range domains {
		for _, h := range Expand(d) {
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	return out
}

// Signature returns a deterministic fingerprint of a domain list: the sorted,
// deduplicated entries joined by commas. The empty list has the empty
// signature.
func Signature(domains []string) string {
	uniq := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		uniq[d] = struct{}{}
	}
	sorted := make([]string, 0, len(uniq))
	for d := range uniq {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func validHostname(s string) bool {
	if len(s) > 253 || !strings.Contains(s, ".") || strings.Contains(s, "..") {
		return false
	}
	for _, c := range s {
		if !((c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '.') {
			return false
		}
	}
	for _, label := range strings.Split(s, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
	}
	return true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
