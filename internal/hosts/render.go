// Package hosts renders the managed blocking section of a hosts file.
package hosts

import (
	"strings"

	"github.com/p4th0r/sitefence/internal/domain"
)

// Section markers. Everything between them, inclusive, belongs to sitefence.
const (
	BeginMarker = "# >>> sitefence BEGIN"
	EndMarker   = "# <<< sitefence END"
)

// Null-route targets written for every blocked host.
const (
	nullIPv4 = "0.0.0.0"
	nullIPv6 = "::"
)

// Render returns the hosts file text with any existing managed section
// replaced by one blocking every expanded host of domains. With an empty
// domain list the stripped text is returned; when the original carries no
// section it is returned unchanged.
//
// Render is idempotent for a fixed domain list.
func Render(original string, domains []string) string {
	stripped := Strip(original)
	if len(domains) == 0 {
		return stripped
	}

	base := strings.TrimRight(stripped, "\r\n\t ")

	var b strings.Builder
	if base != "" {
		b.WriteString(base)
		b.WriteString("\n\n")
	}
	b.WriteString(Section(domains))
	return b.String()
}

// Section renders the marker-delimited block for domains, ending in a newline.
func Section(domains []string) string {
	var b strings.Builder
	b.WriteString(BeginMarker)
	b.WriteByte('\n')
	for _, h := range domain.ExpandAll(domains) {
		b.WriteString(nullIPv4 + " " + h + "\n")
		b.WriteString(nullIPv6 + " " + h + "\n")
	}
	b.WriteString(EndMarker)
	b.WriteByte('\n')
	return b.String()
}

// Strip removes every managed section from text. A begin marker without a
// matching end marker removes everything after it. Blank lines around a
// removed section collapse into a single separator. Text without a section is
// returned as is.
func Strip(text string) string {
	if !HasSection(text) {
		return text
	}

	lines := strings.Split(text, "\n")
	var kept []string
	for i := 0; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != BeginMarker {
			kept = append(kept, lines[i])
			continue
		}

		end := len(lines)
		for j := i + 1; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == EndMarker {
				end = j
				break
			}
		}

		kept = trimTrailingBlank(kept)
		rest := end + 1
		for rest < len(lines) && strings.TrimSpace(lines[rest]) == "" {
			rest++
		}
		if len(kept) > 0 && rest < len(lines) {
			kept = append(kept, "")
		}
		i = rest - 1
	}

	kept = trimTrailingBlank(kept)
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, "\n") + "\n"
}

// HasSection reports whether text contains a managed section begin marker.
func HasSection(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == BeginMarker {
			return true
		}
	}
	return false
}

// Hosts lists the hostnames named inside the managed section, in file order.
func Hosts(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	inside := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == BeginMarker:
			inside = true
			continue
		case line == EndMarker:
			inside = false
			continue
		case !inside || line == "" || strings.HasPrefix(line, "#"):
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		for _, h := range fields[1:] {
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	return out
}

func trimTrailingBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
