package domain

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ParseListFile reads a domain list file. Each non-empty line that is not a
// "#" comment is normalized; entries that do not normalize are skipped. A
// trailing "# comment" on an entry line is ignored.
func ParseListFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening domain list %q: %w", path, err)
	}
	defer f.Close()

	var raws []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		raws = append(raws, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading domain list %q: %w", path, err)
	}

	return NormalizeList(raws), nil
}

// Collect merges inline entries with the entries of every list file, in that
// order, and returns the normalized, deduplicated result.
func Collect(inline []string, files []string) ([]string, error) {
	raws := append([]string{}, inline...)
	for _, path := range files {
		entries, err := ParseListFile(path)
		if err != nil {
			return nil, err
		}
		raws = append(raws, entries...)
	}
	return NormalizeList(raws), nil
}
