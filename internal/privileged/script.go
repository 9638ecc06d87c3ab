// Package privileged builds the single shell script that performs every
// system change of a sync cycle and runs it through the platform's
// authorization tool.
package privileged

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Segment is one command of a privileged script.
type Segment struct {
	Argv []string
	// BestEffort segments may fail without aborting the script. Their output
	// is discarded.
	BestEffort bool
}

// Cmd returns a mandatory segment.
func Cmd(argv ...string) Segment {
	return Segment{Argv: argv}
}

// BestEffort returns a segment whose failure is ignored.
func BestEffort(argv ...string) Segment {
	return Segment{Argv: argv, BestEffort: true}
}

// String renders the segment as quoted shell.
func (s Segment) String() string {
	quoted := make([]string, len(s.Argv))
	for i, a := range s.Argv {
		quoted[i] = Quote(a)
	}
	cmd := strings.Join(quoted, " ")
	if s.BestEffort {
		return "{ " + cmd + " >/dev/null 2>&1 || true; }"
	}
	return cmd
}

// Script is an ordered list of segments executed as one shell invocation.
// Mandatory segments are chained with &&, so the first failure stops the
// script and its exit status is reported.
type Script struct {
	segments []Segment
}

// Add appends segments.
func (s *Script) Add(segs ...Segment) {
	s.segments = append(s.segments, segs...)
}

// Len returns the number of segments.
func (s *Script) Len() int {
	return len(s.segments)
}

// Segments returns a copy of the segments.
func (s *Script) Segments() []Segment {
	out := make([]Segment, len(s.segments))
	copy(out, s.segments)
	return out
}

// String renders the whole script.
func (s *Script) String() string {
	parts := make([]string, len(s.segments))
	for i, seg := range s.segments {
		parts[i] = seg.String()
	}
	return strings.Join(parts, " && ")
}

// Quote single-quotes a shell word.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ValidatePath rejects paths that could not be passed safely to a privileged
// command: relative paths and paths with control characters.
func ValidatePath(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}
	if !filepath.IsAbs(p) {
		return fmt.Errorf("path %q is not absolute", p)
	}
	for _, c := range p {
		if c == 0 || c == '\n' || c == '\r' {
			return fmt.Errorf("path %q contains a control character", p)
		}
	}
	return nil
}

// StagedSuffix is appended to a destination path while its replacement is
// being installed.
const StagedSuffix = ".sitefence-new"

// InstallFile returns the segments that copy src over dst atomically: the
// file is installed next to dst with mode 0644 and then renamed into place.
func InstallFile(src, dst string) ([]Segment, error) {
	for _, p := range []string{src, dst} {
		if err := ValidatePath(p); err != nil {
			return nil, err
		}
	}
	staged := dst + StagedSuffix
	return []Segment{
		Cmd("mkdir", "-p", filepath.Dir(dst)),
		Cmd("install", "-m", "0644", src, staged),
		Cmd("mv", "-f", staged, dst),
	}, nil
}
