package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CycleReport is the JSON document written after each sync cycle.
type CycleReport struct {
	Cycle       CycleInfo       `json:"cycle"`
	Resolutions []ResolveEntry  `json:"resolutions"`
	Summary     ReportSummary   `json:"summary"`
	Blocked     BlockedSnapshot `json:"blocked"`
}

// CycleInfo holds metadata about one cycle.
type CycleInfo struct {
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	DurationSecs float64   `json:"duration_seconds"`
	Domains      []string  `json:"domains"`
	Signature    string    `json:"signature"`
	Result       string    `json:"result"`
	Error        string    `json:"error,omitempty"`
	Backend      string    `json:"backend"`
	Transport    string    `json:"transport"`
}

// ResolveEntry is one channel lookup of one host.
type ResolveEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Host       string    `json:"host"`
	Channel    string    `json:"channel"`
	Aggressive bool      `json:"aggressive,omitempty"`
	Addresses  []string  `json:"addresses"`
	Error      string    `json:"error,omitempty"`
}

// ReportSummary holds counters for the cycle.
type ReportSummary struct {
	HostsChanged    bool `json:"hosts_changed"`
	AnchorChanged   bool `json:"anchor_changed"`
	Applied         bool `json:"applied"`
	NewlyBlocked    int  `json:"newly_blocked"`
	ChannelFailures int  `json:"channel_failures"`
}

// BlockedSnapshot is the installed address table.
type BlockedSnapshot struct {
	IPv4     []string `json:"ipv4"`
	IPv6     []string `json:"ipv6"`
	IPv4Nets []string `json:"ipv4_nets"`
	IPv6Nets []string `json:"ipv6_nets"`
}

// WriteReport writes the report to path atomically.
func WriteReport(path string, report CycleReport) error {
	if report.Resolutions == nil {
		report.Resolutions = []ResolveEntry{}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cycle report: %w", err)
	}

	// Write atomically: write to .tmp, then rename
	dir := filepath.Dir(path)
	tmpPath := path + ".tmp"

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating report directory %s: %w", dir, err)
	}

	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("writing temporary report file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		// Fallback: if rename fails (e.g., cross-device), just write directly
		os.Remove(tmpPath)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("writing report file: %w", err)
		}
	}

	return nil
}
