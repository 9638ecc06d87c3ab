package engine

import (
	"time"

	"github.com/p4th0r/sitefence/internal/logging"
)

// Cycle results as recorded in reports and the cycles metric.
const (
	ResultApplied   = "applied"
	ResultUnchanged = "unchanged"
	ResultDryRun    = "dry-run"
	ResultCanceled  = "canceled"
	ResultFailed    = "failed"
)

// Outcome classifies the result of one Apply call.
func Outcome(res *Result, err error) string {
	switch {
	case IsCanceled(err):
		return ResultCanceled
	case err != nil:
		return ResultFailed
	case res.Applied:
		return ResultApplied
	case res.Script != "":
		return ResultDryRun
	default:
		return ResultUnchanged
	}
}

// BuildReport assembles the cycle report for one Apply call. res is nil when
// err is non-nil; domains then names the list the cycle was asked to apply.
func (e *Engine) BuildReport(domains []string, res *Result, err error, start, end time.Time) logging.CycleReport {
	report := logging.CycleReport{
		Cycle: logging.CycleInfo{
			StartTime:    start,
			EndTime:      end,
			DurationSecs: end.Sub(start).Seconds(),
			Domains:      domains,
			Result:       Outcome(res, err),
			Backend:      e.Backend.Name(),
			Transport:    e.Runner.Name(),
		},
	}
	if err != nil {
		report.Cycle.Error = err.Error()
		return report
	}

	report.Cycle.Domains = res.Domains
	report.Cycle.Signature = res.Signature
	report.Summary = logging.ReportSummary{
		HostsChanged:  res.HostsChanged,
		AnchorChanged: res.AnchorChanged,
		Applied:       res.Applied,
		NewlyBlocked:  res.NewlyBlocked.Len(),
	}
	report.Blocked = logging.BlockedSnapshot{
		IPv4:     res.Addresses.IPv4,
		IPv6:     res.Addresses.IPv6,
		IPv4Nets: res.Addresses.IPv4Nets,
		IPv6Nets: res.Addresses.IPv6Nets,
	}

	if res.Resolution == nil || res.Resolution.Tracker == nil {
		return report
	}
	for _, r := range res.Resolution.Tracker.Resolutions() {
		entry := logging.ResolveEntry{
			Timestamp:  r.Timestamp,
			Host:       r.Host,
			Channel:    r.Channel,
			Aggressive: r.Aggressive,
			Addresses:  make([]string, 0, len(r.IPs)),
		}
		for _, ip := range r.IPs {
			entry.Addresses = append(entry.Addresses, ip.String())
		}
		if r.Err != nil {
			entry.Error = r.Err.Error()
			report.Summary.ChannelFailures++
		}
		report.Resolutions = append(report.Resolutions, entry)
	}
	return report
}
