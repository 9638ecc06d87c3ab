// Package daemon runs enforcement sync cycles periodically and on demand.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/p4th0r/sitefence/internal/addrs"
	"github.com/p4th0r/sitefence/internal/domain"
	"github.com/p4th0r/sitefence/internal/engine"
	"github.com/p4th0r/sitefence/internal/logging"
	"github.com/p4th0r/sitefence/internal/metrics"
)

// ErrCycleInProgress is returned by Sync when another cycle is running.
var ErrCycleInProgress = errors.New("sync cycle already in progress")

const resultSkipped = "skipped"

// Source returns the current raw domain list. It is called once per cycle.
type Source func() ([]string, error)

// Config configures a Daemon.
type Config struct {
	Engine *engine.Engine
	Source Source
	// Interval between periodic cycles; raised to MinInterval when lower.
	Interval    time.Duration
	MinInterval time.Duration
	// ReportPath, when set, receives a JSON report after every cycle.
	ReportPath string
	Logger     *logging.StderrLogger
}

// Status describes the most recent cycle.
type Status struct {
	Domains    []string  `json:"domains"`
	Signature  string    `json:"signature"`
	LastRun    time.Time `json:"last_run"`
	LastResult string    `json:"last_result,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	Entries    int       `json:"entries"`
	Cycles     int       `json:"cycles"`
	// Idle is true once an empty list has been applied; periodic cycles are
	// skipped until the list is non-empty again.
	Idle bool `json:"idle"`
}

// Daemon serializes sync cycles. At most one cycle runs at a time.
type Daemon struct {
	cfg     Config
	cycle   sync.Mutex
	trigger chan struct{}

	mu          sync.RWMutex
	status      Status
	lastApplied []string // nil until a cycle succeeds
}

// New creates a Daemon.
func New(cfg Config) *Daemon {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Daemon{
		cfg:     cfg,
		trigger: make(chan struct{}, 1),
	}
}

// Run performs a cycle immediately, then one per period and one per
// Trigger, until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	period := d.period()
	d.cfg.Logger.Info("Daemon started (interval %s)", period)
	d.runScheduled(ctx, false)

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.cfg.Logger.Info("Daemon stopping")
			return nil
		case <-ticker.C:
			d.runScheduled(ctx, true)
		case <-d.trigger:
			d.runScheduled(ctx, false)
		}
	}
}

// Trigger requests a cycle from the Run loop. It never blocks; a request
// made while another is pending is merged into it.
func (d *Daemon) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Sync runs one cycle now and returns its result.
func (d *Daemon) Sync(ctx context.Context) (*engine.Result, error) {
	if !d.cycle.TryLock() {
		metrics.Cycles.WithLabelValues(resultSkipped).Inc()
		return nil, ErrCycleInProgress
	}
	defer d.cycle.Unlock()
	return d.runCycle(ctx, false)
}

// Status returns a copy of the current status.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := d.status
	s.Domains = append([]string(nil), d.status.Domains...)
	return s
}

func (d *Daemon) period() time.Duration {
	if d.cfg.Interval < d.cfg.MinInterval {
		return d.cfg.MinInterval
	}
	return d.cfg.Interval
}

func (d *Daemon) runScheduled(ctx context.Context, periodic bool) {
	if !d.cycle.TryLock() {
		d.cfg.Logger.Debug("Cycle already running, dropping request")
		metrics.Cycles.WithLabelValues(resultSkipped).Inc()
		return
	}
	defer d.cycle.Unlock()
	// Errors are recorded in the status and logged by runCycle.
	_, _ = d.runCycle(ctx, periodic)
}

// runCycle must be called with d.cycle held.
func (d *Daemon) runCycle(ctx context.Context, periodic bool) (*engine.Result, error) {
	raw, err := d.cfg.Source()
	if err != nil {
		err = fmt.Errorf("loading domain list: %w", err)
		d.cfg.Logger.Error("%v", err)
		d.record(nil, nil, err, time.Now(), time.Now())
		return nil, err
	}
	domains := domain.NormalizeList(raw)

	if periodic && len(domains) == 0 && d.idle() {
		d.cfg.Logger.Debug("No active domains and enforcement already cleared, skipping")
		metrics.Cycles.WithLabelValues(resultSkipped).Inc()
		return nil, nil
	}

	d.cfg.Logger.CycleStart(domains)
	start := time.Now()
	res, err := d.cfg.Engine.Apply(ctx, domains)
	end := time.Now()
	d.record(domains, res, err, start, end)

	switch {
	case engine.IsCanceled(err):
		d.cfg.Logger.Warn("Authorization canceled; nothing changed")
	case err != nil:
		d.cfg.Logger.Error("Sync failed: %v", err)
	default:
		d.cfg.Logger.CycleDone(res.Applied, res.HostsChanged, res.AnchorChanged,
			res.Addresses.Len(), res.NewlyBlocked.Len(), res.Duration)
	}
	return res, err
}

func (d *Daemon) idle() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastApplied != nil && len(d.lastApplied) == 0
}

func (d *Daemon) record(domains []string, res *engine.Result, err error, start, end time.Time) {
	result := engine.Outcome(res, err)
	metrics.Cycles.WithLabelValues(result).Inc()
	metrics.CycleDuration.Observe(end.Sub(start).Seconds())

	d.mu.Lock()
	d.status.Cycles++
	d.status.LastRun = end
	d.status.LastResult = result
	d.status.LastError = ""
	if err != nil {
		d.status.LastError = err.Error()
	}
	if res != nil && !d.cfg.Engine.DryRun {
		d.lastApplied = append([]string{}, res.Domains...)
		d.status.Domains = res.Domains
		d.status.Signature = res.Signature
		d.status.Entries = res.Addresses.Len()
		d.status.Idle = len(res.Domains) == 0
		for _, f := range addrs.Families {
			metrics.BlockedEntries.WithLabelValues(f).Set(float64(len(res.Addresses.Family(f))))
		}
	}
	d.mu.Unlock()

	if d.cfg.ReportPath == "" {
		return
	}
	report := d.cfg.Engine.BuildReport(domains, res, err, start, end)
	if werr := logging.WriteReport(d.cfg.ReportPath, report); werr != nil {
		d.cfg.Logger.Warn("Writing cycle report: %v", werr)
	}
}
