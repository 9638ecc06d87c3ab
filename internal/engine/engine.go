// Package engine runs the enforcement sync transaction: it turns a domain
// list into a hosts file section plus a firewall anchor and installs both
// with one privileged command.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/p4th0r/sitefence/internal/addrs"
	"github.com/p4th0r/sitefence/internal/anchor"
	"github.com/p4th0r/sitefence/internal/domain"
	"github.com/p4th0r/sitefence/internal/firewall"
	"github.com/p4th0r/sitefence/internal/hosts"
	"github.com/p4th0r/sitefence/internal/logging"
	"github.com/p4th0r/sitefence/internal/metrics"
	"github.com/p4th0r/sitefence/internal/privileged"
	"github.com/p4th0r/sitefence/internal/resolver"
)

// Resolver produces the fresh address set for a domain list.
type Resolver interface {
	Resolve(ctx context.Context, domains []string) *resolver.Result
}

// Paths locates the files the engine reads and replaces.
type Paths struct {
	Hosts  string
	Anchor string
	// TempDir holds staging files; empty means os.TempDir().
	TempDir string
}

// Engine applies domain lists. Apply calls must not overlap; callers
// serialize them.
type Engine struct {
	Paths    Paths
	Resolver Resolver
	Backend  firewall.Backend
	Runner   privileged.Runner
	Policy   anchor.Policy
	// Timeout bounds the privileged command, including the time the user
	// spends on the authorization prompt.
	Timeout time.Duration
	// DryRun builds the script but neither runs it nor verifies.
	DryRun bool
	Logger *logging.StderrLogger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Result describes one completed Apply.
type Result struct {
	Domains   []string
	Signature string
	// Addresses is the address set installed in the anchor.
	Addresses addrs.Set
	// NewlyBlocked holds entries of Addresses absent from the previous
	// anchor; their connection state was killed.
	NewlyBlocked  addrs.Set
	HostsChanged  bool
	AnchorChanged bool
	// Applied is false when nothing needed to change and no privileged
	// command ran.
	Applied bool
	Script  string
	// Resolution is nil when the domain list was empty.
	Resolution *resolver.Result
	Duration   time.Duration
}

// Apply converges the hosts file and the firewall anchor on raw, which may
// hold unnormalized entries. An empty list removes all enforcement.
//
// A resolution outage never unblocks: an empty fresh resolution keeps the
// previous anchor tables along with the signature and timestamp they were
// recorded under. Apply performs at most one privileged call and
// never retries. Staging files are removed on every path.
func (e *Engine) Apply(ctx context.Context, raw []string) (*Result, error) {
	start := e.now()
	domains := domain.NormalizeList(raw)
	res := &Result{Domains: domains, Signature: domain.Signature(domains)}

	original, err := os.ReadFile(e.Paths.Hosts)
	if err != nil {
		return nil, &ApplyError{Kind: KindRead, Path: e.Paths.Hosts, Err: err}
	}
	newHosts := hosts.Render(string(original), domains)
	res.HostsChanged = newHosts != string(original)

	var fresh addrs.Set
	if len(domains) > 0 {
		res.Resolution = e.Resolver.Resolve(ctx, domains)
		fresh = addrs.WithAggregates(res.Resolution.Addresses)
	}

	prev := e.previousSnapshot()
	next := anchor.Snapshot{Signature: res.Signature, UpdatedAt: start}
	if len(domains) > 0 {
		next.Addresses = anchor.Merge(fresh, prev, res.Signature, start, e.Policy)
		if fresh.Empty() {
			// The kept tables still belong to the previous domain list.
			next.Signature, next.UpdatedAt = prev.Signature, prev.UpdatedAt
		}
	}
	res.Addresses = next.Addresses
	// An empty anchor with an empty signature is the cleared state, so
	// clearing twice is a no-op.
	res.AnchorChanged = next.Signature != prev.Signature ||
		!next.Addresses.Equal(prev.Addresses)
	res.NewlyBlocked = res.Addresses.Minus(prev.Addresses)

	if !res.HostsChanged && !res.AnchorChanged {
		res.Duration = e.now().Sub(start)
		return res, nil
	}

	var staged []string
	defer func() {
		for _, p := range staged {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				e.logger().Warn("removing staging file %s: %v", p, err)
			}
		}
	}()
	stage := func(pattern, content string) (string, error) {
		p, err := writeTemp(e.Paths.TempDir, pattern, content)
		if p != "" {
			staged = append(staged, p)
		}
		return p, err
	}

	var script privileged.Script
	if res.HostsChanged {
		p, err := stage("sitefence-hosts-*", newHosts)
		if err != nil {
			return nil, &ApplyError{Kind: KindWrite, Path: p, Err: err}
		}
		segs, err := privileged.InstallFile(p, e.Paths.Hosts)
		if err != nil {
			return nil, &ApplyError{Kind: KindWrite, Path: e.Paths.Hosts, Err: err}
		}
		script.Add(segs...)
		script.Add(e.Backend.FlushDNSCacheSegments()...)
	}

	if res.AnchorChanged {
		p, err := stage("sitefence-anchor-*", e.Backend.RenderAnchor(next))
		if err != nil {
			return nil, &ApplyError{Kind: KindWrite, Path: p, Err: err}
		}
		segs, err := privileged.InstallFile(p, e.Paths.Anchor)
		if err != nil {
			return nil, &ApplyError{Kind: KindWrite, Path: e.Paths.Anchor, Err: err}
		}
		script.Add(segs...)
		if len(domains) == 0 {
			script.Add(e.Backend.FlushSegments()...)
		} else {
			script.Add(e.Backend.LoadSegments(e.Paths.Anchor)...)
		}
		if !res.NewlyBlocked.Empty() {
			script.Add(e.Backend.KillStateSegments(res.NewlyBlocked)...)
		}
	}
	res.Script = script.String()

	if e.DryRun {
		e.logger().DryRun(res.Script)
		res.Duration = e.now().Sub(start)
		return res, nil
	}

	runCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	metrics.PrivilegedRuns.WithLabelValues(e.Runner.Name()).Inc()
	if err := e.Runner.Run(runCtx, res.Script); err != nil {
		return nil, &ApplyError{Kind: KindPrivileged, Err: err}
	}
	res.Applied = true

	if err := e.verify(len(domains) > 0); err != nil {
		return nil, err
	}

	res.Duration = e.now().Sub(start)
	return res, nil
}

// Snapshot returns the state recorded in the current anchor file.
func (e *Engine) Snapshot() (anchor.Snapshot, error) {
	data, err := os.ReadFile(e.Paths.Anchor)
	if err != nil {
		return anchor.Snapshot{}, err
	}
	return e.Backend.ParseAnchor(string(data)), nil
}

// previousSnapshot reads the current anchor. A missing or unreadable anchor
// is treated as empty.
func (e *Engine) previousSnapshot() anchor.Snapshot {
	snap, err := e.Snapshot()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			e.logger().Debug("ignoring unreadable anchor %s: %v", e.Paths.Anchor, err)
		}
		return anchor.Snapshot{}
	}
	return snap
}

// verify re-reads the hosts file and checks the managed section is present
// exactly when domains are active.
func (e *Engine) verify(active bool) error {
	data, err := os.ReadFile(e.Paths.Hosts)
	if err != nil {
		return &ApplyError{Kind: KindVerify, Path: e.Paths.Hosts, Err: err}
	}
	has := hosts.HasSection(string(data))
	switch {
	case active && !has:
		return &ApplyError{Kind: KindVerify, Path: e.Paths.Hosts, Err: errSectionMissing}
	case !active && has:
		return &ApplyError{Kind: KindVerify, Path: e.Paths.Hosts, Err: errSectionPresent}
	}
	return nil
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) logger() *logging.StderrLogger {
	if e.Logger == nil {
		return logging.Discard()
	}
	return e.Logger
}

// writeTemp writes content to a new file in dir and returns its path. The
// path is returned even on write failure so the caller can remove it.
func writeTemp(dir, pattern, content string) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("creating staging file: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return f.Name(), fmt.Errorf("writing staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		return f.Name(), fmt.Errorf("closing staging file: %w", err)
	}
	return f.Name(), nil
}
