// Package resolver gathers the addresses a hostname may currently resolve
// to by sampling several independent DNS channels and taking the union.
package resolver

import (
	"context"
	"net"
	"sync"

	"github.com/p4th0r/sitefence/internal/addrs"
	"github.com/p4th0r/sitefence/internal/domain"
	"github.com/p4th0r/sitefence/internal/logging"
	"github.com/p4th0r/sitefence/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// Channel is one independent way of resolving a host. Lookup returns every
// address observed; partial results come with a nil error. An error means
// the channel produced nothing.
type Channel interface {
	Name() string
	Lookup(ctx context.Context, host string, aggressive bool) ([]net.IP, error)
}

// Resolver queries every channel for every host and unions the results.
type Resolver struct {
	channels    []Channel
	edges       *EdgeMatcher
	concurrency int
	logger      *logging.StderrLogger
}

// Config holds the collaborators of a Resolver.
type Config struct {
	Channels []Channel
	Edges    *EdgeMatcher
	// Concurrency bounds the number of hosts resolved at once.
	Concurrency int
	Logger      *logging.StderrLogger
}

// New creates a Resolver.
func New(cfg Config) *Resolver {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Resolver{
		channels:    cfg.Channels,
		edges:       cfg.Edges,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
}

// Result is the outcome of one Resolve call.
type Result struct {
	Addresses addrs.Set
	Tracker   *Tracker
}

// Resolve expands domains to their hosts, queries every channel for each
// host and returns the union of all non-loopback addresses in host then
// channel order. Channel failures are absorbed. Every lookup has finished
// when Resolve returns.
func (r *Resolver) Resolve(ctx context.Context, domains []string) *Result {
	hosts := domain.ExpandAll(domains)
	tracker := NewTracker()

	// results[i][j] holds the answer of channel j for host i.
	results := make([][][]net.IP, len(hosts))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)
	for i, host := range hosts {
		g.Go(func() error {
			aggressive := r.edges.Match(host)
			perChannel := make([][]net.IP, len(r.channels))
			for j, ch := range r.channels {
				if ctx.Err() != nil {
					break
				}
				ips, err := ch.Lookup(ctx, host, aggressive)
				tracker.RecordResolution(host, ch.Name(), aggressive, ips, err)
				if err != nil {
					metrics.ChannelFailures.WithLabelValues(ch.Name()).Inc()
					r.logger.Debug("resolve %s via %s: %v", host, ch.Name(), err)
				}
				perChannel[j] = ips
			}
			mu.Lock()
			results[i] = perChannel
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var b addrs.Builder
	for _, perChannel := range results {
		for _, ips := range perChannel {
			for _, ip := range ips {
				b.AddIP(ip)
			}
		}
	}

	lookups, failures, resolved := tracker.Stats()
	r.logger.Debug("resolved %d/%d hosts (%d lookups, %d failed)", resolved, len(hosts), lookups, failures)

	return &Result{Addresses: b.Set(), Tracker: tracker}
}
