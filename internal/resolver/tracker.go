package resolver

import (
	"net"
	"sync"
	"time"
)

// Resolution records a single channel lookup of a host.
type Resolution struct {
	Timestamp  time.Time
	Host       string
	Channel    string
	Aggressive bool
	IPs        []net.IP
	Err        error
}

// Tracker keeps the resolutions of one Resolve call. It is safe for
// concurrent use.
type Tracker struct {
	mu          sync.RWMutex
	resolutions []Resolution
	hostToIPs   map[string]map[string]struct{} // host → set of IP strings
	now         func() time.Time
}

// NewTracker creates a new Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		hostToIPs: make(map[string]map[string]struct{}),
		now:       time.Now,
	}
}

// RecordResolution appends a lookup result and updates the host map.
func (t *Tracker) RecordResolution(host, channel string, aggressive bool, ips []net.IP, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resolutions = append(t.resolutions, Resolution{
		Timestamp:  t.now(),
		Host:       host,
		Channel:    channel,
		Aggressive: aggressive,
		IPs:        ips,
		Err:        err,
	})

	if len(ips) == 0 {
		return
	}
	if t.hostToIPs[host] == nil {
		t.hostToIPs[host] = make(map[string]struct{})
	}
	for _, ip := range ips {
		t.hostToIPs[host][ip.String()] = struct{}{}
	}
}

// IPsForHost returns every address seen for host, across channels.
func (t *Tracker) IPsForHost(host string) []net.IP {
	t.mu.RLock()
	defer t.mu.RUnlock()

	set, ok := t.hostToIPs[host]
	if !ok {
		return nil
	}
	ips := make([]net.IP, 0, len(set))
	for s := range set {
		ips = append(ips, net.ParseIP(s))
	}
	return ips
}

// Resolutions returns a copy of the lookup log.
func (t *Tracker) Resolutions() []Resolution {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Resolution, len(t.resolutions))
	copy(out, t.resolutions)
	return out
}

// Stats returns the number of lookups, failed lookups and hosts that
// produced at least one address.
func (t *Tracker) Stats() (lookups, failures, resolvedHosts int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	lookups = len(t.resolutions)
	for _, r := range t.resolutions {
		if r.Err != nil {
			failures++
		}
	}
	resolvedHosts = len(t.hostToIPs)
	return
}
