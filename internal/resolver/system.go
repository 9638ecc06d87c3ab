package resolver

import (
	"context"
	"net"
	"time"
)

// SystemChannel asks the platform's configured resolver.
type SystemChannel struct {
	// Resolver defaults to net.DefaultResolver.
	Resolver *net.Resolver
	Timeout  time.Duration
}

// Name returns "system".
func (c *SystemChannel) Name() string {
	return "system"
}

// Lookup performs one bounded lookup; the aggressive flag is ignored since
// the platform resolver caches.
func (c *SystemChannel) Lookup(ctx context.Context, host string, _ bool) ([]net.IP, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	resolver := c.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	answers, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(answers))
	for _, a := range answers {
		ips = append(ips, a.IP)
	}
	return ips, nil
}
