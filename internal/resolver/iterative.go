package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// DefaultMaxAliases bounds how many CNAME targets one lookup follows.
const DefaultMaxAliases = 16

var errNoServers = errors.New("no nameservers configured")

// IterativeChannel queries nameservers directly, repeating each query
// several times to observe rotating answers and re-querying every CNAME
// target on its own.
type IterativeChannel struct {
	// Servers are host:port nameserver addresses, tried round-robin.
	Servers            []string
	Timeout            time.Duration
	Attempts           int
	AggressiveAttempts int
	MaxAliases         int
	// Edges escalates CNAME targets on edge networks to aggressive attempts.
	Edges *EdgeMatcher
}

// SystemNameservers reads the nameservers of a resolv.conf file.
func SystemNameservers(path string) ([]string, error) {
	cfg, err := dns.ClientConfigFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	servers := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		servers = append(servers, net.JoinHostPort(s, cfg.Port))
	}
	return servers, nil
}

// Name returns "iterative".
func (c *IterativeChannel) Name() string {
	return "iterative"
}

// Lookup queries A and AAAA for host and every alias discovered along the
// way. The alias queue is bounded by MaxAliases and a seen set, so CNAME
// loops terminate.
func (c *IterativeChannel) Lookup(ctx context.Context, host string, aggressive bool) ([]net.IP, error) {
	if len(c.Servers) == 0 {
		return nil, errNoServers
	}

	maxAliases := c.MaxAliases
	if maxAliases <= 0 {
		maxAliases = DefaultMaxAliases
	}

	var (
		ips      []net.IP
		lastErr  error
		answered bool
	)
	queue := []string{normalizeName(host)}
	seen := map[string]struct{}{queue[0]: {}}
	expansions := 0

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		attempts := c.attempts(aggressive || c.Edges.Match(name))
		for i := 0; i < attempts; i++ {
			if err := ctx.Err(); err != nil {
				if answered {
					return ips, nil
				}
				return nil, err
			}
			for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
				found, aliases, err := c.exchange(ctx, name, qtype, i)
				if err != nil {
					lastErr = err
					continue
				}
				answered = true
				ips = append(ips, found...)
				for _, alias := range aliases {
					if _, ok := seen[alias]; ok || expansions >= maxAliases {
						continue
					}
					seen[alias] = struct{}{}
					expansions++
					queue = append(queue, alias)
				}
			}
		}
	}

	if !answered && lastErr != nil {
		return nil, lastErr
	}
	return ips, nil
}

func (c *IterativeChannel) attempts(aggressive bool) int {
	n := c.Attempts
	if aggressive && c.AggressiveAttempts > n {
		n = c.AggressiveAttempts
	}
	if n <= 0 {
		n = 1
	}
	return n
}

// exchange sends one query to the nameserver picked by attempt and returns
// the addresses and CNAME targets of the answer section.
func (c *IterativeChannel) exchange(ctx context.Context, name string, qtype uint16, attempt int) (ips []net.IP, aliases []string, err error) {
	server := c.Servers[attempt%len(c.Servers)]

	req := new(dns.Msg)
	req.SetQuestion(dns.Fqdn(name), qtype)
	req.RecursionDesired = true

	client := &dns.Client{
		Timeout: c.Timeout,
		Net:     "udp",
	}

	resp, _, err := client.ExchangeContext(ctx, req, server)
	if err != nil {
		return nil, nil, fmt.Errorf("query %s %s: %w", name, dns.TypeToString[qtype], err)
	}

	// If truncated, retry over TCP
	if resp.Truncated {
		client.Net = "tcp"
		resp, _, err = client.ExchangeContext(ctx, req, server)
		if err != nil {
			return nil, nil, fmt.Errorf("query %s %s over TCP: %w", name, dns.TypeToString[qtype], err)
		}
	}

	ips, aliases = extractAnswer(resp)
	return ips, aliases, nil
}

// extractAnswer collects A/AAAA addresses and CNAME targets.
func extractAnswer(resp *dns.Msg) (ips []net.IP, aliases []string) {
	for _, rr := range resp.Answer {
		switch v := rr.(type) {
		case *dns.A:
			ips = append(ips, v.A)
		case *dns.AAAA:
			ips = append(ips, v.AAAA)
		case *dns.CNAME:
			aliases = append(aliases, normalizeName(v.Target))
		}
	}
	return ips, aliases
}
