package resolver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/miekg/dns"
)

// DefaultDoHEndpoints are public RFC 8484 resolvers.
var DefaultDoHEndpoints = []string{
	"https://cloudflare-dns.com/dns-query",
	"https://dns.google/dns-query",
	"https://dns.quad9.net/dns-query",
}

// DefaultClientSubnets are EDNS client-subnet hints from different regions,
// used to sample edge answers other locations would receive.
var DefaultClientSubnets = []string{
	"8.8.8.0/24",
	"81.2.69.0/24",
	"103.86.96.0/24",
	"177.43.35.0/24",
	"196.25.1.0/24",
}

const dohMediaType = "application/dns-message"

// DoHChannel queries DNS-over-HTTPS endpoints with wire-format messages.
// Hosts on an edge network are sampled with client-subnet hints.
type DoHChannel struct {
	Endpoints          []string
	Client             *http.Client
	Timeout            time.Duration
	Attempts           int
	AggressiveAttempts int
	// ClientSubnets are CIDR hints sent in aggressive mode.
	ClientSubnets []string
	Edges         *EdgeMatcher
}

// Name returns "doh".
func (c *DoHChannel) Name() string {
	return "doh"
}

// Lookup queries every endpoint for A and AAAA. When the host is aggressive,
// or the first answers CNAME into an edge network, it repeats the queries
// once per client-subnet hint for AggressiveAttempts rounds.
func (c *DoHChannel) Lookup(ctx context.Context, host string, aggressive bool) ([]net.IP, error) {
	if len(c.Endpoints) == 0 {
		return nil, errors.New("no DoH endpoints configured")
	}

	var (
		ips      []net.IP
		lastErr  error
		answered bool
	)
	query := func(subnet *net.IPNet) {
		for _, ep := range c.Endpoints {
			for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
				if ctx.Err() != nil {
					return
				}
				found, aliases, err := c.exchange(ctx, ep, host, qtype, subnet)
				if err != nil {
					lastErr = err
					continue
				}
				answered = true
				ips = append(ips, found...)
				for _, a := range aliases {
					if c.Edges.Match(a) {
						aggressive = true
					}
				}
			}
		}
	}

	plain := c.Attempts
	if plain <= 0 {
		plain = 1
	}
	for i := 0; i < plain; i++ {
		query(nil)
	}

	if aggressive {
		subnets := parseSubnets(c.ClientSubnets)
		for i := 0; i < c.AggressiveAttempts; i++ {
			query(nil)
			for _, s := range subnets {
				query(s)
			}
		}
	}

	if !answered {
		if lastErr == nil {
			lastErr = ctx.Err()
		}
		return nil, lastErr
	}
	return ips, nil
}

// exchange performs one RFC 8484 GET request.
func (c *DoHChannel) exchange(ctx context.Context, endpoint, host string, qtype uint16, subnet *net.IPNet) (ips []net.IP, aliases []string, err error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), qtype)
	msg.RecursionDesired = true
	msg.Id = 0
	if subnet != nil {
		msg.Extra = append(msg.Extra, clientSubnetOPT(subnet))
	}

	packed, err := msg.Pack()
	if err != nil {
		return nil, nil, fmt.Errorf("packing query: %w", err)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("dns", base64.RawURLEncoding.EncodeToString(packed))
	u.RawQuery = q.Encode()

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", dohMediaType)

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("querying %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("%s returned status %d", u.Host, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, dns.MaxMsgSize))
	if err != nil {
		return nil, nil, fmt.Errorf("reading response from %s: %w", u.Host, err)
	}

	reply := new(dns.Msg)
	if err := reply.Unpack(body); err != nil {
		return nil, nil, fmt.Errorf("unpacking response from %s: %w", u.Host, err)
	}

	ips, aliases = extractAnswer(reply)
	return ips, aliases, nil
}

// clientSubnetOPT builds an OPT record carrying an EDNS client-subnet hint.
func clientSubnetOPT(subnet *net.IPNet) *dns.OPT {
	opt := &dns.OPT{
		Hdr: dns.RR_Header{
			Name:   ".",
			Rrtype: dns.TypeOPT,
		},
	}
	opt.SetUDPSize(dns.DefaultMsgSize)

	ones, _ := subnet.Mask.Size()
	ecs := &dns.EDNS0_SUBNET{
		Code:          dns.EDNS0SUBNET,
		SourceNetmask: uint8(ones),
		SourceScope:   0,
	}
	if v4 := subnet.IP.To4(); v4 != nil {
		ecs.Family = 1
		ecs.Address = v4
	} else {
		ecs.Family = 2
		ecs.Address = subnet.IP
	}
	opt.Option = append(opt.Option, ecs)
	return opt
}

func parseSubnets(cidrs []string) []*net.IPNet {
	var out []*net.IPNet
	for _, c := range cidrs {
		if _, n, err := net.ParseCIDR(c); err == nil {
			out = append(out, n)
		}
	}
	return out
}
