package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"
)

// DNS resolves by querying a single name server directly, bypassing the
// system resolver configuration.
type DNS struct {
	// Server is the name server's "host:port".
	Server string
	// Client is used for queries; nil means UDP with the library defaults.
	// Truncated UDP answers are retried over TCP.
	Client *dns.Client
}

// NewDNS returns a resolver for server, which may omit the port (53).
func NewDNS(server string) *DNS {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &DNS{Server: server}
}

// LookupNetIP queries A and AAAA records concurrently and returns IPv4
// answers before IPv6 ones.
func (d *DNS) LookupNetIP(ctx context.Context, host string) ([]netip.Addr, error) {
	if a, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{a.Unmap()}, nil
	}

	var v4, v6 []netip.Addr
	var err4, err6 error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v4, err4 = d.query(gctx, host, dns.TypeA)
		return nil
	})
	g.Go(func() error {
		v6, err6 = d.query(gctx, host, dns.TypeAAAA)
		return nil
	})
	_ = g.Wait()

	addrs := append(v4, v6...)
	if len(addrs) > 0 {
		return addrs, nil
	}
	if err4 != nil && !isNotFound(err4) {
		return nil, err4
	}
	if err6 != nil && !isNotFound(err6) {
		return nil, err6
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, Server: d.Server, IsNotFound: true}
}

func (d *DNS) query(ctx context.Context, host string, qtype uint16) ([]netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)
	m.RecursionDesired = true

	c := d.Client
	if c == nil {
		c = &dns.Client{}
	}
	r, _, err := c.ExchangeContext(ctx, m, d.Server)
	if err == nil && r.Truncated && c.Net != "tcp" {
		tc := *c
		tc.Net = "tcp"
		r, _, err = tc.ExchangeContext(ctx, m, d.Server)
	}
	if err != nil {
		return nil, fmt.Errorf("dns %s %s: %w", dns.TypeToString[qtype], host, err)
	}

	switch r.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, &net.DNSError{Err: "no such host", Name: host, Server: d.Server, IsNotFound: true}
	default:
		return nil, &net.DNSError{Err: dns.RcodeToString[r.Rcode], Name: host, Server: d.Server}
	}

	var addrs []netip.Addr
	for _, rr := range r.Answer {
		var ip net.IP
		switch v := rr.(type) {
		case *dns.A:
			ip = v.A
		case *dns.AAAA:
			ip = v.AAAA
		default:
			continue
		}
		if a, ok := netip.AddrFromSlice(ip); ok {
			addrs = append(addrs, a.Unmap())
		}
	}
	return addrs, nil
}

func isNotFound(err error) bool {
	var de *net.DNSError
	return errors.As(err, &de) && de.IsNotFound
}
