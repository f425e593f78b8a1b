// Package resolver provides the DNS collaborators used to turn a proxy host
// name into candidate addresses.
//
// Three implementations are provided: System (the Go resolver), DNS (direct
// queries to a chosen name server using github.com/miekg/dns), and Cache, a
// TTL cache that wraps either of them.
package resolver

import (
	"context"
	"net"
	"net/netip"
)

// Resolver returns the addresses of host in preference order.
type Resolver interface {
	LookupNetIP(ctx context.Context, host string) ([]netip.Addr, error)
}

// Func adapts a function to Resolver.
type Func func(ctx context.Context, host string) ([]netip.Addr, error)

func (f Func) LookupNetIP(ctx context.Context, host string) ([]netip.Addr, error) {
	return f(ctx, host)
}

// System resolves with the Go standard resolver.
type System struct {
	// Resolver is used if non-nil; otherwise net.DefaultResolver.
	Resolver *net.Resolver
}

func (s System) LookupNetIP(ctx context.Context, host string) ([]netip.Addr, error) {
	r := s.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	for i, a := range addrs {
		addrs[i] = a.Unmap()
	}
	return addrs, nil
}
