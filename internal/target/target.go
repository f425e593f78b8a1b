// Package target describes the destination a caller wants to reach through a
// proxy.
package target

import (
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/die-net/proxied/internal/proxyerr"
)

// Target is either an unresolved domain name or a literal address, plus a
// port in 1-65535. The zero Target is invalid.
type Target struct {
	domain string
	addr   netip.Addr
	port   uint16
}

// New returns a Target for host and port. host may be a domain name or an IP
// literal (IPv6 without brackets); IP literals produce an address target.
func New(host string, port uint16) (Target, error) {
	if port == 0 {
		return Target{}, proxyerr.Errorf(proxyerr.Parse, "", "target %q: port 0: %w", host, proxyerr.ErrInvalidAddress)
	}
	if a, err := netip.ParseAddr(host); err == nil {
		if a.Zone() != "" {
			return Target{}, proxyerr.Errorf(proxyerr.Parse, "", "target %q: zoned address: %w", host, proxyerr.ErrInvalidAddress)
		}
		return Target{addr: a.Unmap(), port: port}, nil
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" || strings.ContainsAny(host, " /@[]\x00") {
		return Target{}, proxyerr.Errorf(proxyerr.Parse, "", "target host %q: %w", host, proxyerr.ErrInvalidAddress)
	}
	return Target{domain: host, port: port}, nil
}

// Parse parses "host:port" as accepted by net.SplitHostPort.
func Parse(hostport string) (Target, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Target{}, proxyerr.Errorf(proxyerr.Parse, "", "target %q: %w: %w", hostport, proxyerr.ErrInvalidAddress, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Target{}, proxyerr.Errorf(proxyerr.Parse, "", "target %q: port: %w", hostport, proxyerr.ErrInvalidAddress)
	}
	return New(host, uint16(port))
}

// FromAddrPort returns an address target.
func FromAddrPort(ap netip.AddrPort) (Target, error) {
	if !ap.Addr().IsValid() {
		return Target{}, proxyerr.Errorf(proxyerr.Parse, "", "target %v: %w", ap, proxyerr.ErrInvalidAddress)
	}
	return New(ap.Addr().String(), ap.Port())
}

// IsDomain reports whether t names an unresolved host.
func (t Target) IsDomain() bool {
	return t.domain != ""
}

// Domain returns the domain name, or "" for an address target.
func (t Target) Domain() string {
	return t.domain
}

// Addr returns the literal address, or the zero Addr for a domain target.
func (t Target) Addr() netip.Addr {
	return t.addr
}

// Host returns the domain name or the textual address.
func (t Target) Host() string {
	if t.IsDomain() {
		return t.domain
	}
	return t.addr.String()
}

// Port returns the destination port.
func (t Target) Port() uint16 {
	return t.port
}

// Valid reports whether t was built by one of the constructors.
func (t Target) Valid() bool {
	return t.port != 0 && (t.domain != "" || t.addr.IsValid())
}

// String returns "host:port", bracketing IPv6 addresses.
func (t Target) String() string {
	return net.JoinHostPort(t.Host(), strconv.Itoa(int(t.port)))
}
