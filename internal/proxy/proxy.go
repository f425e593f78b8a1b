package proxy

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/die-net/proxied/internal/proxyerr"
	"github.com/die-net/proxied/internal/resolver"
)

// Credentials are the optional username and password sent to the proxy. An
// empty password is allowed.
type Credentials struct {
	Username string
	Password string
}

// Proxy is a parsed proxy descriptor. A *Proxy must not be copied after
// first use; it is safe for concurrent use by multiple goroutines.
type Proxy struct {
	Kind        Kind
	Host        string
	Port        uint16
	Credentials *Credentials
	// RefreshURL, when set, is requested by Refresh to ask the proxy provider
	// to rotate the proxy's exit address.
	RefreshURL string

	candidates atomic.Pointer[[]netip.AddrPort]
	cursor     atomic.Uint64
}

// New returns a descriptor for host:port. If port is 0 the kind's default
// port is used. An IP literal host is its own single candidate; any other
// host must be resolved with Resolve before Select.
func New(kind Kind, host string, port uint16, creds *Credentials) (*Proxy, error) {
	if !kind.Valid() {
		return nil, proxyerr.Errorf(proxyerr.Parse, "", "%v: %w", kind, proxyerr.ErrInvalidScheme)
	}
	if port == 0 {
		port = kind.DefaultPort()
		if port == 0 {
			return nil, proxyerr.Errorf(proxyerr.Parse, kind.String(), "%w", proxyerr.ErrMissingPort)
		}
	}
	host = strings.TrimSuffix(strings.TrimSpace(host), ".")
	if host == "" || strings.ContainsAny(host, " /@[]") {
		return nil, proxyerr.Errorf(proxyerr.Parse, kind.String(), "host %q: %w", host, proxyerr.ErrInvalidAddress)
	}

	p := &Proxy{Kind: kind, Host: host, Port: port, Credentials: creds}
	if a, err := netip.ParseAddr(host); err == nil {
		p.SetCandidates([]netip.Addr{a})
	}
	return p, nil
}

// Parse parses a descriptor of the form
//
//	scheme://[user[:password]@]host[:port][\[refresh-url\]]
//
// where scheme is one of http, https, socks4 or socks5. A missing port takes
// the scheme's default. Parse does no resolution.
func Parse(s string) (*Proxy, error) {
	s, refresh := splitRefresh(s)

	u, err := url.Parse(s)
	if err != nil {
		return nil, proxyerr.Errorf(proxyerr.Parse, "", "%w: %w", proxyerr.ErrInvalidAddress, err)
	}
	if u.Scheme == "" {
		return nil, proxyerr.Errorf(proxyerr.Parse, "", "missing scheme: %w", proxyerr.ErrInvalidScheme)
	}
	kind, err := ParseKind(u.Scheme)
	if err != nil {
		return nil, err
	}
	if u.Opaque != "" || u.Hostname() == "" {
		return nil, proxyerr.Errorf(proxyerr.Parse, kind.String(), "missing host: %w", proxyerr.ErrInvalidAddress)
	}
	if u.Path != "" && u.Path != "/" {
		return nil, proxyerr.Errorf(proxyerr.Parse, kind.String(), "path should be empty: %w", proxyerr.ErrInvalidAddress)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, proxyerr.Errorf(proxyerr.Parse, kind.String(), "unexpected query or fragment: %w", proxyerr.ErrInvalidAddress)
	}

	var port uint16
	if ps := u.Port(); ps != "" {
		n, err := strconv.ParseUint(ps, 10, 16)
		if err != nil || n == 0 {
			return nil, proxyerr.Errorf(proxyerr.Parse, kind.String(), "port %q: %w", ps, proxyerr.ErrInvalidAddress)
		}
		port = uint16(n)
	} else if strings.HasSuffix(u.Host, ":") {
		return nil, proxyerr.Errorf(proxyerr.Parse, kind.String(), "empty port: %w", proxyerr.ErrMissingPort)
	}

	var creds *Credentials
	if u.User != nil {
		pass, _ := u.User.Password()
		creds = &Credentials{Username: u.User.Username(), Password: pass}
	}

	p, err := New(kind, u.Hostname(), port, creds)
	if err != nil {
		return nil, err
	}
	p.RefreshURL = refresh
	return p, nil
}

// splitRefresh strips a trailing "[scheme://...]" refresh URL. Bracketed
// IPv6 hosts never contain "://", which keeps them apart.
func splitRefresh(s string) (rest, refresh string) {
	if !strings.HasSuffix(s, "]") {
		return s, ""
	}
	i := strings.LastIndexByte(s, '[')
	if i < 0 || !strings.Contains(s[i:], "://") {
		return s, ""
	}
	return s[:i], s[i+1 : len(s)-1]
}

// Address returns the proxy's "host:port".
func (p *Proxy) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(int(p.Port)))
}

// IsLiteral reports whether Host is an IP literal.
func (p *Proxy) IsLiteral() bool {
	_, err := netip.ParseAddr(p.Host)
	return err == nil
}

func (p *Proxy) url(redact bool) string {
	u := url.URL{Scheme: p.Kind.String(), Host: p.Address()}
	if c := p.Credentials; c != nil {
		switch {
		case redact:
			u.User = url.UserPassword(c.Username, "xxxxx")
		case c.Password != "":
			u.User = url.UserPassword(c.Username, c.Password)
		default:
			u.User = url.User(c.Username)
		}
	}
	s := u.String()
	if p.RefreshURL != "" {
		s += "[" + p.RefreshURL + "]"
	}
	return s
}

// String returns the descriptor in the form accepted by Parse, including
// credentials.
func (p *Proxy) String() string {
	return p.url(false)
}

// Redacted is like String but masks the password; suitable for logs.
func (p *Proxy) Redacted() string {
	return p.url(true)
}

// SetCandidates replaces the candidate list. The rotation cursor is kept, so
// rotation continues across refreshes.
func (p *Proxy) SetCandidates(addrs []netip.Addr) {
	list := make([]netip.AddrPort, 0, len(addrs))
	for _, a := range addrs {
		list = append(list, netip.AddrPortFrom(a.Unmap(), p.Port))
	}
	p.candidates.Store(&list)
}

// Candidates returns a copy of the current candidate list.
func (p *Proxy) Candidates() []netip.AddrPort {
	cp := p.candidates.Load()
	if cp == nil {
		return nil
	}
	return append([]netip.AddrPort(nil), (*cp)...)
}

// Resolved reports whether the descriptor has a candidate list.
func (p *Proxy) Resolved() bool {
	return p.candidates.Load() != nil
}

// Resolve looks up Host with r and replaces the candidate list. IP literal
// hosts are not looked up. An empty answer is a resolution error.
func (p *Proxy) Resolve(ctx context.Context, r resolver.Resolver) error {
	if a, err := netip.ParseAddr(p.Host); err == nil {
		p.SetCandidates([]netip.Addr{a})
		return nil
	}
	if r == nil {
		r = resolver.System{}
	}
	addrs, err := r.LookupNetIP(ctx, p.Host)
	if err != nil {
		return proxyerr.Errorf(proxyerr.Resolution, p.Kind.String(), "lookup %s: %w", p.Host, err)
	}
	if len(addrs) == 0 {
		return &proxyerr.Error{Kind: proxyerr.Resolution, Proto: p.Kind.String(), Reason: fmt.Sprintf("lookup %s: no addresses", p.Host)}
	}
	p.SetCandidates(addrs)
	return nil
}

// Select returns the next candidate in round-robin order. The cursor grows
// without bound and is only ever used modulo the list length.
func (p *Proxy) Select() (netip.AddrPort, error) {
	cp := p.candidates.Load()
	if cp == nil || len(*cp) == 0 {
		return netip.AddrPort{}, proxyerr.New(proxyerr.NoCandidates, p.Kind.String(), p.Host)
	}
	list := *cp
	n := p.cursor.Add(1) - 1
	return list[n%uint64(len(list))], nil
}
