package dialer

import (
	"context"
	"net"
	"net/url"

	xproxy "golang.org/x/net/proxy"

	"github.com/die-net/proxied/internal/proxy"
)

var _ xproxy.ContextDialer = (*ProxyDialer)(nil)

// RegisterSchemes makes golang.org/x/net/proxy.FromURL return ProxyDialers
// for the http, https and socks4 schemes. FromURL handles socks5 itself and
// never consults the registry for it.
//
// The forward dialer FromURL is given becomes the transport, overriding
// cfg.Transport.
func RegisterSchemes(cfg Config) {
	for _, k := range proxy.Kinds {
		if k == proxy.SOCKS5 {
			continue
		}
		xproxy.RegisterDialerType(k.String(), func(u *url.URL, forward xproxy.Dialer) (xproxy.Dialer, error) {
			c := cfg
			if forward != nil {
				c.Transport = forwardDialer{forward}
			}
			return New(c, u.String())
		})
	}
}

// forwardDialer adapts an x/net/proxy Dialer to ContextDialer.
type forwardDialer struct {
	d xproxy.Dialer
}

func (f forwardDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if cd, ok := f.d.(xproxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}
	return f.d.Dial(network, address)
}
