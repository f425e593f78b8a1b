package dialer

import (
	"net"

	"github.com/die-net/proxied/internal/proxy"
	"github.com/die-net/proxied/internal/proxyerr"
	"github.com/die-net/proxied/internal/socks4"
	"github.com/die-net/proxied/internal/socks5"
	"github.com/die-net/proxied/internal/target"
)

// handshakeFunc negotiates a tunnel to t over an open transport. It must
// leave c positioned right after the proxy's reply on success.
type handshakeFunc func(c net.Conn, t target.Target, creds *proxy.Credentials) error

// https shares the HTTP driver; the TLS upgrade happens before it runs.
var handshakes = [...]handshakeFunc{
	proxy.HTTP:   httpConnect,
	proxy.HTTPS:  httpConnect,
	proxy.SOCKS4: socks4Connect,
	proxy.SOCKS5: socks5Connect,
}

// Handshake runs kind's handshake over c. It neither closes c nor watches a
// context; callers that need cancellation use ProxyDialer.
func Handshake(kind proxy.Kind, c net.Conn, t target.Target, creds *proxy.Credentials) error {
	if !kind.Valid() {
		return proxyerr.Errorf(proxyerr.Parse, "", "%v: %w", kind, proxyerr.ErrInvalidScheme)
	}
	if !t.Valid() {
		return proxyerr.Errorf(proxyerr.Parse, kind.String(), "target: %w", proxyerr.ErrInvalidAddress)
	}
	return handshakes[kind](c, t, creds)
}

func socks4Connect(c net.Conn, t target.Target, creds *proxy.Credentials) error {
	var userID string
	if creds != nil {
		userID = creds.Username
	}
	return socks4.ClientConnect(c, t, userID)
}

func socks5Connect(c net.Conn, t target.Target, creds *proxy.Credentials) error {
	var auth *socks5.Auth
	if creds != nil {
		auth = &socks5.Auth{Username: creds.Username, Password: creds.Password}
	}
	return socks5.ClientDial(c, auth, t)
}
