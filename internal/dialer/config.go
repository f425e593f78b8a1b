package dialer

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/die-net/proxied/internal/resolver"
)

type Config struct {
	// DialTimeout bounds the TCP connect to the proxy when the default
	// transport is used.
	DialTimeout time.Duration
	// NegotiationTimeout, if non-zero, bounds TLS and the proxy handshake.
	NegotiationTimeout time.Duration
	KeepAlive          net.KeepAliveConfig

	// Resolver resolves proxy host names; nil means resolver.System.
	Resolver resolver.Resolver
	// Transport opens connections to proxy addresses; nil means a direct
	// dialer built from DialTimeout and KeepAlive.
	Transport ContextDialer
	// TLSConfig is used for https proxies. ServerName defaults to the proxy
	// host.
	TLSConfig *tls.Config
	// Logger receives Debug-level handshake traces; nil means the logrus
	// standard logger.
	Logger logrus.FieldLogger
}
