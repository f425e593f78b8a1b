package dialer

import (
	"context"
	"crypto/tls"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/die-net/proxied/internal/conn"
	"github.com/die-net/proxied/internal/proxy"
	"github.com/die-net/proxied/internal/proxyerr"
	"github.com/die-net/proxied/internal/resolver"
	"github.com/die-net/proxied/internal/target"
)

// Dialer mirrors the net.Dialer interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

var _ Dialer = (*ProxyDialer)(nil)

// aLongTimeAgo is a deadline in the past, used to unblock pending I/O.
var aLongTimeAgo = time.Unix(1, 0)

// New parses proxyURL and constructs a ProxyDialer for it.
//
// Supported schemes:
//   - http://[user:pass@]host[:port]
//   - https://[user:pass@]host[:port]
//   - socks4://[user@]host[:port]
//   - socks5://[user:pass@]host[:port]
//
// A missing port takes the scheme's default (80, 443, 1080, 1080).
func New(cfg Config, proxyURL string) (*ProxyDialer, error) {
	p, err := proxy.Parse(proxyURL)
	if err != nil {
		return nil, err
	}
	return NewProxyDialer(cfg, p), nil
}

// ProxyDialer establishes tunnels through one proxy descriptor. It is safe
// for concurrent use; concurrent connects share the descriptor's round-robin
// rotation.
type ProxyDialer struct {
	cfg       Config
	proxy     *proxy.Proxy
	transport ContextDialer
	resolver  resolver.Resolver
	log       logrus.FieldLogger
}

// NewProxyDialer returns a ProxyDialer for p. p may be shared with other
// dialers; they then share its rotation.
func NewProxyDialer(cfg Config, p *proxy.Proxy) *ProxyDialer {
	d := &ProxyDialer{
		cfg:       cfg,
		proxy:     p,
		transport: cfg.Transport,
		resolver:  cfg.Resolver,
		log:       cfg.Logger,
	}
	if d.transport == nil {
		d.transport = NewDirectDialer(cfg)
	}
	if d.resolver == nil {
		d.resolver = resolver.System{}
	}
	if d.log == nil {
		d.log = logrus.StandardLogger()
	}
	return d
}

// Proxy returns the descriptor.
func (d *ProxyDialer) Proxy() *proxy.Proxy {
	return d.proxy
}

// Connect establishes a tunnel to t.
//
// If the descriptor has no candidate list yet it is resolved first. Every
// failure is returned as-is for this attempt; nothing is retried.
func (d *ProxyDialer) Connect(ctx context.Context, t target.Target) (*conn.Conn, error) {
	kind := d.proxy.Kind.String()
	if !t.Valid() {
		return nil, proxyerr.Errorf(proxyerr.Parse, kind, "target: %w", proxyerr.ErrInvalidAddress)
	}
	if ctx.Err() != nil {
		return nil, canceled(ctx, kind)
	}

	if !d.proxy.Resolved() {
		if err := d.proxy.Resolve(ctx, d.resolver); err != nil {
			if ctx.Err() != nil {
				return nil, canceled(ctx, kind)
			}
			return nil, err
		}
	}
	addr, err := d.proxy.Select()
	if err != nil {
		return nil, err
	}

	log := d.log.WithFields(logrus.Fields{
		"proxy":  d.proxy.Redacted(),
		"addr":   addr.String(),
		"target": t.String(),
	})

	raw, err := d.transport.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		if ctx.Err() != nil {
			return nil, canceled(ctx, kind)
		}
		log.WithError(err).Debug("proxy dial failed")
		return nil, proxyerr.Wrap(proxyerr.Transport, kind, err)
	}

	c, err := d.establish(ctx, raw, t)
	if err != nil {
		log.WithError(err).Debug("proxy handshake failed")
		return nil, err
	}

	tunnel := conn.New(c, conn.Meta{Kind: kind, ProxyAddr: addr.String(), Target: t.String()})
	log.WithField("conn_id", tunnel.ID()).Debug("proxy tunnel established")
	return tunnel, nil
}

// establish runs the TLS upgrade (https only) and the handshake over raw. On
// any failure, including cancellation, the transport is closed exactly once
// before returning.
func (d *ProxyDialer) establish(ctx context.Context, raw net.Conn, t target.Target) (net.Conn, error) {
	if d.cfg.NegotiationTimeout > 0 {
		_ = raw.SetDeadline(time.Now().Add(d.cfg.NegotiationTimeout))
	}
	// Expiring the deadline unblocks a handshake stuck in Read or Write
	// without closing the transport behind the caller's back.
	stop := context.AfterFunc(ctx, func() {
		_ = raw.SetDeadline(aLongTimeAgo)
	})

	c, err := d.negotiate(raw, t)
	if !stop() {
		_ = c.Close()
		return nil, canceled(ctx, d.proxy.Kind.String())
	}
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	if d.cfg.NegotiationTimeout > 0 {
		_ = raw.SetDeadline(time.Time{})
	}
	return c, nil
}

// negotiate returns the outermost stream built so far, even when it fails,
// so the caller closes the right layer.
func (d *ProxyDialer) negotiate(raw net.Conn, t target.Target) (net.Conn, error) {
	c := raw
	if d.proxy.Kind == proxy.HTTPS {
		tlsConn := tls.Client(raw, d.tlsConfig())
		if err := tlsConn.Handshake(); err != nil {
			return tlsConn, proxyerr.Errorf(proxyerr.Transport, "https", "tls handshake: %w", err)
		}
		c = tlsConn
	}
	return c, Handshake(d.proxy.Kind, c, t, d.proxy.Credentials)
}

func (d *ProxyDialer) tlsConfig() *tls.Config {
	var cfg *tls.Config
	if d.cfg.TLSConfig != nil {
		cfg = d.cfg.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = d.proxy.Host
	}
	return cfg
}

// DialContext parses address as "host:port" and connects to it through the
// proxy. Only TCP networks are supported. The returned net.Conn is a
// *conn.Conn.
func (d *ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, proxyerr.New(proxyerr.InvalidTarget, d.proxy.Kind.String(), "unsupported network "+network)
	}
	t, err := target.Parse(address)
	if err != nil {
		return nil, err
	}
	c, err := d.Connect(ctx, t)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Dial is DialContext with a background context.
func (d *ProxyDialer) Dial(network, address string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, address)
}

func canceled(ctx context.Context, kind string) error {
	return proxyerr.Wrap(proxyerr.Canceled, kind, context.Cause(ctx))
}
