// Package conn holds the connection facade returned once a proxy handshake
// succeeds, and the plumbing used to shuttle bytes through it.
package conn

import (
	"net"
	"sync"

	"github.com/segmentio/ksuid"
)

// Meta describes how a tunnel was established.
type Meta struct {
	// Kind is the proxy scheme, e.g. "socks5".
	Kind string
	// ProxyAddr is the selected proxy address.
	ProxyAddr string
	// Target is the destination as requested, "host:port".
	Target string
}

// Conn is an established tunnel. It is a plain net.Conn over the proxy: the
// engine adds no framing and buffers nothing, so Read returns exactly the
// bytes the proxy relays after its handshake reply.
//
// Close closes the underlying transport once; later calls return nil.
type Conn struct {
	net.Conn

	id   ksuid.KSUID
	meta Meta

	closeOnce sync.Once
	closeErr  error
}

// New wraps an established transport.
func New(c net.Conn, meta Meta) *Conn {
	return &Conn{Conn: c, id: ksuid.New(), meta: meta}
}

// ID returns an id unique to this tunnel, for log correlation.
func (c *Conn) ID() string {
	return c.id.String()
}

// Kind returns the proxy scheme used.
func (c *Conn) Kind() string {
	return c.meta.Kind
}

// ProxyAddr returns the proxy address the tunnel runs through.
func (c *Conn) ProxyAddr() string {
	return c.meta.ProxyAddr
}

// Target returns the destination the tunnel was opened to.
func (c *Conn) Target() string {
	return c.meta.Target
}

// Close closes the transport.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
	})
	return c.closeErr
}

type closeWriter interface {
	CloseWrite() error
}

// CloseWrite shuts down the sending side if the transport supports half
// close (TCP, TLS); otherwise it closes the whole connection.
func (c *Conn) CloseWrite() error {
	if cw, ok := c.Conn.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return c.Close()
}

// NetConn returns the underlying transport.
func (c *Conn) NetConn() net.Conn {
	return c.Conn
}
