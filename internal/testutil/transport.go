package testutil

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
)

// CountingConn records how many times Close was called.
type CountingConn struct {
	net.Conn
	closes atomic.Int32
}

func (c *CountingConn) Close() error {
	c.closes.Add(1)
	return c.Conn.Close()
}

// Closes returns the number of Close calls so far.
func (c *CountingConn) Closes() int {
	return int(c.closes.Load())
}

// CountingDialer dials TCP and hands out CountingConns so tests can check
// that every transport is closed exactly once.
type CountingDialer struct {
	Dialer net.Dialer

	mu    sync.Mutex
	conns []*CountingConn
	addrs []string
}

func (d *CountingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	c, err := d.Dialer.DialContext(ctx, network, address)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addrs = append(d.addrs, address)
	if err != nil {
		return nil, err
	}
	cc := &CountingConn{Conn: c}
	d.conns = append(d.conns, cc)
	return cc, nil
}

// Conns returns the connections dialed so far.
func (d *CountingDialer) Conns() []*CountingConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*CountingConn(nil), d.conns...)
}

// Addrs returns every address dialed, including failed attempts.
func (d *CountingDialer) Addrs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.addrs...)
}
