package testutil

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/die-net/proxied/internal/conn"
	"github.com/die-net/proxied/internal/socks4"
	"github.com/die-net/proxied/internal/socks5"
)

// StartSOCKS5Proxy serves a minimal SOCKS5 CONNECT proxy. A non-nil auth
// requires username/password.
func StartSOCKS5Proxy(t *testing.T, ctx context.Context, auth *socks5.Auth) net.Listener {
	t.Helper()

	return StartServer(t, ctx, func(c net.Conn) {
		if err := socks5.ServerNegotiate(c, auth); err != nil {
			return
		}
		req, err := socks5.ServerReadRequest(c)
		if err != nil {
			return
		}
		if req.Cmd != socks5.CmdConnect {
			_ = socks5.WriteReply(c, socks5.RepCommandNotSupported, req.Atyp)
			return
		}

		d := net.Dialer{}
		dst, err := d.DialContext(ctx, "tcp", req.Address())
		if err != nil {
			_ = socks5.WriteReply(c, socks5.RepConnectionRefused, req.Atyp)
			return
		}
		if err := socks5.WriteSuccessReply(c, dst.LocalAddr()); err != nil {
			_ = dst.Close()
			return
		}
		relay(ctx, c, c, dst)
	})
}

// StartSOCKS4Proxy serves a minimal SOCKS4/4a CONNECT proxy. If userID is
// non-empty requests with another user id are rejected.
func StartSOCKS4Proxy(t *testing.T, ctx context.Context, userID string) net.Listener {
	t.Helper()

	return StartServer(t, ctx, func(c net.Conn) {
		br := bufio.NewReader(c)
		req, err := socks4.ServerReadRequest(br)
		if err != nil {
			return
		}
		if req.Cmd != socks4.CmdConnect || (userID != "" && req.UserID != userID) {
			_ = socks4.WriteReply(c, socks4.RepRejected)
			return
		}

		d := net.Dialer{}
		dst, err := d.DialContext(ctx, "tcp", req.Address())
		if err != nil {
			_ = socks4.WriteReply(c, socks4.RepRejected)
			return
		}
		if err := socks4.WriteReply(c, socks4.RepGranted); err != nil {
			_ = dst.Close()
			return
		}
		relay(ctx, c, br, dst)
	})
}

// StartHTTPProxy serves an HTTP CONNECT proxy. If auth is non-empty it must
// match the Proxy-Authorization header exactly. Cleanup is registered on t.
func StartHTTPProxy(t *testing.T, auth string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(ConnectHandler(auth))
	t.Cleanup(srv.Close)
	return srv
}

// StartHTTPSProxy is StartHTTPProxy behind TLS; use srv.Client() for a
// transport that trusts its certificate.
func StartHTTPSProxy(t *testing.T, auth string) *httptest.Server {
	t.Helper()

	srv := httptest.NewTLSServer(ConnectHandler(auth))
	t.Cleanup(srv.Close)
	return srv
}

// ConnectHandler tunnels CONNECT requests by hijacking the client
// connection and relaying it to the requested host.
func ConnectHandler(auth string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodConnect {
			http.Error(w, "CONNECT only", http.StatusMethodNotAllowed)
			return
		}
		if auth != "" && r.Header.Get("Proxy-Authorization") != auth {
			w.Header().Set("Proxy-Authenticate", `Basic realm="proxied"`)
			w.WriteHeader(http.StatusProxyAuthRequired)
			return
		}

		d := net.Dialer{}
		dst, err := d.DialContext(r.Context(), "tcp", r.Host)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		hj, ok := w.(http.Hijacker)
		if !ok {
			_ = dst.Close()
			http.Error(w, "hijacking not supported", http.StatusInternalServerError)
			return
		}
		c, brw, err := hj.Hijack()
		if err != nil {
			_ = dst.Close()
			return
		}
		defer c.Close()

		if _, err := io.WriteString(c, "HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
			_ = dst.Close()
			return
		}
		relay(context.Background(), c, brw.Reader, dst)
	})
}

// relay copies between the client (reading through r, which may hold
// buffered bytes) and dst until both sides finish.
func relay(ctx context.Context, c net.Conn, r io.Reader, dst net.Conn) {
	client := &readerConn{Conn: c, r: r}
	_ = conn.CopyBidirectional(ctx, client, halfCloser(dst))
}

type readerConn struct {
	net.Conn
	r io.Reader
}

func (c *readerConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *readerConn) CloseWrite() error {
	return halfCloser(c.Conn).CloseWrite()
}

type fullCloser struct {
	net.Conn
}

func (c fullCloser) CloseWrite() error {
	return c.Close()
}

func halfCloser(c net.Conn) conn.HalfCloser {
	if hc, ok := c.(conn.HalfCloser); ok {
		return hc
	}
	return fullCloser{c}
}
