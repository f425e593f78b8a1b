package socks4

import (
	"bufio"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/proxied/internal/proxyerr"
	"github.com/die-net/proxied/internal/target"
)

func mustTarget(t *testing.T, hostport string) target.Target {
	t.Helper()
	tg, err := target.Parse(hostport)
	require.NoError(t, err)
	return tg
}

func TestRequestBytes(t *testing.T) {
	t.Parallel()

	req, err := NewRequest(mustTarget(t, "10.1.2.3:80"), "bob")
	require.NoError(t, err)
	require.Equal(t, []byte{0x04, 0x01, 0x00, 0x50, 10, 1, 2, 3, 'b', 'o', 'b', 0x00}, req.Bytes())

	req, err = NewRequest(mustTarget(t, "example.com:443"), "")
	require.NoError(t, err)
	want := []byte{0x04, 0x01, 0x01, 0xbb, 0, 0, 0, 1, 0x00}
	want = append(want, "example.com"...)
	want = append(want, 0x00)
	require.Equal(t, want, req.Bytes())
}

func TestNewRequestInvalidTarget(t *testing.T) {
	t.Parallel()

	_, err := NewRequest(mustTarget(t, "[2001:db8::1]:80"), "")
	require.True(t, errors.Is(err, proxyerr.InvalidTarget))

	_, err = NewRequest(mustTarget(t, "10.0.0.1:80"), "a\x00b")
	require.True(t, errors.Is(err, proxyerr.InvalidTarget))
}

func TestClientConnect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		target   string
		reply    []byte
		wantKind proxyerr.Kind
		wantCode int
	}{
		{name: "granted ipv4", target: "10.0.0.1:80", reply: []byte{0x00, RepGranted, 0, 80, 10, 0, 0, 1}},
		{name: "granted socks4a", target: "example.com:80", reply: []byte{0x00, RepGranted, 0, 0, 0, 0, 0, 0}},
		{name: "rejected", target: "10.0.0.1:80", reply: []byte{0x00, RepRejected, 0, 0, 0, 0, 0, 0}, wantKind: proxyerr.Rejected, wantCode: RepRejected},
		{name: "no identd", target: "10.0.0.1:80", reply: []byte{0x00, RepNoIdentd, 0, 0, 0, 0, 0, 0}, wantKind: proxyerr.Rejected, wantCode: RepNoIdentd},
		{name: "identd failed", target: "10.0.0.1:80", reply: []byte{0x00, RepIdentdAuthFailed, 0, 0, 0, 0, 0, 0}, wantKind: proxyerr.Rejected, wantCode: RepIdentdAuthFailed},
		{name: "unknown code", target: "10.0.0.1:80", reply: []byte{0x00, 0x42, 0, 0, 0, 0, 0, 0}, wantKind: proxyerr.Rejected, wantCode: 0x42},
		{name: "bad version", target: "10.0.0.1:80", reply: []byte{0x05, RepGranted, 0, 0, 0, 0, 0, 0}, wantKind: proxyerr.Malformed, wantCode: 0x05},
		{name: "truncated", target: "10.0.0.1:80", reply: []byte{0x00, RepGranted, 0}, wantKind: proxyerr.Malformed},
		{name: "empty", target: "10.0.0.1:80", reply: nil, wantKind: proxyerr.Malformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()

			tg := mustTarget(t, tt.target)

			g := errgroup.Group{}
			g.Go(func() error {
				defer serverConn.Close()
				req, err := ServerReadRequest(bufio.NewReader(serverConn))
				if err != nil {
					return err
				}
				if req.Cmd != CmdConnect {
					return errors.New("unexpected command")
				}
				if req.Address() != tg.String() {
					return errors.New("unexpected address " + req.Address())
				}
				if req.UserID != "ident" {
					return errors.New("unexpected user id " + req.UserID)
				}
				_, err = serverConn.Write(tt.reply)
				return err
			})

			err := ClientConnect(clientConn, tg, "ident")
			require.NoError(t, g.Wait())

			if tt.wantKind == proxyerr.Unknown {
				require.NoError(t, err)
				return
			}
			require.True(t, errors.Is(err, tt.wantKind), "err=%v", err)
			if tt.wantCode != 0 {
				require.Equal(t, tt.wantCode, proxyerr.CodeOf(err))
			}
		})
	}
}

func TestRejectedReason(t *testing.T) {
	t.Parallel()

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go func() {
		defer serverConn.Close()
		if _, err := ServerReadRequest(bufio.NewReader(serverConn)); err != nil {
			return
		}
		_ = WriteReply(serverConn, RepRejected)
	}()

	err := ClientConnect(clientConn, mustTarget(t, "10.0.0.1:80"), "")
	var pe *proxyerr.Error
	require.True(t, errors.As(err, &pe))
	require.Equal(t, "request rejected", pe.Reason)
	require.Equal(t, "socks4", pe.Proto)
}

func TestClientConnectLeavesTunnelBytes(t *testing.T) {
	t.Parallel()

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go func() {
		defer serverConn.Close()
		if _, err := ServerReadRequest(bufio.NewReader(serverConn)); err != nil {
			return
		}
		_, _ = serverConn.Write(append([]byte{0x00, RepGranted, 0, 0, 0, 0, 0, 0}, "payload"...))
	}()

	require.NoError(t, ClientConnect(clientConn, mustTarget(t, "10.0.0.1:80"), ""))
	buf := make([]byte, len("payload"))
	_, err := clientConn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "payload", string(buf))
}
