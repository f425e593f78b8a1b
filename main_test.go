package main

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/die-net/proxied/internal/dialer"
	"github.com/die-net/proxied/internal/target"
	"github.com/die-net/proxied/internal/testutil"
)

func TestParseTCPKeepAlive(t *testing.T) {
	tests := []struct {
		in      string
		want    net.KeepAliveConfig
		wantErr bool
	}{
		{in: "on", want: net.KeepAliveConfig{Enable: true}},
		{in: " OFF ", want: net.KeepAliveConfig{}},
		{in: "45:15:3", want: net.KeepAliveConfig{Enable: true, Idle: 45 * time.Second, Interval: 15 * time.Second, Count: 3}},
		{in: "", wantErr: true},
		{in: "45:15", wantErr: true},
		{in: "0:15:3", wantErr: true},
		{in: "45:x:3", wantErr: true},
		{in: "45:15:-1", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseTCPKeepAlive(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
}

func TestDefaultUpstream(t *testing.T) {
	t.Setenv("ALL_PROXY", "")
	t.Setenv("all_proxy", "socks5://lower:1080")
	require.Equal(t, "socks5://lower:1080", defaultUpstream())

	t.Setenv("ALL_PROXY", "http://upper:3128")
	require.Equal(t, "http://upper:3128", defaultUpstream())
}

func TestPipe(t *testing.T) {
	ctx := t.Context()
	echo := testutil.StartEchoTCPServer(t, ctx)
	ln := testutil.StartSOCKS5Proxy(t, ctx, nil)

	d, err := dialer.New(dialer.Config{}, "socks5://"+ln.Addr().String())
	require.NoError(t, err)
	tg, err := target.Parse(echo.Addr().String())
	require.NoError(t, err)
	c, err := d.Connect(ctx, tg)
	require.NoError(t, err)
	defer c.Close()

	var out bytes.Buffer
	require.NoError(t, pipe(ctx, c, strings.NewReader("line one\nline two\n"), &out))
	require.Equal(t, "line one\nline two\n", out.String())
}
