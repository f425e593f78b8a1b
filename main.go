package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/die-net/proxied/internal/conn"
	"github.com/die-net/proxied/internal/dialer"
	"github.com/die-net/proxied/internal/proxy"
	"github.com/die-net/proxied/internal/resolver"
	"github.com/die-net/proxied/internal/target"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		proxyURL = pflag.String("proxy", defaultUpstream(), "Proxy URL: http://[user:pass@]host[:port] | https://[user:pass@]host[:port] | socks4://[user@]host[:port] | socks5://[user:pass@]host[:port], optionally followed by [refresh-url]")

		dnsServer          = pflag.String("dns-server", "", "Resolve the proxy host by querying this name server (host[:port]) directly. Empty uses the system resolver.")
		dnsCacheTTL        = pflag.Duration("dns-cache-ttl", 5*time.Minute, "How long to cache proxy host lookups; 0 caches until exit")
		dialTimeout        = pflag.Duration("dial-timeout", 10*time.Second, "Timeout for the TCP connect to the proxy")
		negotiationTimeout = pflag.Duration("negotiation-timeout", 10*time.Second, "Timeout for TLS and the proxy handshake")
		tcpKeepAlive       = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		refresh            = pflag.Bool("refresh", false, "Request the proxy's refresh URL before connecting")
		verbose            = pflag.Bool("verbose", false, "Enable handshake debug logging")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] host:port\n\nConnects to host:port through the proxy and relays stdin and stdout.\n\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	setupLogging(*verbose)

	if pflag.NArg() != 1 {
		pflag.Usage()
		return errors.New("expected exactly one host:port argument")
	}
	tg, err := target.Parse(pflag.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}

	if *proxyURL == "" {
		return errors.New("no proxy set (use --proxy or $ALL_PROXY)")
	}
	p, err := proxy.Parse(*proxyURL)
	if err != nil {
		return fmt.Errorf("invalid --proxy: %w", err)
	}

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	var res resolver.Resolver = resolver.System{}
	if *dnsServer != "" {
		res = resolver.NewDNS(*dnsServer)
	}
	res = resolver.NewCache(res, *dnsCacheTTL, 0)

	cfg := dialer.Config{
		DialTimeout:        *dialTimeout,
		NegotiationTimeout: *negotiationTimeout,
		KeepAlive:          ka,
		Resolver:           res,
		Logger:             log.StandardLogger(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *refresh {
		client := &http.Client{Timeout: *dialTimeout + *negotiationTimeout}
		if err := p.Refresh(ctx, client); err != nil {
			return fmt.Errorf("refresh: %w", err)
		}
		log.WithField("url", p.RefreshURL).Debug("proxy refreshed")
	}

	d := dialer.NewProxyDialer(cfg, p)
	c, err := d.Connect(ctx, tg)
	if err != nil {
		return err
	}
	defer c.Close()

	log.WithFields(log.Fields{
		"conn_id": c.ID(),
		"proxy":   c.ProxyAddr(),
		"target":  c.Target(),
	}).Info("connected")

	return pipe(ctx, c, os.Stdin, os.Stdout)
}

// pipe copies in to c and c to out. It returns once the remote side is done
// sending or ctx ends; the in copy is not waited for, since a read from a
// terminal can block indefinitely.
func pipe(ctx context.Context, c *conn.Conn, in io.Reader, out io.Writer) error {
	context.AfterFunc(ctx, func() { _ = c.Close() })

	go func() {
		if _, err := io.Copy(c, in); err != nil && !errors.Is(err, net.ErrClosed) {
			log.WithError(err).Debug("stdin copy")
		}
		_ = c.CloseWrite()
	}()

	_, err := io.Copy(out, c)
	if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func setupLogging(verbose bool) {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
		DisableColors: !isatty.IsTerminal(os.Stderr.Fd()),
	})
	if verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}
}

// parseTCPKeepAlive accepts "on", "off" or "idle:interval:count" with the
// first two in seconds.
func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "":
		return net.KeepAliveConfig{}, errors.New("empty")
	case "on":
		return net.KeepAliveConfig{Enable: true}, nil
	case "off":
		return net.KeepAliveConfig{}, nil
	}

	fields := strings.Split(s, ":")
	if len(fields) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	var vals [3]int
	for i, name := range []string{"keepidle", "keepintvl", "keepcnt"} {
		n, err := strconv.Atoi(strings.TrimSpace(fields[i]))
		if err == nil && n <= 0 {
			err = errors.New("must be > 0")
		}
		if err != nil {
			return net.KeepAliveConfig{}, fmt.Errorf("%s: %w", name, err)
		}
		vals[i] = n
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     time.Duration(vals[0]) * time.Second,
		Interval: time.Duration(vals[1]) * time.Second,
		Count:    vals[2],
	}, nil
}

func defaultUpstream() string {
	if p := os.Getenv("ALL_PROXY"); p != "" {
		return p
	}

	if p := os.Getenv("all_proxy"); p != "" {
		return p
	}

	return ""
}
