package dialer

// Package dialer is the connection engine: it turns a proxy descriptor and a
// target into an established tunnel.
//
// A ProxyDialer selects a proxy address (resolving the descriptor lazily on
// first use), opens a transport connection to it, upgrades it to TLS for
// https proxies, and runs the protocol handshake (HTTP CONNECT, SOCKS4/4a or
// SOCKS5). The result is a *conn.Conn positioned right after the handshake.
//
// The engine never retries and enforces no timeout of its own unless
// Config.NegotiationTimeout is set: callers bound a connect with the context
// they pass. Canceling that context at any point closes the partially open
// transport exactly once.
