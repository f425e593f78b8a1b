package socks5

// Package socks5 provides the SOCKS5 client handshake used by proxied, plus
// the server-side counterparts used by tests and fake proxies.
//
// It wraps the low-level protocol types in github.com/txthinking/socks5 and
// maps every reply onto the proxyerr taxonomy: short or ill-formed replies
// are Malformed, refusals are Rejected with the RFC 1928 reply code kept, and
// the two authentication failures get their own kinds.
