package socks4

// Package socks4 implements the client side of the SOCKS4 CONNECT handshake,
// including the SOCKS4a extension for domain-name targets.
//
// A small server side (ServerReadRequest, WriteReply) is provided for tests
// and fake proxies.
