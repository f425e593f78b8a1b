// Package proxyerr defines the error taxonomy shared by the proxied
// connection engine.
//
// Every failure returned by the engine is an *Error carrying a Kind. Callers
// branch on the kind with errors.Is:
//
//	if errors.Is(err, proxyerr.Rejected) {
//	    // well-formed refusal; Code and Reason hold the protocol's answer
//	}
//
// Collaborator errors (resolver, transport, TLS) are wrapped, not replaced, so
// the underlying error is still reachable with errors.Is and errors.As.
package proxyerr
