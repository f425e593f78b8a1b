package proxyerr

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Kind classifies an engine failure.
type Kind uint8

const (
	// Unknown is the zero Kind; KindOf returns it for foreign errors.
	Unknown Kind = iota
	// Parse is a malformed proxy descriptor or target.
	Parse
	// Resolution is a resolver collaborator failure.
	Resolution
	// Transport is a connect, read, write or TLS failure of the underlying
	// stream.
	Transport
	// Malformed means the proxy answered in violation of its wire format.
	Malformed
	// Rejected is a well-formed protocol-level refusal.
	Rejected
	// AuthNegotiation means no acceptable SOCKS5 auth method was agreed.
	AuthNegotiation
	// AuthRejected means the SOCKS5 username/password exchange failed.
	AuthRejected
	// NoCandidates means selection ran over an empty address list.
	NoCandidates
	// InvalidTarget means the target cannot be expressed in the protocol.
	InvalidTarget
	// Canceled means the caller's context ended mid-connect.
	Canceled
)

var kindNames = [...]string{
	Unknown:         "unknown",
	Parse:           "descriptor parse error",
	Resolution:      "resolution error",
	Transport:       "transport error",
	Malformed:       "protocol malformed",
	Rejected:        "protocol rejected",
	AuthNegotiation: "auth negotiation failed",
	AuthRejected:    "auth rejected",
	NoCandidates:    "no candidates",
	InvalidTarget:   "invalid target",
	Canceled:        "canceled",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error implements error so a Kind can be used as an errors.Is target.
func (k Kind) Error() string {
	return k.String()
}

// Parse sub-reasons.
var (
	ErrInvalidScheme  = errors.New("invalid scheme")
	ErrInvalidAddress = errors.New("invalid address")
	ErrMissingPort    = errors.New("missing port")
)

// Error is the concrete error type returned by the engine.
type Error struct {
	Kind Kind
	// Proto is the protocol that produced the error ("socks5", "http", ...),
	// empty when not protocol specific.
	Proto string
	// Code is the protocol's numeric reason (HTTP status, SOCKS reply byte).
	// Zero when not applicable.
	Code int
	// Reason is the protocol's textual reason or a short description.
	Reason string
	// Err is the wrapped cause, if any.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Proto != "" {
		b.WriteString(e.Proto)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Code != 0 {
		fmt.Fprintf(&b, " (code %#x)", e.Code)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is this error's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New returns an *Error of kind k with the given reason.
func New(k Kind, proto, reason string) *Error {
	return &Error{Kind: k, Proto: proto, Reason: reason}
}

// Wrap returns an *Error of kind k wrapping err. Wrap returns nil if err is
// nil.
func Wrap(k Kind, proto string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Proto: proto, Err: err}
}

// Errorf returns an *Error of kind k whose cause is formatted like
// fmt.Errorf, so %w works.
func Errorf(k Kind, proto, format string, args ...any) error {
	return &Error{Kind: k, Proto: proto, Err: fmt.Errorf(format, args...)}
}

// RejectedCode returns a Rejected error preserving the protocol's reason.
func RejectedCode(proto string, code int, reason string) *Error {
	return &Error{Kind: Rejected, Proto: proto, Code: code, Reason: reason}
}

// KindOf returns the Kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// CodeOf returns the protocol code of the first *Error in err's chain.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// FromIO classifies an error from reading a handshake reply: a short read is
// Malformed, anything else is Transport.
func FromIO(proto string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &Error{Kind: Malformed, Proto: proto, Reason: "truncated reply", Err: err}
	}
	return &Error{Kind: Transport, Proto: proto, Err: err}
}
