package socks5

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"os"

	txsocks5 "github.com/txthinking/socks5"

	"github.com/die-net/proxied/internal/proxyerr"
	"github.com/die-net/proxied/internal/target"
)

const proto = "socks5"

// ClientDial negotiates authentication and then sends CONNECT for t. A nil
// auth offers only the no-auth method.
func ClientDial(conn io.ReadWriter, auth *Auth, t target.Target) error {
	if err := ClientNegotiate(conn, auth); err != nil {
		return err
	}
	return ClientConnect(conn, t)
}

// ClientNegotiate runs the method selection and, if the server picks it, the
// RFC 1929 username/password sub-negotiation.
func ClientNegotiate(conn io.ReadWriter, auth *Auth) error {
	methods := []byte{txsocks5.MethodNone}
	if auth != nil {
		if len(auth.Username) > 255 || len(auth.Password) > 255 {
			return proxyerr.New(proxyerr.AuthNegotiation, proto, "username and password must be at most 255 bytes")
		}
		methods = append(methods, txsocks5.MethodUsernamePassword)
	}

	if _, err := txsocks5.NewNegotiationRequest(methods).WriteTo(conn); err != nil {
		return proxyerr.Errorf(proxyerr.Transport, proto, "write negotiation: %w", err)
	}

	neg, err := txsocks5.NewNegotiationReplyFrom(conn)
	if err != nil {
		return readError("read negotiation", err)
	}
	if neg.Ver != txsocks5.Ver {
		return &proxyerr.Error{Kind: proxyerr.Malformed, Proto: proto, Code: int(neg.Ver), Reason: "bad negotiation version"}
	}

	switch neg.Method {
	case txsocks5.MethodNone:
		return nil
	case txsocks5.MethodUsernamePassword:
		if auth == nil {
			return proxyerr.New(proxyerr.AuthNegotiation, proto, "server requires username/password")
		}
		return clientUserPass(conn, auth)
	case MethodNoAcceptable:
		return &proxyerr.Error{Kind: proxyerr.AuthNegotiation, Proto: proto, Code: MethodNoAcceptable, Reason: "no acceptable methods"}
	default:
		return &proxyerr.Error{Kind: proxyerr.AuthNegotiation, Proto: proto, Code: int(neg.Method), Reason: "unsupported negotiation method"}
	}
}

func clientUserPass(conn io.ReadWriter, auth *Auth) error {
	if _, err := txsocks5.NewUserPassNegotiationRequest([]byte(auth.Username), []byte(auth.Password)).WriteTo(conn); err != nil {
		return proxyerr.Errorf(proxyerr.Transport, proto, "write userpass: %w", err)
	}
	rep, err := txsocks5.NewUserPassNegotiationReplyFrom(conn)
	if err != nil {
		return readError("read userpass", err)
	}
	if rep.Status != txsocks5.UserPassStatusSuccess {
		return &proxyerr.Error{Kind: proxyerr.AuthRejected, Proto: proto, Code: int(rep.Status), Reason: "username/password rejected"}
	}
	return nil
}

// ClientConnect sends a CONNECT request for t and reads the reply, leaving
// conn positioned right after the bound address.
func ClientConnect(conn io.ReadWriter, t target.Target) error {
	atyp, addr, err := encodeAddr(t)
	if err != nil {
		return err
	}
	port := binary.BigEndian.AppendUint16(nil, t.Port())

	if _, err := txsocks5.NewRequest(txsocks5.CmdConnect, atyp, addr, port).WriteTo(conn); err != nil {
		return proxyerr.Errorf(proxyerr.Transport, proto, "write request: %w", err)
	}

	rep, err := txsocks5.NewReplyFrom(conn)
	if err != nil {
		return readError("read reply", err)
	}
	if rep.Ver != txsocks5.Ver {
		return &proxyerr.Error{Kind: proxyerr.Malformed, Proto: proto, Code: int(rep.Ver), Reason: "bad reply version"}
	}
	if rep.Rep != txsocks5.RepSuccess {
		return proxyerr.RejectedCode(proto, int(rep.Rep), ReplyReason(rep.Rep))
	}
	return nil
}

// encodeAddr returns the ATYP byte and DST.ADDR for t. Domain names are
// returned without the length prefix; Request.WriteTo adds it.
func encodeAddr(t target.Target) (byte, []byte, error) {
	switch {
	case t.IsDomain():
		if len(t.Domain()) > 255 {
			return 0, nil, proxyerr.New(proxyerr.InvalidTarget, proto, "domain name longer than 255 bytes")
		}
		return txsocks5.ATYPDomain, []byte(t.Domain()), nil
	case t.Addr().Is4():
		a := t.Addr().As4()
		return txsocks5.ATYPIPv4, a[:], nil
	case t.Addr().Is6():
		a := t.Addr().As16()
		return txsocks5.ATYPIPv6, a[:], nil
	default:
		return 0, nil, proxyerr.New(proxyerr.InvalidTarget, proto, "invalid target")
	}
}

// readError classifies a failure to decode a server message. Errors from the
// stream itself are Transport; short reads and anything the decoder rejected
// are Malformed.
func readError(op string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrDeadlineExceeded) {
		return proxyerr.Errorf(proxyerr.Transport, proto, "%s: %w", op, err)
	}
	reason := op + ": " + err.Error()
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		reason = op + ": truncated"
	}
	return &proxyerr.Error{Kind: proxyerr.Malformed, Proto: proto, Reason: reason, Err: err}
}
