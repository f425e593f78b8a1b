package socks5

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"

	txsocks5 "github.com/txthinking/socks5"
)

const (
	// CmdConnect is the SOCKS5 CONNECT command value.
	CmdConnect = txsocks5.CmdConnect

	// MethodNoAcceptable is the RFC 1928 "no acceptable methods" answer.
	MethodNoAcceptable = 0xff
)

// Auth configures username/password authentication for SOCKS5 negotiation.
type Auth struct {
	Username string
	Password string
}

// RFC 1928 reply codes.
const (
	RepSuccess             = 0x00
	RepGeneralFailure      = 0x01
	RepNotAllowed          = 0x02
	RepNetworkUnreachable  = 0x03
	RepHostUnreachable     = 0x04
	RepConnectionRefused   = 0x05
	RepTTLExpired          = 0x06
	RepCommandNotSupported = 0x07
	RepAddressNotSupported = 0x08
)

var replyReasons = map[byte]string{
	RepSuccess:             "succeeded",
	RepGeneralFailure:      "general failure",
	RepNotAllowed:          "not allowed",
	RepNetworkUnreachable:  "network unreachable",
	RepHostUnreachable:     "host unreachable",
	RepConnectionRefused:   "connection refused",
	RepTTLExpired:          "TTL expired",
	RepCommandNotSupported: "command not supported",
	RepAddressNotSupported: "address type not supported",
}

// ReplyReason returns the text for a SOCKS5 reply code.
func ReplyReason(rep byte) string {
	if r, ok := replyReasons[rep]; ok {
		return r
	}
	return "unassigned reply code"
}

// WriteReply writes a reply with code rep and an all-zero bound address. The
// address is IPv6 when atyp is, IPv4 otherwise.
func WriteReply(conn net.Conn, rep, atyp byte) error {
	bnd := net.IPv4zero.To4()
	if atyp == txsocks5.ATYPIPv6 {
		bnd = net.IPv6zero
	} else {
		atyp = txsocks5.ATYPIPv4
	}
	_, err := txsocks5.NewReply(rep, atyp, bnd, []byte{0, 0}).WriteTo(conn)
	return err
}

// WriteSuccessReply answers a CONNECT with bound as BND.ADDR and BND.PORT.
func WriteSuccessReply(conn net.Conn, bound net.Addr) error {
	ap, err := netip.ParseAddrPort(bound.String())
	if err != nil {
		return fmt.Errorf("bound address %q: %w", bound, err)
	}
	atyp, addr := txsocks5.ATYPIPv4, ap.Addr().Unmap()
	raw := addr.AsSlice()
	if addr.Is6() {
		atyp = txsocks5.ATYPIPv6
	}
	port := binary.BigEndian.AppendUint16(nil, ap.Port())
	if _, err := txsocks5.NewReply(txsocks5.RepSuccess, atyp, raw, port).WriteTo(conn); err != nil {
		return fmt.Errorf("success reply: %w", err)
	}
	return nil
}

func writeNoAcceptableMethods(conn net.Conn) {
	_, _ = txsocks5.NewNegotiationReply(MethodNoAcceptable).WriteTo(conn)
}
