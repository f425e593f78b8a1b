package socks4

import (
	"encoding/binary"
	"io"
	"strings"

	"github.com/die-net/proxied/internal/proxyerr"
	"github.com/die-net/proxied/internal/target"
)

const proto = "socks4"

const (
	// Version is the SOCKS4 request version byte.
	Version = 0x04
	// CmdConnect is the CONNECT command.
	CmdConnect = 0x01
	// ReplyVersion is the version byte servers put in reply headers.
	ReplyVersion = 0x00

	RepGranted          = 0x5a
	RepRejected         = 0x5b
	RepNoIdentd         = 0x5c
	RepIdentdAuthFailed = 0x5d

	replyLen = 8
)

var replyReasons = map[byte]string{
	RepGranted:          "request granted",
	RepRejected:         "request rejected",
	RepNoIdentd:         "no identd",
	RepIdentdAuthFailed: "identd auth failed",
}

// ReplyReason returns the text for a SOCKS4 reply code.
func ReplyReason(code byte) string {
	if r, ok := replyReasons[code]; ok {
		return r
	}
	return "unknown reply code"
}

// socks4aMarker is the 0.0.0.x address announcing a trailing domain name.
var socks4aMarker = [4]byte{0, 0, 0, 1}

// Request is a decoded SOCKS4 request.
type Request struct {
	Cmd    byte
	Port   uint16
	IP     [4]byte
	UserID string
	// Domain is set for SOCKS4a requests.
	Domain string
}

// NewRequest builds a CONNECT request for t. IPv6 targets cannot be
// expressed in SOCKS4.
func NewRequest(t target.Target, userID string) (*Request, error) {
	if strings.IndexByte(userID, 0) >= 0 {
		return nil, proxyerr.New(proxyerr.InvalidTarget, proto, "user id contains NUL")
	}
	req := &Request{Cmd: CmdConnect, Port: t.Port(), UserID: userID}
	switch {
	case t.IsDomain():
		if strings.IndexByte(t.Domain(), 0) >= 0 {
			return nil, proxyerr.New(proxyerr.InvalidTarget, proto, "domain contains NUL")
		}
		req.IP = socks4aMarker
		req.Domain = t.Domain()
	case t.Addr().Is4():
		req.IP = t.Addr().As4()
	default:
		return nil, proxyerr.New(proxyerr.InvalidTarget, proto, "ipv6 target "+t.String()+" not supported")
	}
	return req, nil
}

// Bytes encodes the request:
//
//	+----+----+---------+--------+--------+------+-----------+------+
//	| VN | CD | DSTPORT | DSTIP  | USERID | NULL | [DOMAIN]  | NULL |
//	+----+----+---------+--------+--------+------+-----------+------+
//	| 1  | 1  |    2    |   4    |   n    |  1   |    m      |  1   |
func (r *Request) Bytes() []byte {
	b := make([]byte, 0, 9+len(r.UserID)+len(r.Domain)+1)
	b = append(b, Version, r.Cmd)
	b = binary.BigEndian.AppendUint16(b, r.Port)
	b = append(b, r.IP[:]...)
	b = append(b, r.UserID...)
	b = append(b, 0)
	if r.Domain != "" {
		b = append(b, r.Domain...)
		b = append(b, 0)
	}
	return b
}

// ClientConnect sends a CONNECT for t over conn and reads the 8-byte reply.
// On success conn is positioned right after the reply.
func ClientConnect(conn io.ReadWriter, t target.Target, userID string) error {
	req, err := NewRequest(t, userID)
	if err != nil {
		return err
	}
	if _, err := conn.Write(req.Bytes()); err != nil {
		return proxyerr.Errorf(proxyerr.Transport, proto, "write request: %w", err)
	}

	var rep [replyLen]byte
	if _, err := io.ReadFull(conn, rep[:]); err != nil {
		return proxyerr.FromIO(proto, err)
	}
	if rep[0] != ReplyVersion {
		return &proxyerr.Error{Kind: proxyerr.Malformed, Proto: proto, Code: int(rep[0]), Reason: "bad reply version"}
	}
	if rep[1] != RepGranted {
		return proxyerr.RejectedCode(proto, int(rep[1]), ReplyReason(rep[1]))
	}
	return nil
}
