package socks4

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// maxField bounds the NUL-terminated user id and domain fields.
const maxField = 255

// ServerReadRequest reads one SOCKS4 or SOCKS4a request from r.
func ServerReadRequest(r *bufio.Reader) (*Request, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if hdr[0] != Version {
		return nil, fmt.Errorf("bad version %#x", hdr[0])
	}
	req := &Request{Cmd: hdr[1], Port: binary.BigEndian.Uint16(hdr[2:4])}
	copy(req.IP[:], hdr[4:8])

	var err error
	if req.UserID, err = readCString(r); err != nil {
		return nil, fmt.Errorf("read user id: %w", err)
	}
	if req.IP[0] == 0 && req.IP[1] == 0 && req.IP[2] == 0 && req.IP[3] != 0 {
		if req.Domain, err = readCString(r); err != nil {
			return nil, fmt.Errorf("read domain: %w", err)
		}
	}
	return req, nil
}

// WriteReply writes an 8-byte reply with the given code and a zero bound
// address.
func WriteReply(w io.Writer, code byte) error {
	_, err := w.Write([]byte{ReplyVersion, code, 0, 0, 0, 0, 0, 0})
	return err
}

// Address returns the request's destination as "host:port".
func (r *Request) Address() string {
	host := r.Domain
	if host == "" {
		host = fmt.Sprintf("%d.%d.%d.%d", r.IP[0], r.IP[1], r.IP[2], r.IP[3])
	}
	return fmt.Sprintf("%s:%d", host, r.Port)
}

func readCString(r *bufio.Reader) (string, error) {
	s, err := r.ReadString(0)
	if err != nil {
		return "", err
	}
	if len(s)-1 > maxField {
		return "", errors.New("field too long")
	}
	return s[:len(s)-1], nil
}
