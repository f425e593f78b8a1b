package dialer

import (
	"bufio"
	"encoding/base64"
	"errors"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/die-net/proxied/internal/proxy"
	"github.com/die-net/proxied/internal/proxyerr"
	"github.com/die-net/proxied/internal/target"
)

// httpConnect sends "CONNECT host:port HTTP/1.1" and reads the response
// header block. Any 2xx establishes the tunnel. Other statuses, including a
// status line that does not parse, are Rejected with the line's text.
func httpConnect(c net.Conn, t target.Target, creds *proxy.Credentials) error {
	const proto = "http"

	address := t.String()
	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: address},
		Host:   address,
		Header: make(http.Header),
	}
	if creds != nil {
		req.Header.Set("Proxy-Authorization", basicAuth(creds))
	}

	if err := req.Write(c); err != nil {
		return proxyerr.Errorf(proxyerr.Transport, proto, "connect write: %w", err)
	}

	// Reading one byte per call keeps bufio from pulling tunnel bytes that
	// follow the header block off the connection.
	tp := textproto.NewReader(bufio.NewReaderSize(oneByteReader{c}, 16))

	line, err := tp.ReadLine()
	if err != nil {
		return proxyerr.FromIO(proto, err)
	}
	code, ok := parseStatusLine(line)
	if !ok {
		return proxyerr.RejectedCode(proto, 0, line)
	}

	_, herr := tp.ReadMIMEHeader()
	if code/100 != 2 {
		_, status, _ := strings.Cut(line, " ")
		return proxyerr.RejectedCode(proto, code, status)
	}
	if herr != nil {
		var pe textproto.ProtocolError
		if errors.As(herr, &pe) {
			return &proxyerr.Error{Kind: proxyerr.Malformed, Proto: proto, Reason: "bad response header", Err: herr}
		}
		return proxyerr.FromIO(proto, herr)
	}
	return nil
}

// parseStatusLine parses "HTTP/1.x NNN [text]".
func parseStatusLine(line string) (int, bool) {
	version, rest, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(version, "HTTP/") {
		return 0, false
	}
	if _, _, ok := http.ParseHTTPVersion(version); !ok {
		return 0, false
	}
	codeStr, _, _ := strings.Cut(strings.TrimLeft(rest, " "), " ")
	if len(codeStr) != 3 {
		return 0, false
	}
	code, err := strconv.Atoi(codeStr)
	if err != nil || code < 100 {
		return 0, false
	}
	return code, true
}

func basicAuth(creds *proxy.Credentials) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds.Username+":"+creds.Password))
}

type oneByteReader struct {
	r io.Reader
}

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}
