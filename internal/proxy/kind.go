package proxy

import (
	"fmt"
	"strings"

	"github.com/die-net/proxied/internal/proxyerr"
)

// Kind is the proxy protocol variant.
type Kind uint8

const (
	HTTP Kind = iota + 1
	HTTPS
	SOCKS4
	SOCKS5
)

// Kinds lists every supported Kind.
var Kinds = []Kind{HTTP, HTTPS, SOCKS4, SOCKS5}

var kindInfo = [...]struct {
	scheme      string
	defaultPort uint16
}{
	HTTP:   {"http", 80},
	HTTPS:  {"https", 443},
	SOCKS4: {"socks4", 1080},
	SOCKS5: {"socks5", 1080},
}

// ParseKind maps a URI scheme, case-insensitively, to a Kind.
func ParseKind(scheme string) (Kind, error) {
	s := strings.ToLower(scheme)
	for _, k := range Kinds {
		if kindInfo[k].scheme == s {
			return k, nil
		}
	}
	return 0, proxyerr.Errorf(proxyerr.Parse, "", "scheme %q: %w", scheme, proxyerr.ErrInvalidScheme)
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	return k >= HTTP && k <= SOCKS5
}

// String returns the URI scheme for k.
func (k Kind) String() string {
	if k.Valid() {
		return kindInfo[k].scheme
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// DefaultPort returns the port used when a descriptor omits one, or 0 if k
// has none.
func (k Kind) DefaultPort() uint16 {
	if k.Valid() {
		return kindInfo[k].defaultPort
	}
	return 0
}
