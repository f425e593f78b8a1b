package proxy

import (
	"context"
	"io"
	"net/http"

	"github.com/die-net/proxied/internal/proxyerr"
)

// ErrNoRefreshURL is returned by Refresh when the descriptor has none.
var ErrNoRefreshURL = proxyerr.New(proxyerr.Parse, "refresh", "descriptor has no refresh url")

// Refresh asks the proxy provider to rotate the proxy's address by sending a
// GET to RefreshURL. Any 2xx answer is success; other statuses are returned
// as a Rejected error carrying the status code.
//
// Refresh does not re-resolve the descriptor; call Resolve afterwards if the
// provider also changes DNS.
func (p *Proxy) Refresh(ctx context.Context, client *http.Client) error {
	if p.RefreshURL == "" {
		return ErrNoRefreshURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.RefreshURL, nil)
	if err != nil {
		return proxyerr.Errorf(proxyerr.Parse, "refresh", "%w: %w", proxyerr.ErrInvalidAddress, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return proxyerr.Wrap(proxyerr.Transport, "refresh", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode/100 != 2 {
		return proxyerr.RejectedCode("refresh", resp.StatusCode, resp.Status)
	}
	return nil
}
