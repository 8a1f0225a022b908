package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/laguz/internal/apperr"
)

// HTTP implements Store against a remoteStorage-style endpoint: values live
// at <base>/<key> and are read, written, and deleted with plain HTTP verbs.
type HTTP struct {
	base   string
	token  string
	client *http.Client
}

// NewHTTP creates an HTTP store. token, if non-empty, is sent as a Bearer
// credential on every request.
func NewHTTP(baseURL, token string) (*HTTP, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote: unsupported scheme %q", u.Scheme)
	}
	return &HTTP{
		base:   strings.TrimRight(u.String(), "/"),
		token:  token,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Get fetches the value at key. A 404 reports an absent key.
func (h *HTTP) Get(ctx context.Context, key string) (string, bool, error) {
	resp, err := h.do(ctx, http.MethodGet, key, "")
	if err != nil {
		return "", false, fmt.Errorf("remote: get %s: %w", key, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", false, nil
	case unreachableStatus(resp.StatusCode):
		return "", false, fmt.Errorf("remote: get %s: status %d: %w", key, resp.StatusCode, apperr.ErrUnreachable)
	case resp.StatusCode != http.StatusOK:
		return "", false, fmt.Errorf("remote: get %s: status %d", key, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("remote: get %s: read body: %w", key, err)
	}
	return string(body), true, nil
}

// Set writes value under key.
func (h *HTTP) Set(ctx context.Context, key, value string) error {
	resp, err := h.do(ctx, http.MethodPut, key, value)
	if err != nil {
		return fmt.Errorf("remote: set %s: %w", key, err)
	}
	defer resp.Body.Close()

	switch {
	case unreachableStatus(resp.StatusCode):
		return fmt.Errorf("remote: set %s: status %d: %w", key, resp.StatusCode, apperr.ErrUnreachable)
	case resp.StatusCode >= 300:
		return fmt.Errorf("remote: set %s: status %d", key, resp.StatusCode)
	}
	return nil
}

// Remove deletes key. A 404 is treated as success.
func (h *HTTP) Remove(ctx context.Context, key string) error {
	resp, err := h.do(ctx, http.MethodDelete, key, "")
	if err != nil {
		return fmt.Errorf("remote: remove %s: %w", key, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil
	case unreachableStatus(resp.StatusCode):
		return fmt.Errorf("remote: remove %s: status %d: %w", key, resp.StatusCode, apperr.ErrUnreachable)
	case resp.StatusCode >= 300:
		return fmt.Errorf("remote: remove %s: status %d", key, resp.StatusCode)
	}
	return nil
}

func (h *HTTP) do(ctx context.Context, method, key, body string) (*http.Response, error) {
	endpoint := h.base + "/" + url.PathEscape(key)
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	if method == http.MethodPut {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Transport-level failure: DNS, refused connection, timeout.
		return nil, fmt.Errorf("%v: %w", err, apperr.ErrUnreachable)
	}
	return resp, nil
}

// unreachableStatus reports gateway-class statuses that mean the backing
// store itself is down rather than rejecting the request.
func unreachableStatus(code int) bool {
	return code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
}
