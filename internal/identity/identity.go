// Package identity resolves the stable identity string that scopes the
// local cache.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/starford/laguz/internal/apperr"
)

// Provider yields the current identity. Implementations wrap connectivity
// failures in apperr.ErrUnreachable so the caller can start in offline mode
// instead of failing outright.
type Provider interface {
	Whoami(ctx context.Context) (string, error)
}

// Static is a fixed identity from configuration.
type Static struct {
	Name string
}

// Whoami returns the configured name.
func (s Static) Whoami(context.Context) (string, error) {
	if s.Name == "" {
		return "", errors.New("identity: static name is empty")
	}
	return s.Name, nil
}

// HTTP resolves the identity from an account endpoint returning
// {"identity": "..."}.
type HTTP struct {
	url    string
	client *http.Client
}

// NewHTTP creates an HTTP identity provider for url.
func NewHTTP(url string) *HTTP {
	return &HTTP{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

// Whoami queries the endpoint.
func (h *HTTP) Whoami(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return "", fmt.Errorf("identity: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("identity: %v: %w", err, apperr.ErrUnreachable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadGateway || resp.StatusCode == http.StatusServiceUnavailable {
		return "", fmt.Errorf("identity: status %d: %w", resp.StatusCode, apperr.ErrUnreachable)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("identity: status %d", resp.StatusCode)
	}

	var body struct {
		Identity string `json:"identity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("identity: decode response: %w", err)
	}
	if body.Identity == "" {
		return "", errors.New("identity: empty identity in response")
	}
	return body.Identity, nil
}
