package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// StorePinger probes a vector store through its own Ping method
// (Qdrant HealthCheck RPC, pgx pool ping).
type StorePinger struct {
	name  string
	store interface{ Ping(ctx context.Context) error }
}

// NewStorePinger constructs a StorePinger labelled name.
func NewStorePinger(name string, store interface{ Ping(ctx context.Context) error }) *StorePinger {
	return &StorePinger{name: name, store: store}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return p.name }

// Ping delegates to the store.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// HTTPPinger probes a model backend with a GET that costs no tokens, such as
// Ollama's /api/tags. Any status below 500 counts as reachable.
type HTTPPinger struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPPinger constructs an HTTPPinger. client may be nil.
func NewHTTPPinger(name, url string, client *http.Client) *HTTPPinger {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPinger{name: name, url: url, client: client}
}

// Name returns the backend label used in readiness responses.
func (p *HTTPPinger) Name() string { return p.name }

// Ping issues the GET and discards the body.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s unreachable: %w", p.name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s returned status %d", p.name, resp.StatusCode)
	}
	return nil
}
