// Package netprobe answers "is the internet reachable right now?".
package netprobe

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const (
	defaultProbeURL = "https://www.google.com"
	defaultTimeout  = 5 * time.Second
)

// Prober reports whether the remote side is reachable.
type Prober interface {
	Online(ctx context.Context) bool
}

// Func adapts a plain function to Prober.
type Func func(ctx context.Context) bool

func (f Func) Online(ctx context.Context) bool {
	return f(ctx)
}

// Static is a Prober with a fixed answer.
type Static bool

func (s Static) Online(context.Context) bool {
	return bool(s)
}

// HTTPProbe issues a HEAD request; any HTTP response counts as reachable.
type HTTPProbe struct {
	httpClient *http.Client
	url        string
	timeout    time.Duration
}

// Option configures optional probe behavior.
type Option func(*HTTPProbe)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *HTTPProbe) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithURL overrides the probed URL.
func WithURL(url string) Option {
	return func(p *HTTPProbe) {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			p.url = trimmed
		}
	}
}

// WithTimeout bounds a single probe.
func WithTimeout(timeout time.Duration) Option {
	return func(p *HTTPProbe) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

func New(opts ...Option) *HTTPProbe {
	probe := &HTTPProbe{
		httpClient: &http.Client{},
		url:        defaultProbeURL,
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(probe)
		}
	}
	return probe
}

func (p *HTTPProbe) Online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}
