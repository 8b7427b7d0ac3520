// Package probe checks whether the optional agent daemon is reachable.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long a probe result is trusted before re-checking.
	DefaultTTL = 30 * time.Second

	// probeTimeout bounds a single connectivity check.
	probeTimeout = 2 * time.Second
)

// Prober caches a lightweight liveness check against the agent daemon.
// The daemon is an optional accelerator; probe failures are never surfaced
// as errors, only as "unavailable".
type Prober struct {
	url    string
	ttl    time.Duration
	client *http.Client

	mu        sync.Mutex
	known     bool
	available bool
	checkedAt time.Time
}

// New creates a Prober for the given daemon base URL.
func New(url string) *Prober {
	return &Prober{
		url:    strings.TrimRight(url, "/"),
		ttl:    DefaultTTL,
		client: &http.Client{Timeout: probeTimeout},
	}
}

// SetTTL overrides the cache lifetime. Used in tests.
func (p *Prober) SetTTL(ttl time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ttl = ttl
}

// URL returns the probed endpoint.
func (p *Prober) URL() string {
	return p.url
}

// Available reports whether the daemon answered a HEAD request recently.
// Results are cached for the TTL to avoid hammering the server.
func (p *Prober) Available(ctx context.Context) bool {
	return p.check(ctx, false)
}

// ForceCheck bypasses the cache and probes immediately.
func (p *Prober) ForceCheck(ctx context.Context) bool {
	return p.check(ctx, true)
}

func (p *Prober) check(ctx context.Context, force bool) bool {
	p.mu.Lock()
	if !force && p.known && time.Since(p.checkedAt) < p.ttl {
		available := p.available
		p.mu.Unlock()
		return available
	}
	p.mu.Unlock()

	available := p.probeOnce(ctx)

	p.mu.Lock()
	p.known = true
	p.available = available
	p.checkedAt = time.Now()
	p.mu.Unlock()

	return available
}

// probeOnce performs a single HEAD request. Any network error, timeout, or
// non-2xx status means unavailable.
func (p *Prober) probeOnce(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url+"/", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Status describes the daemon for the /server command.
type Status struct {
	Running bool
	URL     string
	Detail  string
}

// Status probes immediately and returns display detail. Like Available it
// never returns an error: failure detail is carried in the Detail field.
func (p *Prober) Status(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url+"/", nil)
	if err != nil {
		return Status{URL: p.url, Detail: err.Error()}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Status{URL: p.url, Detail: err.Error()}
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Status{URL: p.url, Detail: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}
	return Status{Running: true, URL: p.url, Detail: "running"}
}
