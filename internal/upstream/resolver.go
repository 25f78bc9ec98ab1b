package upstream

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"token-radar/internal/observability"
)

// ProbeResult records one probe attempt, kept for the status endpoint.
type ProbeResult struct {
	URL      string    `json:"url"`
	OK       bool      `json:"ok"`
	Error    string    `json:"error,omitempty"`
	ProbedAt time.Time `json:"probed_at"`
}

// Resolver finds and pins a working endpoint out of a candidate list.
// Each category owns its own Resolver; there is no shared module-level state,
// so pairs and trades resolution cannot clobber each other.
type Resolver struct {
	mu         sync.Mutex
	label      string
	candidates []string
	client     *Client
	pinned     string
	history    []ProbeResult
	logger     *log.Logger
}

// NewResolver creates a resolver for one category's candidate URLs, tried in
// the given priority order.
func NewResolver(label string, candidates []string, client *Client, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{
		label:      label,
		candidates: candidates,
		client:     client,
		logger:     logger,
	}
}

// Resolve returns the pinned URL, probing the candidate list first if nothing
// is pinned. While a URL is pinned it is reused without re-probing.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pinned != "" {
		return r.pinned, nil
	}

	for _, url := range r.candidates {
		err := r.client.Probe(ctx, url)
		observability.RecordProbe(r.label, probeResultLabel(err))
		r.history = append(r.history, ProbeResult{
			URL:      url,
			OK:       err == nil,
			Error:    errString(err),
			ProbedAt: time.Now(),
		})
		if len(r.history) > 50 {
			r.history = r.history[len(r.history)-50:]
		}
		if err != nil {
			r.logger.Printf("[%s] candidate %s failed probe: %v", r.label, url, err)
			continue
		}
		r.logger.Printf("[%s] pinned endpoint %s", r.label, url)
		r.pinned = url
		return url, nil
	}

	return "", fmt.Errorf("%s: %w", r.label, ErrNoEndpoint)
}

// Unpin clears the pinned URL so the next Resolve re-runs probing. Called
// after non-rate-limit failures: a route that worked yesterday may 404 today.
func (r *Resolver) Unpin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pinned != "" {
		r.logger.Printf("[%s] unpinning endpoint %s", r.label, r.pinned)
		r.pinned = ""
	}
}

// Pinned returns the currently pinned URL, or empty.
func (r *Resolver) Pinned() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pinned
}

// History returns a copy of recent probe results.
func (r *Resolver) History() []ProbeResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProbeResult, len(r.history))
	copy(out, r.history)
	return out
}

func probeResultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return "failed"
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
