// Package upstream talks to the third-party token-data APIs (Birdeye, with a
// DexScreener fallback). Endpoint paths and response shapes are undocumented
// and unstable, so URLs are configuration and responses are treated as opaque
// bytes until the extract package finds the record array.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds every upstream request so a hung connection cannot
// stall a category's schedule.
const DefaultTimeout = 15 * time.Second

// Sentinel errors folded into the scheduler's state transitions.
var (
	// ErrRateLimited signals HTTP 429; the scheduler responds with
	// exponential backoff.
	ErrRateLimited = errors.New("upstream rate limited (429)")

	// ErrNoEndpoint signals that every candidate URL failed probing.
	ErrNoEndpoint = errors.New("no working upstream endpoint")

	// ErrMissingAPIKey signals that the upstream requires a key and none is
	// configured. The poll cycle logs and retries later instead of crashing.
	ErrMissingAPIKey = errors.New("upstream API key not configured")
)

// Client issues authenticated GET requests against upstream endpoints.
type Client struct {
	httpClient *http.Client
	apiKey     string
	chain      string
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates an upstream client. apiKey may be empty for keyless
// upstreams (DexScreener); chain is sent as the x-chain header when set.
func NewClient(apiKey, chain string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		apiKey:     apiKey,
		chain:      chain,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch GETs url and returns the raw body. 429 maps to ErrRateLimited; other
// non-2xx statuses are plain errors. A 200 with a surprising body is returned
// as-is: "expected array not found" is a zero-record cycle, not a fetch error.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	return body, nil
}

// Probe issues a lightweight GET to decide whether a candidate URL currently
// works. Some upstream revisions wrap failures in a 200 JSON body, so a body
// that declares failure is rejected too.
func (c *Client) Probe(ctx context.Context, url string) error {
	body, err := c.Fetch(ctx, url)
	if err != nil {
		return err
	}
	if bodyIndicatesFailure(body) {
		return fmt.Errorf("endpoint %s returned application-level failure", url)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}
	if c.chain != "" {
		req.Header.Set("x-chain", c.chain)
	}
}

// bodyIndicatesFailure checks for the `"success": false` envelope some
// upstream revisions wrap errors in. Anything that is not an object carrying
// an explicit false is treated as healthy.
func bodyIndicatesFailure(body []byte) bool {
	var envelope struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false
	}
	return envelope.Success != nil && !*envelope.Success
}
