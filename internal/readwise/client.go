// Package readwise provides the HTTP client for the remote Readwise
// highlight-search API.
package readwise

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// initializePath is the remote handshake endpoint.
	initializePath = "/api/mcp/initialize"

	// highlightsPath is the remote highlight-search endpoint.
	highlightsPath = "/api/mcp/highlights"
)

// RetryPolicy decides whether a finished attempt should be retried.
// resp is nil when no response was received.
type RetryPolicy func(resp *http.Response, err error) bool

// DefaultRetryPolicy retries when no response was received or the response
// status is >= 400. Retrying 4xx responses cannot succeed but is preserved
// for compatibility with the upstream service's observed behavior; supply a
// custom policy to change it.
func DefaultRetryPolicy(resp *http.Response, err error) bool {
	return err != nil || resp.StatusCode >= 400
}

// Config holds the client configuration. It is read-only after construction
// and safe for concurrent use by overlapping requests.
type Config struct {
	// BaseURL is the remote service base URL, e.g. https://readwise.io.
	BaseURL string

	// AccessToken is sent as the bearer credential on every request.
	AccessToken string

	// Timeout bounds each individual HTTP attempt. Defaults to 10s.
	Timeout time.Duration

	// MaxRetries is the number of automatic retries after a failed attempt.
	// Defaults to 3 (4 total attempts).
	MaxRetries int

	// RetryDelay is the fixed delay between attempts. Defaults to 5s.
	RetryDelay time.Duration

	// ShouldRetry overrides the retry predicate. Defaults to DefaultRetryPolicy.
	ShouldRetry RetryPolicy
}

// Client is the remote highlight-search proxy.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// FullTextQuery is one field-scoped text query.
type FullTextQuery struct {
	FieldName  string `json:"field_name"`
	SearchTerm string `json:"search_term"`
}

// SearchRequest is the validated payload forwarded to the highlights endpoint.
type SearchRequest struct {
	VectorSearchTerm string          `json:"vector_search_term,omitempty"`
	FullTextQueries  []FullTextQuery `json:"full_text_queries,omitempty"`
}

// searchResponse is the expected remote success shape. Result items are
// opaque and passed through without interpretation.
type searchResponse struct {
	Results []json.RawMessage `json:"results"`
}

// NewClient creates a Readwise API client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = DefaultRetryPolicy
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Initialize performs the one-shot handshake call against the remote
// initialization endpoint. No retries. The response body is logged and
// otherwise ignored.
func (c *Client) Initialize(ctx context.Context) error {
	resp, err := c.post(ctx, initializePath, []byte("{}"))
	if err != nil {
		log.Warn().Err(err).Msg("Readwise initialize handshake failed")
		return fmt.Errorf("initialize handshake: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	log.Debug().
		Int("status", resp.StatusCode).
		Str("body", string(body)).
		Msg("Readwise initialize handshake response")
	return nil
}

// SearchHighlights forwards the validated payload to the remote search
// endpoint and returns the results list in remote order. Failed attempts are
// retried per the configured policy with a fixed inter-retry delay. After
// retries are exhausted the caller observes a generic failure; the structured
// cause is logged here only.
func (c *Client) SearchHighlights(ctx context.Context, req *SearchRequest) ([]json.RawMessage, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal search payload: %w", err)
	}

	attempts := c.cfg.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.post(ctx, highlightsPath, payload)
		if !c.cfg.ShouldRetry(resp, err) {
			if err != nil {
				return nil, fmt.Errorf("search highlights: %w", err)
			}
			return decodeResults(resp)
		}

		status := 0
		if resp != nil {
			// Drain so the connection can be reused.
			status = resp.StatusCode
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
		}
		log.Warn().
			Err(err).
			Int("status", status).
			Int("attempt", attempt).
			Int("maxAttempts", attempts).
			Msg("Readwise search attempt failed")

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("search highlights: %w", ctx.Err())
		case <-time.After(c.cfg.RetryDelay):
		}
	}

	return nil, fmt.Errorf("search highlights failed after %d attempts", attempts)
}

// post issues one JSON POST attempt against the remote service.
func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	return c.httpClient.Do(req)
}

// decodeResults extracts the results list from a successful response.
func decodeResults(resp *http.Response) ([]json.RawMessage, error) {
	defer resp.Body.Close()

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if parsed.Results == nil {
		parsed.Results = []json.RawMessage{}
	}
	return parsed.Results, nil
}
