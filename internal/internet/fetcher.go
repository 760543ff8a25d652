package internet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nithin8919/policyretrieval/internal/rerrors"
	"github.com/nithin8919/policyretrieval/internal/retrieval"
)

// Client fetches web search results over HTTP and maps them into Evidence.
// This is the fifth suspension point of the engine: on failure it degrades
// to zero results rather than failing the whole retrieval.
type Client struct {
	client *http.Client
	config Config
}

// NewClient builds an internet search client. No health check is performed
// at construction time — the fetcher is best-effort by contract, so a dead
// endpoint is simply a failed Fetch, not a failed startup.
func NewClient(cfg Config) *Client {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     10 * time.Second,
	}

	return &Client{
		client: &http.Client{Transport: transport},
		config: cfg,
	}
}

// Fetch runs a web search for query and maps up to n results (n<=0 uses the
// client's configured TopN) into internet-vertical Evidence. On any error it
// logs a warning and returns an empty, non-error result: the caller treats
// a missing internet leg as a degraded-but-valid retrieval, never a failure.
func (c *Client) Fetch(ctx context.Context, query string, n int) []*retrieval.Evidence {
	out, err := c.FetchErr(ctx, query, n)
	if err != nil {
		slog.Warn("internet fetch failed, contributing zero results", "query", query, "error", err)
		return nil
	}
	return out
}

// FetchErr is Fetch with the underlying error surfaced instead of swallowed,
// for callers (the engine's suspension-point circuit breaker) that need to
// observe failures to track dependency health.
func (c *Client) FetchErr(ctx context.Context, query string, n int) ([]*retrieval.Evidence, error) {
	if n <= 0 {
		n = c.config.TopN
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	retryCfg := rerrors.DefaultRetryConfig()
	retryCfg.MaxRetries = c.config.MaxRetries

	results, err := rerrors.RetryWithResult(reqCtx, retryCfg, func() ([]searchResult, error) {
		return c.doSearch(reqCtx, query, n)
	})
	if err != nil {
		return nil, err
	}

	out := make([]*retrieval.Evidence, 0, len(results))
	for rank, r := range results {
		if rank >= n {
			break
		}
		score := (scoreBase - scoreStep*float64(rank)) * downweight
		out = append(out, &retrieval.Evidence{
			ChunkID:  r.URL,
			DocID:    r.URL,
			Vertical: retrieval.VerticalInternet,
			Text:     r.Snippet,
			Score:    score,
			RawScores: map[string]float64{
				"internet": score,
			},
			Metadata: retrieval.EvidenceMetadata{
				SourceURL: r.URL,
				Extras:    map[string]string{"title": r.Title},
			},
		})
	}
	return out, nil
}

func (c *Client) doSearch(ctx context.Context, query string, n int) ([]searchResult, error) {
	body, err := json.Marshal(searchRequest{Query: query, NumResults: n})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Host+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, rerrors.Wrap(rerrors.CategoryDependencyTimeout, "internet", "search request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, rerrors.New(rerrors.CategoryDependencyTimeout, "internet", fmt.Sprintf("search service returned %s: %s", resp.Status, string(respBody)))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return parsed.Results, nil
}

// Close releases the connection pool.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}
