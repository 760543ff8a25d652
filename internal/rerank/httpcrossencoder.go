package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultCrossEncoderEndpoint = "http://localhost:9659"
	DefaultCrossEncoderModel    = "reranker-small"
)

// HTTPCrossEncoderConfig configures the HTTP cross-encoder client.
type HTTPCrossEncoderConfig struct {
	Endpoint        string
	Model           string
	Timeout         time.Duration
	SkipHealthCheck bool
}

// DefaultHTTPCrossEncoderConfig returns sensible defaults.
func DefaultHTTPCrossEncoderConfig() HTTPCrossEncoderConfig {
	return HTTPCrossEncoderConfig{
		Endpoint: DefaultCrossEncoderEndpoint,
		Model:    DefaultCrossEncoderModel,
		Timeout:  crossEncoderTimeout,
	}
}

// HTTPCrossEncoder implements CrossEncoder by calling a remote /rerank
// service. Meant to be wrapped in GuardedCrossEncoder before use.
type HTTPCrossEncoder struct {
	client   *http.Client
	config   HTTPCrossEncoderConfig
	endpoint string
}

var _ CrossEncoder = (*HTTPCrossEncoder)(nil)

// NewHTTPCrossEncoder creates a cross-encoder client and probes health
// unless cfg.SkipHealthCheck is set.
func NewHTTPCrossEncoder(ctx context.Context, cfg HTTPCrossEncoderConfig) (*HTTPCrossEncoder, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultCrossEncoderEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultCrossEncoderModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = crossEncoderTimeout
	}

	e := &HTTPCrossEncoder{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		config:   cfg,
		endpoint: cfg.Endpoint,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := e.healthCheck(checkCtx); err != nil {
			return nil, fmt.Errorf("cross-encoder health check failed: %w", err)
		}
	}
	return e, nil
}

func (e *HTTPCrossEncoder) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cross-encoder server unhealthy: %s", resp.Status)
	}
	return nil
}

type httpRerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
}

type httpRerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// Score implements CrossEncoder by POSTing to the service's /rerank
// endpoint. Passages are sent as-is; truncation is the caller's job
// (GuardedCrossEncoder does this before delegating here).
func (e *HTTPCrossEncoder) Score(ctx context.Context, query string, passages []string) ([]CrossEncoderResult, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(httpRerankRequest{Query: query, Documents: passages, Model: e.config.Model})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank service returned %s: %s", resp.Status, string(respBody))
	}

	var parsed httpRerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	out := make([]CrossEncoderResult, len(parsed.Results))
	for i, r := range parsed.Results {
		out[i] = CrossEncoderResult{Index: r.Index, Score: r.Score}
	}
	return out, nil
}

// Close releases the connection pool.
func (e *HTTPCrossEncoder) Close() {
	e.client.CloseIdleConnections()
}
