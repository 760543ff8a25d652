package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/nithin8919/policyretrieval/internal/rerrors"
)

// ServiceEmbedder generates embeddings by calling a remote HTTP embedding
// service (Ollama-protocol compatible). This is the production embedder:
// the retrieval engine never embeds text itself.
type ServiceEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    ServiceConfig
	dims      int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*ServiceEmbedder)(nil)

// NewServiceEmbedder creates a new embedding-service client and probes
// availability unless cfg.SkipHealthCheck is set.
func NewServiceEmbedder(ctx context.Context, cfg ServiceConfig) (*ServiceEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultServiceHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultServiceModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = ServiceConnectTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = ServicePoolSize
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	e := &ServiceEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      Dimensions,
	}

	if !cfg.SkipHealthCheck {
		healthCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		if !e.Available(healthCtx) {
			return nil, fmt.Errorf("embedding service at %s unreachable", cfg.Host)
		}
	}

	return e, nil
}

// Embed generates an embedding for a single text.
func (e *ServiceEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request, with
// retry on transient failure.
func (e *ServiceEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > MaxBatchSize {
		return nil, rerrors.New(rerrors.CategoryInvalidQuery, "embed", fmt.Sprintf("batch of %d exceeds max %d", len(texts), MaxBatchSize))
	}

	retryCfg := rerrors.DefaultRetryConfig()
	retryCfg.MaxRetries = e.config.MaxRetries

	return rerrors.RetryWithResult(ctx, retryCfg, func() ([][]float32, error) {
		return e.doEmbed(ctx, texts)
	})
}

func (e *ServiceEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}

	body, err := json.Marshal(embedRequest{Model: e.config.Model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, rerrors.Wrap(rerrors.CategoryDependencyTimeout, "embed", "embedding service request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, rerrors.New(rerrors.CategoryIndexError, "embed", fmt.Sprintf("embedding service returned %s: %s", resp.Status, string(respBody)))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}

	if len(parsed.Embeddings) != len(texts) {
		return nil, rerrors.InternalInvariantViolation("embed", fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(parsed.Embeddings)))
	}

	results := make([][]float32, len(parsed.Embeddings))
	for i, emb := range parsed.Embeddings {
		if len(emb) != e.dims {
			return nil, rerrors.New(rerrors.CategoryIndexError, "embed", fmt.Sprintf("embedding dimension mismatch: got %d, want %d", len(emb), e.dims))
		}
		v := make([]float32, len(emb))
		for j, f := range emb {
			v[j] = float32(f)
		}
		results[i] = normalizeVector(v)
	}

	return results, nil
}

func (e *ServiceEmbedder) Dimensions() int  { return e.dims }
func (e *ServiceEmbedder) ModelName() string { return e.config.Model }

// Available performs a lightweight health probe against the service.
func (e *ServiceEmbedder) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close releases the connection pool.
func (e *ServiceEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
