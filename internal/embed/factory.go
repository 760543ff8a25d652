package embed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderService uses a remote HTTP embedding service (default).
	ProviderService ProviderType = "service"

	// ProviderStatic uses the deterministic hash-based embedder, for tests
	// and as a last-resort fallback when no service is configured.
	ProviderStatic ProviderType = "static"
)

// NewEmbedder creates an embedder for the given provider, wrapped with
// query-embedding cache unless POLICYQA_EMBED_CACHE=false.
//
// POLICYQA_EMBEDDER overrides provider selection; POLICYQA_EMBED_HOST and
// POLICYQA_EMBED_MODEL override the service config when provider is
// "service".
func NewEmbedder(ctx context.Context, provider ProviderType, model string) (Embedder, error) {
	if envProvider := os.Getenv("POLICYQA_EMBEDDER"); envProvider != "" {
		provider = ParseProvider(envProvider)
	}

	var embedder Embedder
	var err error

	switch provider {
	case ProviderStatic:
		embedder = NewStaticEmbedder768()
	default:
		embedder, err = newServiceEmbedder(ctx, model)
	}
	if err != nil {
		return nil, err
	}

	if !isCacheDisabled() {
		embedder = NewCachedEmbedderWithDefaults(embedder)
	}
	return embedder, nil
}

func newServiceEmbedder(ctx context.Context, model string) (Embedder, error) {
	cfg := DefaultServiceConfig()
	if model != "" {
		cfg.Model = model
	}
	if host := os.Getenv("POLICYQA_EMBED_HOST"); host != "" {
		cfg.Host = host
	}
	if modelOverride := os.Getenv("POLICYQA_EMBED_MODEL"); modelOverride != "" {
		cfg.Model = modelOverride
	}
	if timeoutStr := os.Getenv("POLICYQA_EMBED_TIMEOUT"); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil {
			cfg.Timeout = timeout
		}
	}

	embedder, err := NewServiceEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding service unavailable: %w\n\nTo fix:\n  1. Start an Ollama-protocol embedding server\n  2. Or fall back to POLICYQA_EMBEDDER=static for degraded offline operation", err)
	}
	return embedder, nil
}

func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("POLICYQA_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

// ParseProvider converts a string to ProviderType, defaulting to the
// service provider for anything unrecognized.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "static":
		return ProviderStatic
	default:
		return ProviderService
	}
}

func (p ProviderType) String() string { return string(p) }

// ValidProviders returns all valid provider names.
func ValidProviders() []string {
	return []string{string(ProviderService), string(ProviderStatic)}
}

// EmbedderInfo describes a resolved embedder, for diagnostics.
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo inspects an embedder, unwrapping the cache layer if present.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.inner
	}

	switch inner.(type) {
	case *ServiceEmbedder:
		info.Provider = ProviderService
	default:
		info.Provider = ProviderStatic
	}
	return info
}

// MustNewEmbedder creates an embedder and panics on failure. Use only in
// tests or init paths where failure is fatal.
func MustNewEmbedder(ctx context.Context, provider ProviderType, model string) Embedder {
	embedder, err := NewEmbedder(ctx, provider, model)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder: %v", err))
	}
	return embedder
}
