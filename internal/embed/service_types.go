package embed

import "time"

// Defaults for the HTTP embedding service client. The service speaks the
// same wire protocol as Ollama's /api/embed endpoint, which is widely
// available as a local or sidecar embedding server.
const (
	DefaultServiceHost = "http://localhost:11434"

	// DefaultServiceModel is a general-purpose text embedding model
	// suitable for government-policy prose (statutes, orders, judgments),
	// not a code-embedding model.
	DefaultServiceModel = "nomic-embed-text"

	ServiceConnectTimeout = 5 * time.Second
	ServicePoolSize       = 8
)

// ServiceConfig configures the HTTP embedding service client.
type ServiceConfig struct {
	Host           string
	Model          string
	Timeout        time.Duration
	ConnectTimeout time.Duration
	MaxRetries     int
	PoolSize       int

	// SkipHealthCheck skips the startup availability probe, used in tests.
	SkipHealthCheck bool
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Host:           DefaultServiceHost,
		Model:          DefaultServiceModel,
		Timeout:        DefaultTimeout,
		ConnectTimeout: ServiceConnectTimeout,
		MaxRetries:     DefaultMaxRetries,
		PoolSize:       ServicePoolSize,
	}
}

// embedRequest is the /api/embed request body.
type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

// embedResponse is the /api/embed response body.
type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}
