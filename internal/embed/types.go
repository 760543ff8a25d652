// Package embed generates vector embeddings for queries.
package embed

import (
	"context"
	"math"
	"time"
)

// Dimensions is the fixed embedding width every vector in the system must
// satisfy (spec's 768-dim contract). Index client, cache, and every
// Embedder implementation validate against this.
const Dimensions = 768

const (
	// DefaultBatchSize is the default batch size for multi-query expansion
	// embedding calls (rewrites + expansions embedded together).
	DefaultBatchSize = 8

	// MaxBatchSize bounds a single EmbedBatch call.
	MaxBatchSize = 64

	// DefaultTimeout bounds a single embedding request. Query embedding is
	// on the hot path so this is deliberately tight compared to an
	// indexing-time embedder.
	DefaultTimeout = 5 * time.Second

	// DefaultMaxRetries is the retry budget for a transient embedding
	// service failure before the caller's circuit breaker takes over.
	DefaultMaxRetries = 2
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one round trip.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready to serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
