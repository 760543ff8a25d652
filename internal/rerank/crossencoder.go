package rerank

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// maxPassageChars is spec.md §4.5 stage 4's joint-encoding truncation
// length.
const maxPassageChars = 512

// crossEncoderTimeout bounds the suspension point spec.md §5(d) names.
const crossEncoderTimeout = 3 * time.Second

// CrossEncoderResult is one (query, passage) relevance judgment.
type CrossEncoderResult struct {
	Index int
	Score float64
}

// CrossEncoder scores passages jointly with the query. Mirrors the
// teacher's Reranker contract but returns raw per-index scores so the
// coordinator keeps ownership of reordering and raw-score bookkeeping.
type CrossEncoder interface {
	Score(ctx context.Context, query string, passages []string) ([]CrossEncoderResult, error)
}

// GuardedCrossEncoder wraps a CrossEncoder with a gobreaker circuit breaker
// so repeated cross-encoder timeouts stop adding latency to every query
// instead of being retried call after call.
type GuardedCrossEncoder struct {
	inner   CrossEncoder
	breaker *gobreaker.CircuitBreaker
}

// NewGuardedCrossEncoder builds a breaker-guarded cross-encoder. Opens after
// 3 consecutive failures, half-opens after 15s.
func NewGuardedCrossEncoder(inner CrossEncoder) *GuardedCrossEncoder {
	settings := gobreaker.Settings{
		Name:        "cross_encoder",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &GuardedCrossEncoder{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Score runs inner.Score through the breaker, truncating each passage to
// maxPassageChars and bounding the call to crossEncoderTimeout.
func (g *GuardedCrossEncoder) Score(ctx context.Context, query string, passages []string) ([]CrossEncoderResult, error) {
	truncated := make([]string, len(passages))
	for i, p := range passages {
		if len(p) > maxPassageChars {
			p = p[:maxPassageChars]
		}
		truncated[i] = p
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		cctx, cancel := context.WithTimeout(ctx, crossEncoderTimeout)
		defer cancel()
		return g.inner.Score(cctx, query, truncated)
	})
	if err != nil {
		return nil, err
	}
	return result.([]CrossEncoderResult), nil
}
