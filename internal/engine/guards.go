package engine

import (
	"context"

	"github.com/nithin8919/policyretrieval/internal/embed"
	"github.com/nithin8919/policyretrieval/internal/indexclient"
	"github.com/nithin8919/policyretrieval/internal/internet"
	"github.com/nithin8919/policyretrieval/internal/rerrors"
	"github.com/nithin8919/policyretrieval/internal/retrieval"
)

// Breaker names for spec.md §5's three engine-owned suspension points. The
// LLM rewriter guards itself internally (understanding.Rewriter's own
// timeout plus permanent downgrade-on-auth-failure); the cross-encoder is
// guarded by rerank.GuardedCrossEncoder. These three are the rest.
const (
	BreakerIndexClient     = "index_client"
	BreakerEmbedder        = "embedder"
	BreakerInternetFetcher = "internet_fetcher"
)

// GuardedIndexClient wraps an indexclient.Client with the index-client
// circuit breaker (spec.md §5 suspension point (a)). Once the breaker
// trips, every call degrades to an empty result instead of touching the
// dependency, matching the hybrid executor's own per-leg degrade contract
// (spec.md §7: DependencyTimeout is recovered locally, never raised).
type GuardedIndexClient struct {
	inner   indexclient.Client
	breaker *rerrors.CircuitBreaker
}

// NewGuardedIndexClient wires inner behind breaker.
func NewGuardedIndexClient(inner indexclient.Client, breaker *rerrors.CircuitBreaker) *GuardedIndexClient {
	return &GuardedIndexClient{inner: inner, breaker: breaker}
}

func (g *GuardedIndexClient) KNN(ctx context.Context, vertical retrieval.Vertical, vector []float32, topK int, filters []retrieval.Filter) ([]retrieval.ScoredID, error) {
	return rerrors.CircuitExecuteWithResult(g.breaker,
		func() ([]retrieval.ScoredID, error) {
			scored, err := g.inner.KNN(ctx, vertical, vector, topK, filters)
			return toRetrievalScoredIDs(scored), err
		},
		func() ([]retrieval.ScoredID, error) { return nil, nil },
	)
}

func (g *GuardedIndexClient) BM25(ctx context.Context, vertical retrieval.Vertical, query string, topK int, filters []retrieval.Filter) ([]retrieval.ScoredID, error) {
	return rerrors.CircuitExecuteWithResult(g.breaker,
		func() ([]retrieval.ScoredID, error) {
			scored, err := g.inner.BM25(ctx, vertical, query, topK, filters)
			return toRetrievalScoredIDs(scored), err
		},
		func() ([]retrieval.ScoredID, error) { return nil, nil },
	)
}

func (g *GuardedIndexClient) GetByIDs(ctx context.Context, vertical retrieval.Vertical, ids []string) ([]*retrieval.Evidence, error) {
	return rerrors.CircuitExecuteWithResult(g.breaker,
		func() ([]*retrieval.Evidence, error) { return g.inner.GetByIDs(ctx, vertical, ids) },
		func() ([]*retrieval.Evidence, error) { return nil, nil },
	)
}

func toRetrievalScoredIDs(in []indexclient.ScoredID) []retrieval.ScoredID {
	if in == nil {
		return nil
	}
	out := make([]retrieval.ScoredID, len(in))
	for i, s := range in {
		out[i] = retrieval.ScoredID{ChunkID: s.ChunkID, Score: s.Score}
	}
	return out
}

var _ retrieval.IndexClient = (*GuardedIndexClient)(nil)

// GuardedEmbedder wraps an embed.Embedder with the embedder circuit breaker
// (spec.md §5 suspension point (c)). Its single method satisfies both
// retrieval.Embedder and rerank.Embedder structurally, so one instance —
// and one breaker — can be shared by the hybrid executor and the
// reranking coordinator's MMR stage, which is the same dependency under
// spec.md's suspension-point accounting.
type GuardedEmbedder struct {
	inner   embed.Embedder
	breaker *rerrors.CircuitBreaker
}

// NewGuardedEmbedder wires inner behind breaker.
func NewGuardedEmbedder(inner embed.Embedder, breaker *rerrors.CircuitBreaker) *GuardedEmbedder {
	return &GuardedEmbedder{inner: inner, breaker: breaker}
}

func (g *GuardedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return rerrors.CircuitExecuteWithResult(g.breaker,
		func() ([][]float32, error) { return g.inner.EmbedBatch(ctx, texts) },
		func() ([][]float32, error) { return make([][]float32, len(texts)), nil },
	)
}

var _ retrieval.Embedder = (*GuardedEmbedder)(nil)

// GuardedInternet wraps an internet.Client with the internet-fetcher
// circuit breaker (spec.md §5 suspension point (e)), observing FetchErr's
// real failures while still handing callers the same degrade-to-empty
// contract Fetch itself offers.
type GuardedInternet struct {
	inner   *internet.Client
	breaker *rerrors.CircuitBreaker
}

// NewGuardedInternet wires inner behind breaker.
func NewGuardedInternet(inner *internet.Client, breaker *rerrors.CircuitBreaker) *GuardedInternet {
	return &GuardedInternet{inner: inner, breaker: breaker}
}

func (g *GuardedInternet) Fetch(ctx context.Context, query string, n int) []*retrieval.Evidence {
	out, _ := rerrors.CircuitExecuteWithResult(g.breaker,
		func() ([]*retrieval.Evidence, error) { return g.inner.FetchErr(ctx, query, n) },
		func() ([]*retrieval.Evidence, error) { return nil, nil },
	)
	return out
}

// Guards bundles the three breaker-wrapped dependencies the composition
// root wires once and shares between the engine and the reranking
// coordinator (the embedder guard in particular must be the same instance
// passed to rerank.NewCoordinator, since the executor and MMR share a
// single suspension point).
type Guards struct {
	Index    *GuardedIndexClient
	Embedder *GuardedEmbedder
	Internet *GuardedInternet

	IndexBreaker    *rerrors.CircuitBreaker
	EmbedBreaker    *rerrors.CircuitBreaker
	InternetBreaker *rerrors.CircuitBreaker
}

// NewGuards builds the three engine-owned circuit breakers and wraps index,
// embedder, and internetClient behind them. internetClient may be nil when
// the internet leg is not configured.
func NewGuards(index indexclient.Client, embedder embed.Embedder, internetClient *internet.Client) *Guards {
	g := &Guards{
		IndexBreaker:    rerrors.NewCircuitBreaker(BreakerIndexClient),
		EmbedBreaker:    rerrors.NewCircuitBreaker(BreakerEmbedder),
		InternetBreaker: rerrors.NewCircuitBreaker(BreakerInternetFetcher),
	}
	g.Index = NewGuardedIndexClient(index, g.IndexBreaker)
	g.Embedder = NewGuardedEmbedder(embedder, g.EmbedBreaker)
	if internetClient != nil {
		g.Internet = NewGuardedInternet(internetClient, g.InternetBreaker)
	}
	return g
}
