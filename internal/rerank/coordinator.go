// Package rerank implements the multi-stage reranking coordinator of
// spec.md §4.5: category prediction, BM25 boost, relation/entity scoring,
// cross-encoder reranking, MMR diversity, and a clause-indexer fallback,
// gated by a decaying failure counter that trims stage 3 under sustained
// dependency pressure.
package rerank

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"github.com/nithin8919/policyretrieval/internal/retrieval"
)

// comprehensiveModes force stage 3 on regardless of per-query quality
// signals (spec.md §4.5's "comprehensive retrieval contract").
var comprehensiveModes = map[retrieval.Mode]bool{
	retrieval.ModeDeepthink:  true,
	retrieval.ModeBrainstorm: true,
}

// crossEncoderTopM implements spec.md §4.5 stage 4's mode-keyed M.
func crossEncoderTopM(mode retrieval.Mode) int {
	switch mode {
	case retrieval.ModePolicy, retrieval.ModeFramework, retrieval.ModeDeepthink, retrieval.ModeBrainstorm:
		return 30
	default:
		return 25
	}
}

// Coordinator runs the reranking pipeline for one engine. A single instance
// is shared across queries; its recentTimeouts counter and worker pool are
// the only state that outlives a single Rerank call.
type Coordinator struct {
	crossEncoder CrossEncoder
	embedder     Embedder
	expansion    ExpansionClient
	clauseIndex  ClauseIndex
	pool         *ants.Pool

	recentTimeouts atomic.Int64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithExpansion wires the storage dependency stage 3(c) needs to hydrate
// relation neighbors.
func WithExpansion(client ExpansionClient) Option {
	return func(c *Coordinator) { c.expansion = client }
}

// WithClauseIndex wires stage 6's fallback lookup.
func WithClauseIndex(index ClauseIndex) Option {
	return func(c *Coordinator) { c.clauseIndex = index }
}

// NewCoordinator builds a Coordinator. crossEncoder and embedder must be
// non-nil; use NoOpCrossEncoder when no model is configured. poolSize
// bounds the goroutine pool shared by stages 2/3's concurrent execution and
// stage 3(c)'s per-candidate neighbor expansion.
func NewCoordinator(crossEncoder CrossEncoder, embedder Embedder, poolSize int, opts ...Option) (*Coordinator, error) {
	if poolSize <= 0 {
		poolSize = 8
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}
	c := &Coordinator{crossEncoder: crossEncoder, embedder: embedder, pool: pool}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close releases the goroutine pool.
func (c *Coordinator) Close() {
	c.pool.Release()
}

// Input bundles everything Rerank needs about the originating query beyond
// the candidate list itself.
type Input struct {
	NormalizedQuery string
	Entities        map[string][]string
	Confidence      float64
	QueryWordCount  int
	Plan            retrieval.Plan
}

// Rerank runs the full stage pipeline over candidates and returns the
// reordered result set.
func (c *Coordinator) Rerank(ctx context.Context, in Input, candidates []*retrieval.Evidence) ([]*retrieval.Evidence, []retrieval.TraceStep, error) {
	if len(candidates) == 0 {
		return candidates, nil, nil
	}
	sortByScoreDesc(candidates)

	var steps []retrieval.TraceStep
	categories := PredictCategories(candidates)
	steps = append(steps, retrieval.TraceStep{Name: "category_prediction", AtStage: "rerank"})

	runBM25 := ShouldRunBM25Boost(candidates)
	runRelationEntity := c.needsRelationEntity(in, candidates)

	var bm25Deltas, relationDeltas, entityDeltas map[string]float64
	var expanded []*retrieval.Evidence
	if runBM25 || runRelationEntity {
		var wg sync.WaitGroup
		if runBM25 {
			wg.Add(1)
			c.submit(&wg, func() { bm25Deltas = ApplyBM25Boost(candidates) })
		}
		if runRelationEntity {
			wg.Add(1)
			c.submit(&wg, func() {
				relationDeltas = ScoreRelations(candidates, in.Entities)
				entityDeltas = MatchEntities(candidates, in.Entities)
				if c.expansion != nil {
					expanded = ExpandEntities(ctx, c.expansion, candidates)
				}
			})
		}
		wg.Wait()
	}
	applyDeltas(candidates, bm25Deltas)
	applyDeltas(candidates, relationDeltas)
	applyDeltas(candidates, entityDeltas)
	if runBM25 {
		steps = append(steps, retrieval.TraceStep{Name: "bm25_boost", AtStage: "rerank"})
	}
	if runRelationEntity {
		steps = append(steps, retrieval.TraceStep{Name: "relation_entity", AtStage: "rerank"})
		candidates = append(candidates, expanded...)
	}
	sortByScoreDesc(candidates)

	m := crossEncoderTopM(in.Plan.Mode)
	candidates, err := c.runCrossEncoder(ctx, in.NormalizedQuery, candidates, m)
	if err != nil {
		c.recordTimeout()
	} else {
		c.recordSuccess()
	}
	steps = append(steps, retrieval.TraceStep{Name: "cross_encoder", AtStage: "rerank"})

	if ShouldRunMMR(candidates, in.Plan.UseMMR) {
		reordered, err := ApplyMMR(ctx, c.embedder, candidates, categories, in.Plan.DiversityWeight)
		if err == nil {
			candidates = reordered
		}
		steps = append(steps, retrieval.TraceStep{Name: "mmr_diversity", AtStage: "rerank"})
	}

	if c.clauseIndex != nil && c.expansion != nil && len(candidates) > 0 && NeedsClauseFallback(len(candidates), in.NormalizedQuery) {
		merged, err := ApplyClauseFallback(ctx, c.clauseIndex, c.expansion, candidates[0].Vertical, in.NormalizedQuery, candidates)
		if err == nil {
			candidates = merged
		}
		steps = append(steps, retrieval.TraceStep{Name: "clause_fallback", AtStage: "rerank"})
	}

	return candidates, steps, nil
}

// RerankFastPath runs only stage 4 (cross-encoder) over candidates, used by
// the clause/citation fast-path (spec.md §4.6) which skips category
// prediction, BM25 boost, relation/entity scoring, MMR, and the clause
// fallback itself — the candidate set already came from the clause index.
func (c *Coordinator) RerankFastPath(ctx context.Context, query string, candidates []*retrieval.Evidence) ([]*retrieval.Evidence, []retrieval.TraceStep, error) {
	if len(candidates) == 0 {
		return candidates, nil, nil
	}
	sortByScoreDesc(candidates)
	candidates, err := c.runCrossEncoder(ctx, query, candidates, len(candidates))
	if err != nil {
		c.recordTimeout()
		return candidates, nil, nil
	}
	c.recordSuccess()
	return candidates, []retrieval.TraceStep{{Name: "cross_encoder", AtStage: "rerank"}}, nil
}

// needsRelationEntity implements spec.md §4.5's conditional rules, in the
// order the spec lists them: QA fast-path can turn it off, a comprehensive
// mode forces it back on, and the circuit breaker has the final say — a
// sustained dependency failure is worth respecting even for a mode whose
// contract otherwise demands comprehensive retrieval.
func (c *Coordinator) needsRelationEntity(in Input, candidates []*retrieval.Evidence) bool {
	needs := true

	if in.Plan.Mode == retrieval.ModeQA && qaFastPathQualifies(candidates, in.Confidence, in.QueryWordCount) {
		needs = false
	}
	if comprehensiveModes[in.Plan.Mode] {
		needs = true
	}

	threshold := int64(3)
	if comprehensiveModes[in.Plan.Mode] {
		threshold = 5
	}
	if c.recentTimeouts.Load() >= threshold {
		needs = false
	}
	return needs
}

func qaFastPathQualifies(candidates []*retrieval.Evidence, confidence float64, wordCount int) bool {
	if len(candidates) < 3 {
		return false
	}
	top3 := candidates[:3]
	sum := 0.0
	for _, ev := range top3 {
		if ev.Score <= 0.7 {
			return false
		}
		sum += ev.Score
	}
	avg := sum / 3
	return avg > 0.65 && confidence > 0.8 && wordCount < 8
}

func (c *Coordinator) runCrossEncoder(ctx context.Context, query string, candidates []*retrieval.Evidence, m int) ([]*retrieval.Evidence, error) {
	top := candidates
	rest := []*retrieval.Evidence{}
	if len(top) > m {
		rest = append(rest, candidates[m:]...)
		top = candidates[:m]
	}

	passages := make([]string, len(top))
	for i, ev := range top {
		passages[i] = ev.Text
	}
	results, err := c.crossEncoder.Score(ctx, query, passages)
	if err != nil {
		return candidates, err
	}
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(top) {
			continue
		}
		ev := top[r.Index]
		if ev.RawScores == nil {
			ev.RawScores = map[string]float64{}
		}
		ev.RawScores["rerank"] = ev.Score
		ev.Score = r.Score
	}
	sortByScoreDesc(top)
	return append(top, rest...), nil
}

// submit runs fn on the coordinator's goroutine pool, falling back to a
// direct goroutine if the pool is saturated (ants.Pool.Submit is
// non-blocking and errors under load rather than queueing indefinitely).
func (c *Coordinator) submit(wg *sync.WaitGroup, fn func()) {
	task := func() {
		defer wg.Done()
		fn()
	}
	if err := c.pool.Submit(task); err != nil {
		go task()
	}
}

func (c *Coordinator) recordTimeout() {
	c.recentTimeouts.Add(1)
}

func (c *Coordinator) recordSuccess() {
	for {
		cur := c.recentTimeouts.Load()
		if cur == 0 {
			return
		}
		if c.recentTimeouts.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

func applyDeltas(candidates []*retrieval.Evidence, deltas map[string]float64) {
	if len(deltas) == 0 {
		return
	}
	for _, ev := range candidates {
		if d, ok := deltas[ev.ChunkID]; ok {
			ev.Score += d
		}
	}
}

func sortByScoreDesc(evidence []*retrieval.Evidence) {
	sort.SliceStable(evidence, func(i, j int) bool {
		return evidence[i].Score > evidence[j].Score
	})
}
