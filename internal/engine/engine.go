// Package engine implements the single retrieval entry point (spec.md
// §4.8): normalize, clause fast-path, query understanding, routing,
// hybrid execution, result processing, reranking, trim, cache. It is the
// only package that wires every other stage together.
package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nithin8919/policyretrieval/internal/clauseindex"
	"github.com/nithin8919/policyretrieval/internal/querycache"
	"github.com/nithin8919/policyretrieval/internal/rerank"
	"github.com/nithin8919/policyretrieval/internal/rerrors"
	"github.com/nithin8919/policyretrieval/internal/retrieval"
	"github.com/nithin8919/policyretrieval/internal/routing"
	"github.com/nithin8919/policyretrieval/internal/telemetry"
	"github.com/nithin8919/policyretrieval/internal/understanding"
)

// clauseFastPathVerticals is every vertical the clause index's hits could
// belong to. Internet is excluded — a citation never resolves to a web
// result. The chunk IDs the clause index returns carry no vertical of
// their own, so hydration probes each in turn and keeps whatever a vertical
// actually has, relying on GetByIDs's documented silently-drops-missing-IDs
// contract.
var clauseFastPathVerticals = []retrieval.Vertical{
	retrieval.VerticalLegal,
	retrieval.VerticalGO,
	retrieval.VerticalJudicial,
	retrieval.VerticalData,
	retrieval.VerticalSchemes,
}

// clauseFastPathScore is the score assigned to a clause-index exact hit
// before the fast-path's lightweight rerank — these are exact citation
// matches, not similarity-ranked, so they start at the top of the scale.
const clauseFastPathScore = 1.0

// Engine is the single retrieval entry point. One instance is shared
// across queries; its cache, coordinator, and circuit breakers are the
// only state that outlives a single Retrieve call.
type Engine struct {
	guards      *Guards
	rewriter    *understanding.Rewriter
	executor    *retrieval.Executor
	coordinator *rerank.Coordinator

	clauseIndex *clauseindex.Index
	metrics     *telemetry.QueryMetrics

	cache  *querycache.Cache
	config Config
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithClauseIndex wires the optional clause/citation fast-path (spec.md
// §4.6).
func WithClauseIndex(index *clauseindex.Index) Option {
	return func(e *Engine) { e.clauseIndex = index }
}

// WithConfig overrides the engine's defaults.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// WithMetrics attaches a query telemetry collector. Every Retrieve call
// that passes input validation (cache hits and hard timeouts included) is
// recorded: query type (lexical for the clause fast-path, mixed otherwise),
// result count, and wall-clock latency. Without this option Stats returns nil.
func WithMetrics(m *telemetry.QueryMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New builds an Engine from a pre-wired Guards bundle (see NewGuards),
// rewriter, and coordinator, all of which must be non-nil. Guards.Internet
// may be nil, in which case plan.UseInternet is always treated as false.
// The coordinator is expected to have been built with the same
// guards.Embedder passed here, so the executor and the MMR stage share one
// "embedder" circuit breaker per spec.md §5.
func New(guards *Guards, rewriter *understanding.Rewriter, coordinator *rerank.Coordinator, opts ...Option) (*Engine, error) {
	e := &Engine{
		guards:      guards,
		rewriter:    rewriter,
		coordinator: coordinator,
		executor:    retrieval.NewExecutor(guards.Index, guards.Embedder),
		config:      DefaultConfig(),
	}

	for _, opt := range opts {
		opt(e)
	}

	cacheSize := e.config.CacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	e.cache = querycache.New(cacheSize)

	return e, nil
}

// Close releases the coordinator's and clause index's held resources.
// Callers own the lifetime of the index client, embedder, and internet
// client passed to New; Engine does not close them.
func (e *Engine) Close() {
	e.coordinator.Close()
	if e.clauseIndex != nil {
		_ = e.clauseIndex.Close()
	}
	if e.metrics != nil {
		_ = e.metrics.Close()
	}
}

// Stats returns a snapshot of query telemetry, or nil if no metrics
// collector was attached via WithMetrics.
func (e *Engine) Stats() *telemetry.QueryMetricsSnapshot {
	if e.metrics == nil {
		return nil
	}
	return e.metrics.Snapshot()
}

// Retrieve runs spec.md §4.8's orchestrator and returns a RetrievalOutput.
// It never returns an error except InvalidQuery — every other failure mode
// is absorbed into a degraded or partial output (spec.md §7).
func (e *Engine) Retrieve(ctx context.Context, query string, topKOverride int, override *routing.Override) (*retrieval.RetrievalOutput, error) {
	start := time.Now()
	if strings.TrimSpace(query) == "" {
		return nil, rerrors.InvalidQuery("query is empty")
	}
	if len(query) > MaxQueryLength {
		return nil, rerrors.InvalidQuery("query exceeds maximum length")
	}

	normalized := understanding.Normalize(query)
	interp := understanding.Interpret(normalized)
	plan := routing.BuildPlan(interp, normalized, override)

	if !e.config.EnableInternet {
		plan.UseInternet = false
	}
	if len(e.config.ForceFilter) > 0 {
		plan.ForcedFilter = append(append([]retrieval.Filter{}, plan.ForcedFilter...), e.config.ForceFilter...)
	}

	cacheKey := querycache.Key(plan.Mode, normalized, plan.ForcedFilter)

	hardMargin := e.config.HardMargin
	if hardMargin <= 0 {
		hardMargin = DefaultHardMargin
	}
	queryCtx, cancel := context.WithTimeout(ctx, plan.Timeout+hardMargin)
	defer cancel()

	output, err := e.cache.GetOrLoad(queryCtx, cacheKey, plan.Mode, func(loadCtx context.Context) (*retrieval.RetrievalOutput, error) {
		if fastOut, ok := e.tryClauseFastPath(loadCtx, normalized, interp, plan); ok {
			return fastOut, nil
		}
		return e.runPipeline(loadCtx, normalized, interp, plan)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			timeoutOut := e.hardTimeoutOutput(query, normalized, interp, plan)
			e.recordQuery(query, timeoutOut, time.Since(start))
			return timeoutOut, nil
		}
		return nil, err
	}

	output.OriginalQuery = query
	if topKOverride > 0 && topKOverride < len(output.Results) {
		trimmed := *output
		trimmed.Results = output.Results[:topKOverride]
		trimmed.FinalCount = topKOverride
		e.recordQuery(query, &trimmed, time.Since(start))
		return &trimmed, nil
	}
	e.recordQuery(query, output, time.Since(start))
	return output, nil
}

// recordQuery feeds one completed retrieval into the attached metrics
// collector. A no-op if WithMetrics was never configured. Queries served
// by the clause fast-path are classified as lexical (exact citation
// match); everything else runs the full dense+sparse hybrid and is
// classified as mixed.
func (e *Engine) recordQuery(query string, output *retrieval.RetrievalOutput, latency time.Duration) {
	if e.metrics == nil {
		return
	}
	queryType := telemetry.QueryTypeMixed
	if len(output.Steps) > 0 && output.Steps[0].Name == "clause_fast_path" {
		queryType = telemetry.QueryTypeLexical
	}
	e.metrics.Record(telemetry.QueryEvent{
		Query:       query,
		QueryType:   queryType,
		ResultCount: output.FinalCount,
		Latency:     latency,
		Timestamp:   time.Now(),
	})
}

// hardTimeoutOutput builds the empty partial result spec.md §4.8 requires
// when the query-level deadline fires before the loader committed anything.
func (e *Engine) hardTimeoutOutput(query, normalized string, interp retrieval.QueryInterpretation, plan retrieval.Plan) *retrieval.RetrievalOutput {
	return &retrieval.RetrievalOutput{
		OriginalQuery:   query,
		NormalizedQuery: normalized,
		Interpretation:  interp,
		Plan:            plan,
		Partial:         true,
		Steps:           []retrieval.TraceStep{{Name: "hard_timeout", AtStage: "engine"}},
	}
}

// tryClauseFastPath implements spec.md §4.6: an exact-citation query whose
// clause index returns at least two hits skips rewriting, expansion, and
// hybrid search entirely, proceeding straight to supersession filtering
// and a stage-4-only rerank. Interpretation and planning are not skipped:
// Retrieve runs them before the cache lookup (the cache key uses the
// plan's mode) and the fast path reuses their results.
func (e *Engine) tryClauseFastPath(ctx context.Context, normalized string, interp retrieval.QueryInterpretation, plan retrieval.Plan) (*retrieval.RetrievalOutput, bool) {
	if e.clauseIndex == nil {
		return nil, false
	}
	ids, err := e.clauseIndex.LookupAll(ctx, normalized)
	if err != nil || len(ids) < 2 {
		return nil, false
	}

	candidates := e.hydrateClauseIDs(ctx, ids)
	if len(candidates) < 2 {
		return nil, false
	}

	processed := retrieval.Process(candidates, plan, e.processorOptions())
	reranked, rerankSteps, _ := e.coordinator.RerankFastPath(ctx, normalized, processed)
	if len(reranked) > plan.TopKTotal && plan.TopKTotal > 0 {
		reranked = reranked[:plan.TopKTotal]
	}

	steps := append([]retrieval.TraceStep{{Name: "clause_fast_path", AtStage: "retrieval"}}, rerankSteps...)

	return &retrieval.RetrievalOutput{
		NormalizedQuery: normalized,
		Interpretation:  interp,
		Plan:            plan,
		Verticals:       plan.Verticals,
		Results:         reranked,
		TotalCandidates: len(candidates),
		FinalCount:      len(reranked),
		Steps:           steps,
	}, true
}

// hydrateClauseIDs resolves clause-index chunk IDs into Evidence by probing
// every candidate vertical, merging whatever each one has, and preserving
// ids's original (first-seen citation) order in the result.
func (e *Engine) hydrateClauseIDs(ctx context.Context, ids []string) []*retrieval.Evidence {
	remaining := make(map[string]bool, len(ids))
	for _, id := range ids {
		remaining[id] = true
	}

	found := make(map[string]*retrieval.Evidence, len(ids))
	for _, vertical := range clauseFastPathVerticals {
		if len(remaining) == 0 {
			break
		}
		lookup := make([]string, 0, len(remaining))
		for id := range remaining {
			lookup = append(lookup, id)
		}
		evs, err := e.guards.Index.GetByIDs(ctx, vertical, lookup)
		if err != nil {
			continue
		}
		for _, ev := range evs {
			ev.Score = clauseFastPathScore
			found[ev.ChunkID] = ev
			delete(remaining, ev.ChunkID)
		}
	}

	out := make([]*retrieval.Evidence, 0, len(found))
	for _, id := range ids {
		if ev, ok := found[id]; ok {
			out = append(out, ev)
		}
	}
	return out
}

// runPipeline is the full path: understanding, plan-driven expansion,
// hybrid execution concurrent with the internet leg, result processing,
// and the full reranking coordinator.
func (e *Engine) runPipeline(ctx context.Context, normalized string, interp retrieval.QueryInterpretation, plan retrieval.Plan) (*retrieval.RetrievalOutput, error) {
	understandingStart := time.Now()
	rewrites, rewriteStep := e.rewriter.Rewrite(ctx, normalized, plan.Rewrites)
	expanded := understanding.ExpandAll(rewrites, plan.Mode, interp.Entities, interp.Keywords)
	understandingDur := time.Since(understandingStart)

	retrievalStart := time.Now()
	var hopResults []*retrieval.Evidence
	var hopSteps []retrieval.TraceStep
	var execErr error
	var internetResults []*retrieval.Evidence

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		hopResults, hopSteps, execErr = e.executor.Run(ctx, plan, expanded)
	}()
	if plan.UseInternet && e.guards.Internet != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			internetResults = e.guards.Internet.Fetch(ctx, normalized, e.config.InternetTopN)
		}()
	}
	wg.Wait()
	retrievalDur := time.Since(retrievalStart)

	partial := execErr != nil
	candidates := append(hopResults, internetResults...)

	steps := []retrieval.TraceStep{{Name: rewriteStep, AtStage: "understanding"}}
	steps = append(steps, hopSteps...)

	aggregationStart := time.Now()
	processed := retrieval.Process(candidates, plan, e.processorOptions())
	aggregationDur := time.Since(aggregationStart)

	rerankStart := time.Now()
	rerankIn := rerank.Input{
		NormalizedQuery: normalized,
		Entities:        interp.Entities,
		Confidence:      interp.Confidence,
		QueryWordCount:  len(strings.Fields(normalized)),
		Plan:            plan,
	}
	reranked, rerankSteps, _ := e.coordinator.Rerank(ctx, rerankIn, processed)
	rerankDur := time.Since(rerankStart)
	steps = append(steps, rerankSteps...)

	if plan.TopKTotal > 0 && len(reranked) > plan.TopKTotal {
		reranked = reranked[:plan.TopKTotal]
	}

	return &retrieval.RetrievalOutput{
		NormalizedQuery: normalized,
		Interpretation:  interp,
		Plan:            plan,
		Rewrites:        rewrites,
		Verticals:       plan.Verticals,
		Results:         reranked,
		TotalCandidates: len(candidates),
		FinalCount:      len(reranked),
		Stage: retrieval.StageTimings{
			Understanding: understandingDur,
			Retrieval:     retrievalDur,
			Aggregation:   aggregationDur,
			Reranking:     rerankDur,
			Total:         understandingDur + retrievalDur + aggregationDur + rerankDur,
		},
		Partial: partial,
		Steps:   steps,
	}, nil
}

func (e *Engine) processorOptions() retrieval.ProcessorOptions {
	opts := retrieval.DefaultProcessorOptions()
	opts.IncludeSuperseded = e.config.IncludeSuperseded
	return opts
}
