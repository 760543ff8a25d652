package retrieval

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultRRFConstant is the smoothing constant used by every RRF fusion in
// the hybrid executor (dense+sparse per collection, and hop-to-hop merge).
const DefaultRRFConstant = 60

const (
	denseTaskTimeout  = 5 * time.Second
	sparseTaskTimeout = 2 * time.Second
)

// sectionBoosts implements spec.md §4.3's section-type multiplier.
var sectionBoosts = map[string]float64{
	"orders":   1.2,
	"preamble": 0.9,
	"annexure": 0.85,
}

// IndexClient is the subset of indexclient.Client the executor depends on.
// Declared locally so this package never imports indexclient (which imports
// retrieval), avoiding a cycle.
type IndexClient interface {
	KNN(ctx context.Context, vertical Vertical, vector []float32, topK int, filters []Filter) ([]ScoredID, error)
	BM25(ctx context.Context, vertical Vertical, query string, topK int, filters []Filter) ([]ScoredID, error)
	GetByIDs(ctx context.Context, vertical Vertical, ids []string) ([]*Evidence, error)
}

// ScoredID mirrors indexclient.ScoredID; duplicated here to keep this
// package dependency-free of indexclient (see IndexClient).
type ScoredID struct {
	ChunkID string
	Score   float64
}

// Embedder is the subset of embed.Embedder the executor needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// WorkersForMode returns the bounded executor's worker count for mode,
// per spec.md §4.3's concurrency table.
func WorkersForMode(mode Mode) int {
	switch mode {
	case ModeQA:
		return 4
	case ModePolicy, ModeFramework, ModeBrainstorm:
		return 10
	default:
		return 6
	}
}

// Executor runs the hybrid dense+sparse multi-hop search described in
// spec.md §4.3 against an index client and embedder.
type Executor struct {
	index   IndexClient
	embed   Embedder
	rrfK    int
}

// NewExecutor builds an Executor. index and embed must be non-nil.
func NewExecutor(index IndexClient, embed Embedder) *Executor {
	return &Executor{index: index, embed: embed, rrfK: DefaultRRFConstant}
}

// candidate is a hybrid-search hit before it is handed to the result
// processor: an Evidence plus the raw per-run scores RRF needs to preserve.
type candidate struct {
	evidence *Evidence
}

// Run executes plan.Hops hops of hybrid search over rewrites, returning the
// merged candidate pool and a trace of what happened at each stage. It never
// returns an error for partial per-(rewrite,collection,modality) failures —
// those are logged and contribute an empty list — only for a cancelled or
// deadline-exceeded context that prevented any work at all.
func (x *Executor) Run(ctx context.Context, plan Plan, rewrites []string) ([]*Evidence, []TraceStep, error) {
	ctx, cancel := context.WithTimeout(ctx, plan.Timeout)
	defer cancel()

	var steps []TraceStep
	activeRewrites := append([]string{}, rewrites...)
	merged := map[string]*Evidence{}
	topKPerVertical := plan.TopKPerVertical
	queried := map[string]bool{}

	for hop := 1; hop <= plan.Hops; hop++ {
		if ctx.Err() != nil {
			if hop == 1 {
				return nil, steps, ctx.Err()
			}
			break
		}
		hopResults, err := x.singleHop(ctx, plan, activeRewrites, topKPerVertical, hop)
		if err != nil {
			return nil, steps, err
		}
		steps = append(steps, TraceStep{
			Name: "hybrid_hop", Detail: sprintHop(hop, len(hopResults)), AtStage: "retrieval",
		})

		maxScore := 0.0
		for _, ev := range hopResults {
			if ev.Score > maxScore {
				maxScore = ev.Score
			}
			if existing, ok := merged[ev.ChunkID]; ok {
				mergeRawScores(existing, ev)
				if ev.Score > existing.Score {
					existing.Score = ev.Score
				}
			} else {
				merged[ev.ChunkID] = ev
			}
		}
		for _, r := range activeRewrites {
			queried[r] = true
		}

		if hop == plan.Hops {
			break
		}
		if len(hopResults) < 3 {
			break
		}
		if plan.Mode == ModeQA && maxScore >= 0.8 {
			break
		}

		nextRewrites := deriveNextRewrites(hopResults, queried, 3)
		if len(nextRewrites) == 0 {
			break
		}
		activeRewrites = nextRewrites
		topKPerVertical = topKPerVertical / 2
		if topKPerVertical < 1 {
			topKPerVertical = 1
		}
	}

	out := make([]*Evidence, 0, len(merged))
	for _, ev := range merged {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out, steps, nil
}

// singleHop runs _single_hybrid_search for every rewrite against every
// collection in plan, fuses dense+sparse per collection via RRF, applies the
// section-type boost, and returns the hop's candidate pool.
func (x *Executor) singleHop(ctx context.Context, plan Plan, rewrites []string, topKPerVertical, hop int) ([]*Evidence, error) {
	if len(rewrites) == 0 {
		return nil, nil
	}

	vectors, err := x.embed.EmbedBatch(ctx, rewrites)
	if err != nil {
		slog.Warn("hop embedding batch failed, hop proceeds sparse-only",
			slog.Int("hop", hop), slog.String("error", err.Error()))
		vectors = make([][]float32, len(rewrites))
	}

	workers := WorkersForMode(plan.Mode)
	sem := make(chan struct{}, workers)
	g, gctx := errgroup.WithContext(ctx)

	type task struct {
		rewrite  string
		vector   []float32
		vertical Vertical
	}
	var tasks []task
	for i, r := range rewrites {
		var vec []float32
		if i < len(vectors) {
			vec = vectors[i]
		}
		for _, v := range plan.Verticals {
			tasks = append(tasks, task{rewrite: r, vector: vec, vertical: v})
		}
	}

	results := make([][]*Evidence, len(tasks))
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return nil
			}
			results[i] = x.singleHybridSearch(gctx, t.rewrite, t.vertical, t.vector, topKPerVertical, plan.ForcedFilter)
			return nil
		})
	}
	_ = g.Wait()

	merged := map[string]*Evidence{}
	for _, res := range results {
		for _, ev := range res {
			if existing, ok := merged[ev.ChunkID]; ok {
				mergeRawScores(existing, ev)
				if ev.Score > existing.Score {
					existing.Score = ev.Score
				}
			} else {
				merged[ev.ChunkID] = ev
			}
		}
	}
	out := make([]*Evidence, 0, len(merged))
	for _, ev := range merged {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out, nil
}

// singleHybridSearch runs dense_knn and sparse_bm25 concurrently against one
// collection, fuses them by RRF, and applies the section-type boost. Any
// failure on either leg yields an empty list for that leg and the function
// proceeds (spec.md §4.3 failure semantics); it returns nil only if both
// legs fail or hydration returns nothing.
func (x *Executor) singleHybridSearch(ctx context.Context, rewrite string, vertical Vertical, vector []float32, topK int, filters []Filter) []*Evidence {
	var denseHits, sparseHits []ScoredID
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if len(vector) == 0 {
			return
		}
		dctx, cancel := context.WithTimeout(ctx, denseTaskTimeout)
		defer cancel()
		hits, err := x.index.KNN(dctx, vertical, vector, topK, filters)
		if err != nil {
			slog.Warn("dense_knn failed, empty list", slog.String("vertical", string(vertical)), slog.String("error", err.Error()))
			return
		}
		denseHits = hits
	}()

	go func() {
		defer wg.Done()
		sctx, cancel := context.WithTimeout(ctx, sparseTaskTimeout)
		defer cancel()
		hits, err := x.index.BM25(sctx, vertical, rewrite, topK, filters)
		if err != nil {
			slog.Warn("sparse_bm25 failed, empty list", slog.String("vertical", string(vertical)), slog.String("error", err.Error()))
			return
		}
		sparseHits = hits
	}()

	wg.Wait()
	if len(denseHits) == 0 && len(sparseHits) == 0 {
		return nil
	}

	fused := x.fuse(denseHits, sparseHits)
	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.chunkID
	}

	evidence, err := x.index.GetByIDs(ctx, vertical, ids)
	if err != nil {
		slog.Warn("GetByIDs failed for hop candidates", slog.String("vertical", string(vertical)), slog.String("error", err.Error()))
		return nil
	}

	byID := make(map[string]*fusedCandidate, len(fused))
	for _, f := range fused {
		byID[f.chunkID] = f
	}
	out := make([]*Evidence, 0, len(evidence))
	for _, ev := range evidence {
		f, ok := byID[ev.ChunkID]
		if !ok {
			continue
		}
		if ev.RawScores == nil {
			ev.RawScores = map[string]float64{}
		}
		ev.RawScores["dense"] = f.denseScore
		ev.RawScores["sparse"] = f.sparseScore
		ev.RawScores["rrf"] = f.rrfScore
		score := f.rrfScore
		if boost, ok := sectionBoosts[ev.Metadata.SectionType]; ok {
			score *= boost
			ev.RawScores["section_boost"] = boost
		}
		ev.Score = score
		ev.Vertical = vertical
		out = append(out, ev)
	}
	return out
}

type fusedCandidate struct {
	chunkID               string
	rrfScore              float64
	denseScore, sparseScore float64
}

// fuse combines dense and sparse hit lists by Reciprocal Rank Fusion
// (spec.md §4.3, k=60), retaining each candidate's raw dense/sparse scores.
func (x *Executor) fuse(dense, sparse []ScoredID) []*fusedCandidate {
	k := x.rrfK
	if k <= 0 {
		k = DefaultRRFConstant
	}
	byID := map[string]*fusedCandidate{}
	getOrCreate := func(id string) *fusedCandidate {
		if c, ok := byID[id]; ok {
			return c
		}
		c := &fusedCandidate{chunkID: id}
		byID[id] = c
		return c
	}
	for rank, hit := range dense {
		c := getOrCreate(hit.ChunkID)
		c.denseScore = hit.Score
		c.rrfScore += 1.0 / float64(k+rank+1)
	}
	for rank, hit := range sparse {
		c := getOrCreate(hit.ChunkID)
		c.sparseScore = hit.Score
		c.rrfScore += 1.0 / float64(k+rank+1)
	}
	out := make([]*fusedCandidate, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].rrfScore != out[j].rrfScore {
			return out[i].rrfScore > out[j].rrfScore
		}
		return out[i].chunkID < out[j].chunkID
	})
	normalizeFusedScores(out)
	return out
}

// normalizeFusedScores scales rrfScore into 0-1 relative to the top hit of
// this single collection's fused list, so the multi-hop stop condition
// ("first hop's max score >= 0.8") is comparing against a stable scale
// rather than the raw, collection-count-dependent RRF sum.
func normalizeFusedScores(fused []*fusedCandidate) {
	if len(fused) == 0 {
		return
	}
	max := fused[0].rrfScore
	if max == 0 {
		return
	}
	for _, c := range fused {
		c.rrfScore /= max
	}
}

// mergeRawScores folds incoming's raw scores into existing, keeping the max
// per key (spec.md §4.4's dedup rule, applied as candidates accumulate
// across verticals and hops so the processor sees an already-merged pool).
func mergeRawScores(existing, incoming *Evidence) {
	if existing.RawScores == nil {
		existing.RawScores = map[string]float64{}
	}
	for k, v := range incoming.RawScores {
		if cur, ok := existing.RawScores[k]; !ok || v > cur {
			existing.RawScores[k] = v
		}
	}
}

// deriveNextRewrites extracts up to limit new queries from hop results —
// GO references and section citations by regex, plus any entity not yet
// queried — for the next hop (spec.md §4.3 multi-hop).
func deriveNextRewrites(results []*Evidence, alreadyQueried map[string]bool, limit int) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) bool {
		if s == "" || seen[s] || alreadyQueried[s] {
			return false
		}
		seen[s] = true
		out = append(out, s)
		return len(out) >= limit
	}
	for _, ev := range results {
		if ev.Metadata.GONumber != "" && add(ev.Metadata.GONumber) {
			return out
		}
	}
	for _, ev := range results {
		if ev.Metadata.SectionNumber != "" && add(ev.Metadata.SectionNumber) {
			return out
		}
	}
	for _, ev := range results {
		for _, e := range ev.Metadata.Entities {
			if add(e) {
				return out
			}
		}
	}
	return out
}

// normalizationMethod reports which adaptive normalization spec.md §4.4
// selects for a score set: z-score when the spread is more than twice the
// mean, min-max otherwise.
func normalizationMethod(scores []float64) string {
	if len(scores) == 0 {
		return "minmax"
	}
	min, max, sum := scores[0], scores[0], 0.0
	for _, s := range scores {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
		sum += s
	}
	mean := sum / float64(len(scores))
	if mean != 0 && (max-min) > 2*mean {
		return "zscore"
	}
	return "minmax"
}

// normalizeScoresInPlace applies the adaptively-chosen normalization to
// evidence's Score field, in place, over the aggregated set only (never
// across verticals of different modalities — callers partition first).
func normalizeScoresInPlace(evidence []*Evidence) {
	if len(evidence) == 0 {
		return
	}
	scores := make([]float64, len(evidence))
	for i, ev := range evidence {
		scores[i] = ev.Score
	}
	switch normalizationMethod(scores) {
	case "zscore":
		mean, sum := 0.0, 0.0
		for _, s := range scores {
			sum += s
		}
		mean = sum / float64(len(scores))
		var variance float64
		for _, s := range scores {
			variance += (s - mean) * (s - mean)
		}
		variance /= float64(len(scores))
		stddev := math.Sqrt(variance)
		if stddev == 0 {
			return
		}
		for _, ev := range evidence {
			ev.Score = (ev.Score - mean) / stddev
		}
	default:
		min, max := scores[0], scores[0]
		for _, s := range scores {
			if s < min {
				min = s
			}
			if s > max {
				max = s
			}
		}
		if max == min {
			return
		}
		for _, ev := range evidence {
			ev.Score = (ev.Score - min) / (max - min)
		}
	}
}

func sprintHop(hop, n int) string {
	return "hop " + strconv.Itoa(hop) + ": " + strconv.Itoa(n) + " candidates"
}
