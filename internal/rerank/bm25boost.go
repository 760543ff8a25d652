package rerank

import "github.com/nithin8919/policyretrieval/internal/retrieval"

// bm25BoostVerticals are the verticals spec.md §4.5 stage 2 amplifies: their
// passages tend to be short and keyword-dense (infrastructure notices,
// scheme descriptions), where an exact sparse match is a stronger relevance
// signal than in long-form legal prose.
var bm25BoostVerticals = map[retrieval.Vertical]bool{
	retrieval.VerticalData:     true,
	retrieval.VerticalSchemes:  true,
}

const bm25BoostMultiplier = 1.15

// ShouldRunBM25Boost reports whether any candidate qualifies: a boosted
// vertical with a non-zero recorded sparse score (spec.md §4.5 stage 2's
// run condition).
func ShouldRunBM25Boost(candidates []*retrieval.Evidence) bool {
	for _, ev := range candidates {
		if bm25BoostVerticals[ev.Vertical] && ev.RawScores["sparse"] > 0 {
			return true
		}
	}
	return false
}

// ApplyBM25Boost multiplicatively amplifies the sparse contribution for
// qualifying verticals, returning the per-chunk score delta so the caller
// can sum it alongside stage 3's relation/entity delta when both ran
// concurrently (spec.md §4.5 "Parallelization").
func ApplyBM25Boost(candidates []*retrieval.Evidence) map[string]float64 {
	deltas := make(map[string]float64)
	for _, ev := range candidates {
		if !bm25BoostVerticals[ev.Vertical] {
			continue
		}
		sparse := ev.RawScores["sparse"]
		if sparse <= 0 {
			continue
		}
		delta := sparse * (bm25BoostMultiplier - 1)
		deltas[ev.ChunkID] = delta
	}
	return deltas
}
