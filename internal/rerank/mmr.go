package rerank

import (
	"context"
	"math"

	"github.com/nithin8919/policyretrieval/internal/retrieval"
)

// Embedder is the subset of embed.Embedder MMR needs to compute pairwise
// passage similarity. Declared locally to avoid this package depending on
// embed.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ShouldRunMMR implements spec.md §4.5 stage 5's run condition: explicit
// plan request, or the top 3 results all coming from one vertical.
func ShouldRunMMR(candidates []*retrieval.Evidence, useMMR bool) bool {
	if useMMR {
		return true
	}
	if len(candidates) < 3 {
		return false
	}
	v := candidates[0].Vertical
	return candidates[1].Vertical == v && candidates[2].Vertical == v
}

// ApplyMMR re-orders candidates by Maximal Marginal Relevance:
// MMR(d) = λ·rel(d) − (1−λ)·max_{d'∈S} sim(d, d'), λ = 1 − diversityWeight.
// Similarity is cosine over embedded passage text; category collisions
// (from PredictCategories) apply a small additional similarity penalty so
// two passages about the same topic in different verticals still get
// spread out, not just verticals themselves.
func ApplyMMR(ctx context.Context, embedder Embedder, candidates []*retrieval.Evidence, categories map[string]string, diversityWeight float64) ([]*retrieval.Evidence, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}
	lambda := 1 - diversityWeight

	texts := make([]string, len(candidates))
	for i, ev := range candidates {
		texts[i] = ev.Text
	}
	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return candidates, err
	}

	remaining := make([]int, len(candidates))
	for i := range candidates {
		remaining[i] = i
	}
	var selected []int

	for len(remaining) > 0 {
		bestIdx, bestPos, bestScore := -1, -1, math.Inf(-1)
		for pos, idx := range remaining {
			rel := candidates[idx].Score
			maxSim := 0.0
			for _, sIdx := range selected {
				sim := cosine(vectors[idx], vectors[sIdx])
				if categories[candidates[idx].ChunkID] == categories[candidates[sIdx].ChunkID] {
					sim += 0.1
				}
				if sim > maxSim {
					maxSim = sim
				}
			}
			mmrScore := lambda*rel - (1-lambda)*maxSim
			if mmrScore > bestScore {
				bestIdx, bestPos, bestScore = idx, pos, mmrScore
			}
		}
		selected = append(selected, bestIdx)
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}

	out := make([]*retrieval.Evidence, len(selected))
	for i, idx := range selected {
		out[i] = candidates[idx]
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
