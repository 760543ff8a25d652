package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func evWithScore(id string, score float64) *Evidence {
	return &Evidence{ChunkID: id, DocID: id, Score: score, RawScores: map[string]float64{}}
}

func TestProcess_DedupKeepsHighestScore(t *testing.T) {
	a1 := evWithScore("c1", 0.4)
	a1.RawScores["dense"] = 0.4
	a2 := evWithScore("c1", 0.9)
	a2.RawScores["sparse"] = 0.7

	out := Process([]*Evidence{a1, a2}, Plan{TopKTotal: 10}, DefaultProcessorOptions())

	assert.Len(t, out, 1)
	assert.Equal(t, 0.7, out[0].RawScores["sparse"])
	assert.Equal(t, 0.4, out[0].RawScores["dense"])
}

func TestProcess_SupersededSortedBelowActive(t *testing.T) {
	active := evWithScore("c1", 0.5)
	superseded := evWithScore("c2", 0.95)
	superseded.Metadata.IsSuperseded = true

	out := Process([]*Evidence{superseded, active}, Plan{TopKTotal: 10}, DefaultProcessorOptions())

	assert.Equal(t, "c1", out[0].ChunkID)
	assert.Equal(t, "c2", out[1].ChunkID)
}

func TestProcess_ExcludeSupersededDropsThem(t *testing.T) {
	active := evWithScore("c1", 0.5)
	superseded := evWithScore("c2", 0.95)
	superseded.Metadata.IsSuperseded = true

	out := Process([]*Evidence{superseded, active}, Plan{TopKTotal: 10}, ProcessorOptions{IncludeSuperseded: false})

	assert.Len(t, out, 1)
	assert.Equal(t, "c1", out[0].ChunkID)
}

func TestProcess_BudgetCapIsDoubleTopKTotal(t *testing.T) {
	var candidates []*Evidence
	for i := 0; i < 20; i++ {
		candidates = append(candidates, evWithScore(string(rune('a'+i)), float64(20-i)))
	}
	out := Process(candidates, Plan{TopKTotal: 5}, DefaultProcessorOptions())
	assert.Len(t, out, 10)
}

func TestNormalizationMethod_PicksMinMaxForTightSpread(t *testing.T) {
	assert.Equal(t, "minmax", normalizationMethod([]float64{1.0, 1.1, 1.2, 1.3}))
}

func TestNormalizationMethod_PicksZScoreForWideSpread(t *testing.T) {
	assert.Equal(t, "zscore", normalizationMethod([]float64{0.01, 0.01, 0.01, 5.0}))
}

func TestNormalizeScoresInPlace_MinMaxProducesZeroOneRange(t *testing.T) {
	evidence := []*Evidence{evWithScore("a", 1.0), evWithScore("b", 3.0), evWithScore("c", 2.0)}
	normalizeScoresInPlace(evidence)

	assert.Equal(t, 0.0, evidence[0].Score)
	assert.Equal(t, 1.0, evidence[1].Score)
	assert.Equal(t, 0.5, evidence[2].Score)
}

func TestNormalizeScoresInPlace_ConstantScoresLeftUnchanged(t *testing.T) {
	evidence := []*Evidence{evWithScore("a", 4.0), evWithScore("b", 4.0)}
	normalizeScoresInPlace(evidence)
	assert.Equal(t, 4.0, evidence[0].Score)
	assert.Equal(t, 4.0, evidence[1].Score)
}
