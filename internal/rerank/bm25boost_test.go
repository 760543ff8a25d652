package rerank

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nithin8919/policyretrieval/internal/retrieval"
)

func TestShouldRunBM25Boost_TrueForQualifyingVertical(t *testing.T) {
	candidates := []*retrieval.Evidence{
		{Vertical: retrieval.VerticalSchemes, RawScores: map[string]float64{"sparse": 2.0}},
	}
	assert.True(t, ShouldRunBM25Boost(candidates))
}

func TestShouldRunBM25Boost_FalseWithoutSparseScore(t *testing.T) {
	candidates := []*retrieval.Evidence{
		{Vertical: retrieval.VerticalSchemes, RawScores: map[string]float64{}},
	}
	assert.False(t, ShouldRunBM25Boost(candidates))
}

func TestShouldRunBM25Boost_FalseForNonQualifyingVertical(t *testing.T) {
	candidates := []*retrieval.Evidence{
		{Vertical: retrieval.VerticalLegal, RawScores: map[string]float64{"sparse": 2.0}},
	}
	assert.False(t, ShouldRunBM25Boost(candidates))
}

func TestApplyBM25Boost_ScalesBySparseScore(t *testing.T) {
	candidates := []*retrieval.Evidence{
		{ChunkID: "a", Vertical: retrieval.VerticalData, RawScores: map[string]float64{"sparse": 4.0}},
		{ChunkID: "b", Vertical: retrieval.VerticalLegal, RawScores: map[string]float64{"sparse": 4.0}},
	}
	deltas := ApplyBM25Boost(candidates)
	assert.InDelta(t, 4.0*0.15, deltas["a"], 1e-9)
	_, ok := deltas["b"]
	assert.False(t, ok)
}
