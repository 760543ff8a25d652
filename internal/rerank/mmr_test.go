package rerank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nithin8919/policyretrieval/internal/retrieval"
)

type orthogonalEmbedder struct{}

func (orthogonalEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, len(texts))
		v[i] = 1
		out[i] = v
	}
	return out, nil
}

func TestShouldRunMMR_TrueWhenPlanRequests(t *testing.T) {
	assert.True(t, ShouldRunMMR(nil, true))
}

func TestShouldRunMMR_TrueWhenTop3SameVertical(t *testing.T) {
	candidates := []*retrieval.Evidence{
		{Vertical: retrieval.VerticalLegal}, {Vertical: retrieval.VerticalLegal}, {Vertical: retrieval.VerticalLegal},
	}
	assert.True(t, ShouldRunMMR(candidates, false))
}

func TestShouldRunMMR_FalseWhenDiverseAndNotRequested(t *testing.T) {
	candidates := []*retrieval.Evidence{
		{Vertical: retrieval.VerticalLegal}, {Vertical: retrieval.VerticalGO}, {Vertical: retrieval.VerticalJudicial},
	}
	assert.False(t, ShouldRunMMR(candidates, false))
}

func TestApplyMMR_PicksHighestRelevanceFirst(t *testing.T) {
	candidates := []*retrieval.Evidence{
		{ChunkID: "a", Score: 0.5},
		{ChunkID: "b", Score: 0.9},
		{ChunkID: "c", Score: 0.7},
	}
	out, err := ApplyMMR(context.Background(), orthogonalEmbedder{}, candidates, map[string]string{}, 0.5)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].ChunkID)
}

func TestCosine_OrthogonalVectorsAreZero(t *testing.T) {
	assert.Equal(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}))
}

func TestCosine_IdenticalVectorsAreOne(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
}
