package rerank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nithin8919/policyretrieval/internal/retrieval"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(NoOpCrossEncoder{}, orthogonalEmbedder{}, 4)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestRerank_EmptyCandidatesIsNoOp(t *testing.T) {
	c := newTestCoordinator(t)
	out, steps, err := c.Rerank(context.Background(), Input{Plan: retrieval.Plan{Mode: retrieval.ModeQA}}, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, steps)
}

func TestRerank_RunsCrossEncoderStage(t *testing.T) {
	c := newTestCoordinator(t)
	candidates := []*retrieval.Evidence{
		{ChunkID: "a", Score: 0.1, Text: "alpha"},
		{ChunkID: "b", Score: 0.9, Text: "beta"},
	}
	out, steps, err := c.Rerank(context.Background(), Input{Plan: retrieval.Plan{Mode: retrieval.ModeQA}}, candidates)
	require.NoError(t, err)
	require.Len(t, out, 2)

	names := map[string]bool{}
	for _, s := range steps {
		names[s.Name] = true
	}
	assert.True(t, names["cross_encoder"])
	assert.True(t, names["category_prediction"])
}

func TestNeedsRelationEntity_QAFastPathDisables(t *testing.T) {
	c := newTestCoordinator(t)
	candidates := []*retrieval.Evidence{
		{ChunkID: "a", Score: 0.9}, {ChunkID: "b", Score: 0.8}, {ChunkID: "c", Score: 0.75},
	}
	in := Input{Confidence: 0.9, QueryWordCount: 4, Plan: retrieval.Plan{Mode: retrieval.ModeQA}}
	assert.False(t, c.needsRelationEntity(in, candidates))
}

func TestNeedsRelationEntity_ComprehensiveModeForcesTrue(t *testing.T) {
	c := newTestCoordinator(t)
	candidates := []*retrieval.Evidence{
		{ChunkID: "a", Score: 0.9}, {ChunkID: "b", Score: 0.8}, {ChunkID: "c", Score: 0.75},
	}
	in := Input{Confidence: 0.9, QueryWordCount: 4, Plan: retrieval.Plan{Mode: retrieval.ModeDeepthink}}
	assert.True(t, c.needsRelationEntity(in, candidates))
}

func TestNeedsRelationEntity_CircuitBreakerOverridesComprehensive(t *testing.T) {
	c := newTestCoordinator(t)
	for i := 0; i < 5; i++ {
		c.recordTimeout()
	}
	in := Input{Plan: retrieval.Plan{Mode: retrieval.ModeDeepthink}}
	assert.False(t, c.needsRelationEntity(in, []*retrieval.Evidence{{Score: 0.1}}))
}

func TestNeedsRelationEntity_DefaultTrue(t *testing.T) {
	c := newTestCoordinator(t)
	in := Input{Plan: retrieval.Plan{Mode: retrieval.ModePolicy}}
	assert.True(t, c.needsRelationEntity(in, []*retrieval.Evidence{{Score: 0.1}}))
}

func TestRecordSuccess_DecaysCounterNotBelowZero(t *testing.T) {
	c := newTestCoordinator(t)
	c.recordSuccess()
	assert.Equal(t, int64(0), c.recentTimeouts.Load())
	c.recordTimeout()
	c.recordTimeout()
	c.recordSuccess()
	assert.Equal(t, int64(1), c.recentTimeouts.Load())
}
