package rerank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nithin8919/policyretrieval/internal/retrieval"
)

func TestScoreRelations_BonusPerMatchingKind(t *testing.T) {
	candidates := []*retrieval.Evidence{
		{
			ChunkID: "a",
			Metadata: retrieval.EvidenceMetadata{
				Relations: []retrieval.Relation{
					{ToID: "112", Kind: retrieval.RelationAmends},
					{ToID: "other", Kind: retrieval.RelationCites},
				},
			},
		},
	}
	deltas := ScoreRelations(candidates, map[string][]string{retrieval.EntityGONumber: {"112"}})
	assert.InDelta(t, 0.25, deltas["a"], 1e-9)
}

func TestScoreRelations_NoMatchNoDelta(t *testing.T) {
	candidates := []*retrieval.Evidence{{ChunkID: "a"}}
	deltas := ScoreRelations(candidates, map[string][]string{retrieval.EntityGONumber: {"112"}})
	assert.Empty(t, deltas)
}

func TestMatchEntities_OverlapProducesBonus(t *testing.T) {
	candidates := []*retrieval.Evidence{
		{ChunkID: "a", Metadata: retrieval.EvidenceMetadata{Entities: []string{"112", "revenue"}}},
	}
	deltas := MatchEntities(candidates, map[string][]string{retrieval.EntityGONumber: {"112"}})
	assert.Greater(t, deltas["a"], 0.0)
}

type fakeExpansionClient struct {
	byID map[string]*retrieval.Evidence
}

func (f *fakeExpansionClient) GetByIDs(_ context.Context, _ retrieval.Vertical, ids []string) ([]*retrieval.Evidence, error) {
	var out []*retrieval.Evidence
	for _, id := range ids {
		if ev, ok := f.byID[id]; ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func TestExpandEntities_DecaysScoreFromOrigin(t *testing.T) {
	client := &fakeExpansionClient{byID: map[string]*retrieval.Evidence{
		"n1": {ChunkID: "n1"},
	}}
	candidates := []*retrieval.Evidence{
		{
			ChunkID: "a", Score: 1.0,
			Metadata: retrieval.EvidenceMetadata{Relations: []retrieval.Relation{{ToID: "n1", Kind: retrieval.RelationSupersedes}}},
		},
	}
	expanded := ExpandEntities(context.Background(), client, candidates)
	require.Len(t, expanded, 1)
	assert.Equal(t, 0.5, expanded[0].Score)
}

func TestExpandEntities_IgnoresNonAmendsSupersedesKinds(t *testing.T) {
	client := &fakeExpansionClient{byID: map[string]*retrieval.Evidence{"n1": {ChunkID: "n1"}}}
	candidates := []*retrieval.Evidence{
		{
			ChunkID: "a", Score: 1.0,
			Metadata: retrieval.EvidenceMetadata{Relations: []retrieval.Relation{{ToID: "n1", Kind: retrieval.RelationCites}}},
		},
	}
	expanded := ExpandEntities(context.Background(), client, candidates)
	assert.Empty(t, expanded)
}
