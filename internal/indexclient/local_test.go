package indexclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nithin8919/policyretrieval/internal/embed"
	"github.com/nithin8919/policyretrieval/internal/retrieval"
)

func seedClient(t *testing.T) *LocalClient {
	t.Helper()
	c, err := NewLocalClient([]retrieval.Vertical{retrieval.VerticalGO}, embed.Dimensions)
	require.NoError(t, err)

	embedder := embed.NewStaticEmbedder768()
	ctx := context.Background()

	docs := []*retrieval.Evidence{
		{ChunkID: "c1", DocID: "d1", Vertical: retrieval.VerticalGO, Text: "irrigation scheme finance department GO Ms 45",
			Metadata: retrieval.EvidenceMetadata{Department: "Finance", GONumber: "45"}},
		{ChunkID: "c2", DocID: "d2", Vertical: retrieval.VerticalGO, Text: "education scholarship scheme GO Ms 12",
			Metadata: retrieval.EvidenceMetadata{Department: "Education", GONumber: "12"}},
	}

	for _, d := range docs {
		vec, err := embedder.Embed(ctx, d.Text)
		require.NoError(t, err)
		require.NoError(t, c.Seed(ctx, retrieval.VerticalGO, d, vec))
	}

	return c
}

func TestLocalClient_BM25Search(t *testing.T) {
	c := seedClient(t)
	results, err := c.BM25(context.Background(), retrieval.VerticalGO, "irrigation scheme", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "c1", results[0].ChunkID)
}

func TestLocalClient_KNNSearch(t *testing.T) {
	c := seedClient(t)
	embedder := embed.NewStaticEmbedder768()
	vec, err := embedder.Embed(context.Background(), "education scholarship scheme")
	require.NoError(t, err)

	results, err := c.KNN(context.Background(), retrieval.VerticalGO, vec, 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "c2", results[0].ChunkID)
}

func TestLocalClient_FilterByDepartment(t *testing.T) {
	c := seedClient(t)
	match := "Finance"
	filters := []retrieval.Filter{{Key: "department", Match: &match}}

	results, err := c.BM25(context.Background(), retrieval.VerticalGO, "scheme", 5, filters)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "c1", r.ChunkID)
	}
}

func TestLocalClient_FetchByFilterAndGetByIDs(t *testing.T) {
	c := seedClient(t)
	match := "12"
	filters := []retrieval.Filter{{Key: "go_number", Match: &match}}

	ids, err := c.FetchByFilter(context.Background(), retrieval.VerticalGO, filters, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"c2"}, ids)

	evidence, err := c.GetByIDs(context.Background(), retrieval.VerticalGO, ids)
	require.NoError(t, err)
	require.Len(t, evidence, 1)
	assert.Equal(t, "d2", evidence[0].DocID)
}

func TestLocalClient_UnknownVertical(t *testing.T) {
	c := seedClient(t)
	_, err := c.BM25(context.Background(), retrieval.VerticalJudicial, "x", 5, nil)
	assert.Error(t, err)
}
