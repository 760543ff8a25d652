package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nithin8919/policyretrieval/internal/clauseindex"
	"github.com/nithin8919/policyretrieval/internal/embed"
	"github.com/nithin8919/policyretrieval/internal/indexclient"
	"github.com/nithin8919/policyretrieval/internal/rerank"
	"github.com/nithin8919/policyretrieval/internal/retrieval"
	"github.com/nithin8919/policyretrieval/internal/telemetry"
	"github.com/nithin8919/policyretrieval/internal/understanding"
)

func seedEvidence(t *testing.T, client *indexclient.LocalClient, embedder embed.Embedder, vertical retrieval.Vertical, chunkID, text string) {
	t.Helper()
	vec, err := embedder.Embed(context.Background(), text)
	require.NoError(t, err)
	ev := &retrieval.Evidence{
		ChunkID:  chunkID,
		DocID:    "doc-" + chunkID,
		Vertical: vertical,
		Text:     text,
		Metadata: retrieval.EvidenceMetadata{SectionType: "orders"},
	}
	require.NoError(t, client.Seed(context.Background(), vertical, ev, vec))
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *indexclient.LocalClient, *clauseindex.Index) {
	t.Helper()

	local, err := indexclient.NewLocalClient([]retrieval.Vertical{
		retrieval.VerticalLegal, retrieval.VerticalGO, retrieval.VerticalJudicial,
		retrieval.VerticalData, retrieval.VerticalSchemes,
	}, embed.Dimensions)
	require.NoError(t, err)

	embedder := embed.NewStaticEmbedder768()
	seedEvidence(t, local, embedder, retrieval.VerticalGO, "go-45-1", "GO Ms No 45 finance department pension revision")
	seedEvidence(t, local, embedder, retrieval.VerticalLegal, "sec-12-1", "Section 12 defines eligibility for the scheme")

	clauseIdx, err := clauseindex.Open("")
	require.NoError(t, err)
	require.NoError(t, clauseIdx.Put(context.Background(), "go:45", "go-45-1"))
	require.NoError(t, clauseIdx.Put(context.Background(), "section:12", "sec-12-1"))

	guards := NewGuards(local, embedder, nil)

	coordinator, err := rerank.NewCoordinator(rerank.NoOpCrossEncoder{}, guards.Embedder, 2)
	require.NoError(t, err)

	rewriter := understanding.NewRewriter("", "")

	allOpts := append([]Option{WithClauseIndex(clauseIdx)}, opts...)
	e, err := New(guards, rewriter, coordinator, allOpts...)
	require.NoError(t, err)

	t.Cleanup(e.Close)

	return e, local, clauseIdx
}

func TestRetrieve_RejectsEmptyQuery(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := e.Retrieve(context.Background(), "   ", 0, nil)
	require.Error(t, err)
}

func TestRetrieve_RejectsOverlongQuery(t *testing.T) {
	e, _, _ := newTestEngine(t)
	long := make([]byte, MaxQueryLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := e.Retrieve(context.Background(), string(long), 0, nil)
	require.Error(t, err)
}

func TestRetrieve_RunsFullPipelineForOrdinaryQuery(t *testing.T) {
	e, _, _ := newTestEngine(t)
	out, err := e.Retrieve(context.Background(), "what does the pension revision order say", 0, nil)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Equal(t, "what does the pension revision order say", out.OriginalQuery)
	require.False(t, out.CacheHit)
}

func TestRetrieve_ClauseFastPathShortCircuitsOnRepeatedCitation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	out, err := e.Retrieve(context.Background(), "see GO 45 and Section 12 for details", 0, nil)
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)

	var sawFastPath bool
	for _, step := range out.Steps {
		if step.Name == "clause_fast_path" {
			sawFastPath = true
		}
	}
	require.True(t, sawFastPath)
	require.Empty(t, out.Rewrites, "fast path should skip understanding/rewriting")
}

func TestRetrieve_SecondIdenticalQueryHitsCache(t *testing.T) {
	e, _, _ := newTestEngine(t)
	query := "what does the pension revision order say"

	first, err := e.Retrieve(context.Background(), query, 0, nil)
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	second, err := e.Retrieve(context.Background(), query, 0, nil)
	require.NoError(t, err)
	require.True(t, second.CacheHit)
}

func TestRetrieve_TopKOverrideTrimsCachedResult(t *testing.T) {
	e, _, _ := newTestEngine(t)
	query := "see GO 45 and Section 12 for details"

	full, err := e.Retrieve(context.Background(), query, 0, nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(full.Results), 2)

	trimmed, err := e.Retrieve(context.Background(), query, 1, nil)
	require.NoError(t, err)
	require.Len(t, trimmed.Results, 1)
	require.Equal(t, 1, trimmed.FinalCount)
}

func TestRetrieve_EnableInternetFalseOverridesPlan(t *testing.T) {
	e, _, _ := newTestEngine(t, WithConfig(Config{
		EnableInternet:    false,
		IncludeSuperseded: true,
		CacheSize:         DefaultCacheSize,
		HardMargin:        DefaultHardMargin,
		InternetTopN:      DefaultInternetTopN,
	}))

	out, err := e.Retrieve(context.Background(), "what does the pension revision order say", 0, nil)
	require.NoError(t, err)
	require.False(t, out.Plan.UseInternet)
}

func TestRetrieve_WithoutClauseIndexFallsThroughToFullPipeline(t *testing.T) {
	local, err := indexclient.NewLocalClient([]retrieval.Vertical{retrieval.VerticalGO}, embed.Dimensions)
	require.NoError(t, err)
	embedder := embed.NewStaticEmbedder768()
	seedEvidence(t, local, embedder, retrieval.VerticalGO, "go-1", "GO Ms No 9 education department scholarship")

	guards := NewGuards(local, embedder, nil)
	coordinator, err := rerank.NewCoordinator(rerank.NoOpCrossEncoder{}, guards.Embedder, 2)
	require.NoError(t, err)
	rewriter := understanding.NewRewriter("", "")

	e, err := New(guards, rewriter, coordinator)
	require.NoError(t, err)
	t.Cleanup(e.Close)

	out, err := e.Retrieve(context.Background(), "GO 9 scholarship details", 0, nil)
	require.NoError(t, err)
	require.NotNil(t, out)
	for _, step := range out.Steps {
		require.NotEqual(t, "clause_fast_path", step.Name)
	}
}

func TestRetrieve_RecordsMetricsWhenAttached(t *testing.T) {
	metrics := telemetry.NewQueryMetrics(nil)
	e, _, _ := newTestEngine(t, WithMetrics(metrics))

	_, err := e.Retrieve(context.Background(), "what does go 45 say about pension revision", 0, nil)
	require.NoError(t, err)

	snapshot := e.Stats()
	require.NotNil(t, snapshot)
	require.EqualValues(t, 1, snapshot.TotalQueries)
}

func TestRetrieve_ClauseFastPathRecordsLexicalQueryType(t *testing.T) {
	metrics := telemetry.NewQueryMetrics(nil)
	e, _, _ := newTestEngine(t, WithMetrics(metrics))

	_, err := e.Retrieve(context.Background(), "see GO 45 and Section 12 for details", 0, nil)
	require.NoError(t, err)

	snapshot := e.Stats()
	require.NotNil(t, snapshot)
	require.EqualValues(t, 1, snapshot.QueryTypeCounts[telemetry.QueryTypeLexical])
}

func TestEngine_StatsWithoutMetricsReturnsNil(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.Nil(t, e.Stats())
}
