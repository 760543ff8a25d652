package rerank

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoOpCrossEncoder_DecreasingScores(t *testing.T) {
	out, err := NoOpCrossEncoder{}.Score(context.Background(), "q", []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, 1.0, out[0].Score)
	assert.InDelta(t, 0.99, out[1].Score, 1e-9)
}

type failingEncoder struct{ calls int }

func (f *failingEncoder) Score(_ context.Context, _ string, _ []string) ([]CrossEncoderResult, error) {
	f.calls++
	return nil, errors.New("model unavailable")
}

func TestGuardedCrossEncoder_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &failingEncoder{}
	g := NewGuardedCrossEncoder(inner)

	for i := 0; i < 3; i++ {
		_, err := g.Score(context.Background(), "q", []string{"a"})
		assert.Error(t, err)
	}

	callsBeforeOpen := inner.calls
	_, err := g.Score(context.Background(), "q", []string{"a"})
	assert.Error(t, err)
	assert.Equal(t, callsBeforeOpen, inner.calls, "breaker should short-circuit without calling inner")
}

func TestGuardedCrossEncoder_TruncatesLongPassages(t *testing.T) {
	var seen []string
	recorder := recordingEncoder{fn: func(_ string, passages []string) { seen = passages }}
	g := NewGuardedCrossEncoder(recorder)

	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	_, err := g.Score(context.Background(), "q", []string{string(long)})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Len(t, seen[0], maxPassageChars)
}

type recordingEncoder struct {
	fn func(query string, passages []string)
}

func (r recordingEncoder) Score(_ context.Context, query string, passages []string) ([]CrossEncoderResult, error) {
	r.fn(query, passages)
	return []CrossEncoderResult{{Index: 0, Score: 1}}, nil
}
