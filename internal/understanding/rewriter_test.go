package understanding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriter_EmptyAPIKeyStartsDowngraded(t *testing.T) {
	r := NewRewriter("", "")
	assert.True(t, r.Downgraded())
}

func TestRewriter_FallbackAlwaysIncludesOriginalFirst(t *testing.T) {
	r := NewRewriter("", "")
	rewrites, step := r.Rewrite(context.Background(), "what is the irrigation scheme", 3)

	require.Len(t, rewrites, 3)
	assert.Equal(t, "what is the irrigation scheme", rewrites[0])
	assert.Equal(t, "rewriter_fallback", step)
}

func TestRewriter_FallbackExactCount(t *testing.T) {
	r := NewRewriter("", "")
	rewrites, _ := r.Rewrite(context.Background(), "scheme", 5)
	assert.Len(t, rewrites, 5)
}

func TestRewriter_SecondCallIsCacheHit(t *testing.T) {
	r := NewRewriter("", "")
	_, step1 := r.Rewrite(context.Background(), "what is the land act", 2)
	_, step2 := r.Rewrite(context.Background(), "what is the land act", 2)

	assert.Equal(t, "rewriter_fallback", step1)
	assert.Equal(t, "rewriter_cache_hit", step2)
}

func TestRewriter_SynonymSubstitution(t *testing.T) {
	r := NewRewriter("", "")
	rewrites, _ := r.Rewrite(context.Background(), "what is the scheme department order", 4)

	joined := rewrites[0]
	for _, r := range rewrites[1:] {
		joined += "|" + r
	}
	assert.Contains(t, joined, "yojana")
}
