package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps StaticEmbedder768 and counts Embed calls, used to
// assert the cache actually avoids recomputation.
type countingEmbedder struct {
	*StaticEmbedder768
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.StaticEmbedder768.Embed(ctx, text)
}

func TestCachedEmbedder_CachesRepeatedQuery(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder768: NewStaticEmbedder768()}
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	v1, err := cached.Embed(ctx, "what is GO Ms 45")
	require.NoError(t, err)
	v2, err := cached.Embed(ctx, "what is GO Ms 45")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedEmbedder_EmbedBatchMixedCacheHit(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder768: NewStaticEmbedder768()}
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "a")
	require.NoError(t, err)

	vecs, err := cached.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
}

func TestCachedEmbedder_PassthroughMetadata(t *testing.T) {
	inner := NewStaticEmbedder768()
	cached := NewCachedEmbedder(inner, 10)

	assert.Equal(t, Dimensions, cached.Dimensions())
	assert.Equal(t, "static768", cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
	assert.Same(t, inner, cached.Inner())
}
