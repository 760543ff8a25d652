package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProvider(t *testing.T) {
	assert.Equal(t, ProviderStatic, ParseProvider("static"))
	assert.Equal(t, ProviderStatic, ParseProvider("STATIC"))
	assert.Equal(t, ProviderService, ParseProvider("service"))
	assert.Equal(t, ProviderService, ParseProvider("garbage"))
}

func TestNewEmbedder_StaticProvider(t *testing.T) {
	e, err := NewEmbedder(context.Background(), ProviderStatic, "")
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, Dimensions, e.Dimensions())
}

func TestNewEmbedder_EnvOverrideToStatic(t *testing.T) {
	t.Setenv("POLICYQA_EMBEDDER", "static")

	e, err := NewEmbedder(context.Background(), ProviderService, "")
	require.NoError(t, err)
	defer e.Close()

	info := GetInfo(context.Background(), e)
	assert.Equal(t, ProviderStatic, info.Provider)
}

func TestIsCacheDisabled(t *testing.T) {
	t.Setenv("POLICYQA_EMBED_CACHE", "false")
	assert.True(t, isCacheDisabled())

	t.Setenv("POLICYQA_EMBED_CACHE", "")
	assert.False(t, isCacheDisabled())
}

func TestGetInfo_UnwrapsCache(t *testing.T) {
	e, err := NewEmbedder(context.Background(), ProviderStatic, "")
	require.NoError(t, err)
	defer e.Close()

	_, isCached := e.(*CachedEmbedder)
	require.True(t, isCached)

	info := GetInfo(context.Background(), e)
	assert.Equal(t, ProviderStatic, info.Provider)
	assert.Equal(t, "static768", info.Model)
}
