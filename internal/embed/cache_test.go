package embed

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps the static embedder and counts inner calls.
type countingEmbedder struct {
	*StaticEmbedder
	calls atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(int64(len(texts)))
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	c.calls.Add(1)
	return c.StaticEmbedder.EmbedQuery(ctx, query)
}

func TestCachedEmbedderHitSkipsInner(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCached(inner, 1)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "some text")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "some text")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), inner.calls.Load())
}

func TestCachedEmbedderBatchPartialHit(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCached(inner, 1)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "warm")
	require.NoError(t, err)
	require.Equal(t, int64(1), inner.calls.Load())

	vecs, err := cached.EmbedBatch(ctx, []string{"warm", "cold"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, int64(2), inner.calls.Load(), "only the miss reaches the inner embedder")

	// Order is preserved regardless of cache state.
	warm, err := cached.Embed(ctx, "warm")
	require.NoError(t, err)
	assert.Equal(t, warm, vecs[0])
}

func TestCachedEmbedderQueryCached(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCached(inner, 1)
	ctx := context.Background()

	_, err := cached.EmbedQuery(ctx, "how does auth work")
	require.NoError(t, err)
	_, err = cached.EmbedQuery(ctx, "how does auth work")
	require.NoError(t, err)

	assert.Equal(t, int64(1), inner.calls.Load())
}

func TestCachedEmbedderCapacityFromBudget(t *testing.T) {
	inner := NewStaticEmbedder()
	// 1 MB budget at 256 dims * 4 bytes = 1024 entries.
	cached := NewCached(inner, 1)
	assert.Equal(t, StaticDimensions, cached.Dimensions())
	assert.Equal(t, inner.ModelID(), cached.ModelID())

	ctx := context.Background()
	for i := 0; i < 1025; i++ {
		_, err := cached.Embed(ctx, fmt.Sprintf("text %d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 1024, cached.cache.Len())
}
