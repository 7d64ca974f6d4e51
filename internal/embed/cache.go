package embed

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kestrel-search/kestrel/internal/chunk"
)

// DefaultCacheBudgetMB bounds the embedding cache when no budget is
// configured.
const DefaultCacheBudgetMB = 500

// CachedEmbedder memoizes embeddings under a byte budget. The key is
// (model id, content hash); every entry costs exactly Dimensions()*4
// bytes, so the budget divides into an entry capacity enforced by a 2Q
// (segmented LRU) cache. Entries are whole: an embedding is either
// cached or not, never partially evicted. The cache is shared between
// indexing and query paths, so a repeated query is free after first use.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.TwoQueueCache[string, []float32]
}

// NewCached wraps inner with a cache bounded by budgetMB megabytes.
func NewCached(inner Embedder, budgetMB int) *CachedEmbedder {
	if budgetMB <= 0 {
		budgetMB = DefaultCacheBudgetMB
	}
	entryCost := inner.Dimensions() * 4
	capacity := budgetMB * 1024 * 1024 / entryCost
	if capacity < 1 {
		capacity = 1
	}
	cache, _ := lru.New2Q[string, []float32](capacity)
	return &CachedEmbedder{inner: inner, cache: cache}
}

// key builds the (model id, content hash) cache key for a text.
func (c *CachedEmbedder) key(text string) string {
	return c.inner.ModelID() + "\x00" + chunk.HashContent(text)
}

// Embed implements Embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch implements Embedder. Cached texts are skipped; only the
// misses reach the inner embedder, in their original order.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if vec, ok := c.cache.Get(c.key(text)); ok {
			results[i] = vec
		} else {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
		}
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		results[i] = vecs[j]
		c.cache.Add(c.key(texts[i]), vecs[j])
	}
	return results, nil
}

// EmbedQuery implements Embedder. Query embeddings cache under a
// "query"-prefixed key built from the raw query's hash, so they never
// collide with document embeddings; misses go to the inner EmbedQuery.
func (c *CachedEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	key := "query\x00" + c.key(query)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// Dimensions implements Embedder.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// ModelID implements Embedder.
func (c *CachedEmbedder) ModelID() string { return c.inner.ModelID() }

// Close implements Embedder.
func (c *CachedEmbedder) Close() error { return c.inner.Close() }

var _ Embedder = (*CachedEmbedder)(nil)
