package embed

import (
	"context"
	"log/slog"
)

// BatchedEmbedder splits large requests into model-sized batches with a
// cancellation check between batches. A failed batch is retried once at
// half size before the error propagates.
type BatchedEmbedder struct {
	inner     Embedder
	batchSize int
}

// NewBatched wraps inner with batch splitting. batchSize <= 0 selects
// the default; values are clamped to [MinBatchSize, MaxBatchSize].
func NewBatched(inner Embedder, batchSize int) *BatchedEmbedder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize < MinBatchSize {
		batchSize = MinBatchSize
	}
	if batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	return &BatchedEmbedder{inner: inner, batchSize: batchSize}
}

// EmbedBatch implements Embedder.
func (b *BatchedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := b.embedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, vecs...)
	}
	return results, nil
}

// embedWithRetry retries one failed batch at half size, then gives up.
func (b *BatchedEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := b.inner.EmbedBatch(ctx, texts)
	if err == nil || len(texts) <= 1 || ctx.Err() != nil {
		return vecs, err
	}

	slog.Warn("embedding batch failed, retrying at half size",
		slog.Int("batch", len(texts)),
		slog.String("error", err.Error()))

	half := len(texts) / 2
	first, err := b.inner.EmbedBatch(ctx, texts[:half])
	if err != nil {
		return nil, err
	}
	second, err := b.inner.EmbedBatch(ctx, texts[half:])
	if err != nil {
		return nil, err
	}
	return append(first, second...), nil
}

// Embed implements Embedder.
func (b *BatchedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return b.inner.Embed(ctx, text)
}

// EmbedQuery implements Embedder.
func (b *BatchedEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return b.inner.EmbedQuery(ctx, query)
}

// Dimensions implements Embedder.
func (b *BatchedEmbedder) Dimensions() int { return b.inner.Dimensions() }

// ModelID implements Embedder.
func (b *BatchedEmbedder) ModelID() string { return b.inner.ModelID() }

// Close implements Embedder.
func (b *BatchedEmbedder) Close() error { return b.inner.Close() }

var _ Embedder = (*BatchedEmbedder)(nil)
