// Package embed generates dense vector embeddings for chunk text.
// The set of embedder families is closed: an ONNX transformer encoder
// for real semantic quality and a deterministic hash projection used
// when no model is configured (and throughout the test suite). New
// models are added by extending this set, not by dynamic loading.
package embed

import (
	"context"
	"math"
)

// Batch sizing bounds.
const (
	MinBatchSize     = 1
	MaxBatchSize     = 256
	DefaultBatchSize = 32
)

// Embedder generates L2-normalized vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for an ordered batch of texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a search query. Asymmetric-retrieval models
	// prepend their query instruction here; documents never get it.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	// Dimensions returns the fixed embedding width.
	Dimensions() int

	// ModelID returns the model identifier recorded in the manifest.
	ModelID() string

	// Close releases model resources.
	Close() error
}

// normalizeInPlace scales v to unit length. Zero vectors are left as-is.
func normalizeInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
