package embed

import (
	"log/slog"
)

// Options selects and sizes the embedder stack.
type Options struct {
	// ModelDir holds model.onnx + tokenizer.json. Empty selects the
	// static embedder.
	ModelDir string

	// BatchSize overrides the batch cap (BATCH_SIZE env); 0 means auto.
	BatchSize int

	// CacheBudgetMB bounds the embedding cache (CACHE_MAX_MEMORY_MB env).
	CacheBudgetMB int
}

// New builds the embedder chain: cache over batching over the model.
func New(opts Options) (Embedder, error) {
	var inner Embedder
	if opts.ModelDir != "" {
		onnx, err := NewONNXEmbedder(opts.ModelDir)
		if err != nil {
			return nil, err
		}
		inner = onnx
	} else {
		slog.Debug("no model directory configured, using static embedder")
		inner = NewStaticEmbedder()
	}

	return NewCached(NewBatched(inner, opts.BatchSize), opts.CacheBudgetMB), nil
}
