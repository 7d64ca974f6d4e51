package embed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"

	kerrors "github.com/kestrel-search/kestrel/internal/errors"
)

// ONNX embedder constants for the BGE-small family.
const (
	// onnxMaxSeqLen caps token length per input. The model supports 512
	// but attention cost is quadratic in sequence length and code chunks
	// rarely exceed 256 informative tokens.
	onnxMaxSeqLen = 256

	// ONNXDimensions is the output width of bge-small-en-v1.5.
	ONNXDimensions = 384

	// bgeQueryPrefix is prepended to queries (never documents) for
	// asymmetric retrieval, per the model card.
	bgeQueryPrefix = "Represent this sentence for searching relevant passages: "
)

// ONNXEmbedder runs a quantized transformer encoder through ONNX Runtime.
// The session is internally synchronized; one instance is shared across
// indexing and query paths.
type ONNXEmbedder struct {
	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizers.Tokenizer
	modelID   string
	closed    bool
}

// NewONNXEmbedder loads model.onnx and tokenizer.json from modelDir.
// A load failure is fatal to the current operation.
func NewONNXEmbedder(modelDir string) (*ONNXEmbedder, error) {
	modelPath := filepath.Join(modelDir, "model.onnx")
	tokenPath := filepath.Join(modelDir, "tokenizer.json")

	for _, p := range []string{modelPath, tokenPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, kerrors.FatalInfra("model file missing", err).WithPath(p)
		}
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, kerrors.FatalInfra("initialize onnxruntime", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, kerrors.FatalInfra("onnx session options", err)
	}
	defer opts.Destroy()

	// Intra-op threads within one operator; inter-op stays at 1 to
	// avoid thread contention on small machines.
	threads := runtime.NumCPU()
	if threads > 4 {
		threads = 4
	}
	if err := opts.SetIntraOpNumThreads(threads); err != nil {
		return nil, kerrors.FatalInfra("set intra-op threads", err)
	}
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return nil, kerrors.FatalInfra("set inter-op threads", err)
	}

	inputNames := []string{"input_ids", "attention_mask", "token_type_ids"}
	outputNames := []string{"last_hidden_state"}
	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, opts)
	if err != nil {
		return nil, kerrors.FatalInfra("create onnx session", err).WithPath(modelPath)
	}

	tk, err := tokenizers.FromFile(tokenPath)
	if err != nil {
		session.Destroy()
		return nil, kerrors.FatalInfra("load tokenizer", err).WithPath(tokenPath)
	}

	return &ONNXEmbedder{
		session:   session,
		tokenizer: tk,
		modelID:   filepath.Base(filepath.Clean(modelDir)),
	}, nil
}

// Embed implements Embedder.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedQuery implements Embedder with the BGE asymmetric prefix.
func (e *ONNXEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return e.Embed(ctx, bgeQueryPrefix+query)
}

// EmbedBatch runs one inference call for the whole batch. Callers are
// expected to size batches through BatchedEmbedder.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	ids, mask, maxLen := e.tokenizeAll(texts)
	if maxLen == 0 {
		return nil, fmt.Errorf("all %d texts tokenized to zero length", len(texts))
	}

	batch := len(texts)
	flatIDs := make([]int64, batch*maxLen)
	flatMask := make([]int64, batch*maxLen)
	flatType := make([]int64, batch*maxLen)
	for i := range texts {
		copy(flatIDs[i*maxLen:], ids[i])
		copy(flatMask[i*maxLen:], mask[i])
	}
	shape := ort.NewShape(int64(batch), int64(maxLen))

	inputIDs, err := ort.NewTensor(shape, flatIDs)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()

	attnMask, err := ort.NewTensor(shape, flatMask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer attnMask.Destroy()

	typeIDs, err := ort.NewTensor(shape, flatType)
	if err != nil {
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	defer typeIDs.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inputIDs, attnMask, typeIDs}, outputs); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	hiddenTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}
	hidden := hiddenTensor.GetData()
	seqLen := int(hiddenTensor.GetShape()[1])

	// CLS pooling: the first token's hidden state is the sentence vector.
	embeddings := make([][]float32, batch)
	for i := 0; i < batch; i++ {
		vec := make([]float32, ONNXDimensions)
		copy(vec, hidden[i*seqLen*ONNXDimensions:i*seqLen*ONNXDimensions+ONNXDimensions])
		normalizeInPlace(vec)
		embeddings[i] = vec
	}
	return embeddings, nil
}

// tokenizeAll encodes each text, truncated to the sequence cap.
func (e *ONNXEmbedder) tokenizeAll(texts []string) (ids, mask [][]int64, maxLen int) {
	ids = make([][]int64, len(texts))
	mask = make([][]int64, len(texts))
	for i, text := range texts {
		enc := e.tokenizer.EncodeWithOptions(text, true, tokenizers.WithReturnAttentionMask())
		raw := enc.IDs
		if len(raw) > onnxMaxSeqLen {
			raw = raw[:onnxMaxSeqLen]
		}
		ids[i] = make([]int64, len(raw))
		mask[i] = make([]int64, len(raw))
		for j, v := range raw {
			ids[i][j] = int64(v)
			mask[i][j] = 1
			if j < len(enc.AttentionMask) {
				mask[i][j] = int64(enc.AttentionMask[j])
			}
		}
		if len(raw) > maxLen {
			maxLen = len(raw)
		}
	}
	return ids, mask, maxLen
}

// Dimensions implements Embedder.
func (e *ONNXEmbedder) Dimensions() int { return ONNXDimensions }

// ModelID implements Embedder.
func (e *ONNXEmbedder) ModelID() string { return e.modelID }

// Close implements Embedder.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.session != nil {
		e.session.Destroy()
	}
	if e.tokenizer != nil {
		e.tokenizer.Close()
	}
	return nil
}

var _ Embedder = (*ONNXEmbedder)(nil)
