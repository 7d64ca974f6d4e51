package search

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

// rerankMaxSeqLen caps the joined (query, passage) sequence length.
const rerankMaxSeqLen = 384

// CrossEncoder scores (query, passage) pairs with an ONNX sequence
// classification model (MiniLM cross-encoder family). Higher is more
// relevant.
type CrossEncoder struct {
	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizers.Tokenizer
	closed    bool
}

// NewCrossEncoder loads model.onnx and tokenizer.json from modelDir.
func NewCrossEncoder(modelDir string) (*CrossEncoder, error) {
	modelPath := filepath.Join(modelDir, "model.onnx")
	tokenPath := filepath.Join(modelDir, "tokenizer.json")
	for _, p := range []string{modelPath, tokenPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, kerrors.FatalInfra("reranker model file missing", err).WithPath(p)
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

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"logits"}, opts)
	if err != nil {
		return nil, kerrors.FatalInfra("create reranker session", err).WithPath(modelPath)
	}

	tk, err := tokenizers.FromFile(tokenPath)
	if err != nil {
		session.Destroy()
		return nil, kerrors.FatalInfra("load reranker tokenizer", err).WithPath(tokenPath)
	}

	return &CrossEncoder{session: session, tokenizer: tk}, nil
}

// Score returns one relevance score per passage.
func (r *CrossEncoder) Score(ctx context.Context, query string, passages []string) ([]float32, error) {
	if len(passages) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("reranker is closed")
	}

	scores := make([]float32, len(passages))
	for i, passage := range passages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score, err := r.scorePair(query, passage)
		if err != nil {
			return nil, err
		}
		scores[i] = score
	}
	return scores, nil
}

func (r *CrossEncoder) scorePair(query, passage string) (float32, error) {
	enc := r.tokenizer.EncodeWithOptions(query+" [SEP] "+passage, true,
		tokenizers.WithReturnAttentionMask())
	ids := enc.IDs
	if len(ids) > rerankMaxSeqLen {
		ids = ids[:rerankMaxSeqLen]
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("pair tokenized to zero length")
	}

	seq := len(ids)
	flatIDs := make([]int64, seq)
	flatMask := make([]int64, seq)
	flatType := make([]int64, seq)
	for j, v := range ids {
		flatIDs[j] = int64(v)
		flatMask[j] = 1
	}

	shape := ort.NewShape(1, int64(seq))
	idsT, err := ort.NewTensor(shape, flatIDs)
	if err != nil {
		return 0, err
	}
	defer idsT.Destroy()
	maskT, err := ort.NewTensor(shape, flatMask)
	if err != nil {
		return 0, err
	}
	defer maskT.Destroy()
	typeT, err := ort.NewTensor(shape, flatType)
	if err != nil {
		return 0, err
	}
	defer typeT.Destroy()

	outputs := []ort.Value{nil}
	if err := r.session.Run([]ort.Value{idsT, maskT, typeT}, outputs); err != nil {
		return 0, fmt.Errorf("reranker inference: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return 0, fmt.Errorf("unexpected reranker output type")
	}
	data := logits.GetData()
	if len(data) == 0 {
		return 0, fmt.Errorf("empty reranker output")
	}
	return data[0], nil
}

// Close releases the session and tokenizer.
func (r *CrossEncoder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.session != nil {
		r.session.Destroy()
	}
	if r.tokenizer != nil {
		r.tokenizer.Close()
	}
	return nil
}
