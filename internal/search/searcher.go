package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kestrel-search/kestrel/internal/engine"
	kerrors "github.com/kestrel-search/kestrel/internal/errors"
	"github.com/kestrel-search/kestrel/internal/store"
)

// Defaults for search options.
const (
	DefaultK         = 25
	DefaultRerankTop = 50
	minCandidates    = 50
)

// Mode selects the retrieval strategy.
type Mode string

const (
	ModeHybrid     Mode = "hybrid"
	ModeVectorOnly Mode = "vector"
	ModeRerank     Mode = "rerank"
)

// Options configures one search.
type Options struct {
	// K is the maximum number of results (default 25).
	K int

	// PerFile caps results per file; 0 means no cap.
	PerFile int

	// FilterPath keeps only results whose path has this prefix.
	FilterPath string

	// Mode is hybrid (default), vector-only, or hybrid+rerank.
	Mode Mode

	// RRFK overrides the fusion constant (default 20).
	RRFK int

	// RerankTop is how many fused hits feed the cross-encoder.
	RerankTop int
}

func (o Options) withDefaults() Options {
	if o.K <= 0 {
		o.K = DefaultK
	}
	if o.Mode == "" {
		o.Mode = ModeHybrid
	}
	if o.RRFK <= 0 {
		o.RRFK = DefaultRRFK
	}
	if o.RerankTop <= 0 {
		o.RerankTop = DefaultRerankTop
	}
	return o
}

// Result is one search result in the serialized form shared by all
// adapters. Content is omitted in compact mode.
type Result struct {
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Kind      string  `json:"kind"`
	Name      string  `json:"name,omitempty"`
	Signature string  `json:"signature,omitempty"`
	Score     float64 `json:"score"`
	Content   string  `json:"content,omitempty"`
}

// Searcher answers queries against one open engine. It only reads.
type Searcher struct {
	eng      *engine.Engine
	reranker *CrossEncoder
}

// NewSearcher creates a searcher. reranker may be nil; rerank mode then
// returns an InvalidInput error.
func NewSearcher(eng *engine.Engine, reranker *CrossEncoder) *Searcher {
	return &Searcher{eng: eng, reranker: reranker}
}

// Search runs the hybrid retrieval pipeline. An empty index yields
// empty results; a filter that leaves nothing is not an error.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]*Result, error) {
	opts = opts.withDefaults()
	if strings.TrimSpace(query) == "" {
		return nil, kerrors.InvalidInput("empty query", nil)
	}
	switch opts.Mode {
	case ModeHybrid, ModeVectorOnly, ModeRerank:
	default:
		return nil, kerrors.InvalidInput(fmt.Sprintf("unknown search mode %q", opts.Mode), nil)
	}
	if opts.Mode == ModeRerank && s.reranker == nil {
		return nil, kerrors.InvalidInput("rerank mode requires a reranker model", nil)
	}

	structural := DetectStructural(query)

	qv, err := s.eng.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	depth := opts.K * 2
	if depth < minCandidates {
		depth = minCandidates
	}

	vecHits, err := s.eng.Vectors.Search(ctx, qv, depth)
	if err != nil {
		return nil, err
	}

	var fused []*FusedHit
	if opts.Mode == ModeVectorOnly {
		fused = FuseRRF(nil, vecHits, opts.RRFK)
	} else {
		textHits, err := s.eng.FTS.Search(ctx, query, depth, structural)
		if err != nil {
			return nil, err
		}
		fused = FuseRRF(textHits, vecHits, opts.RRFK)
	}

	if opts.Mode == ModeRerank {
		fused, err = s.rerank(ctx, query, fused, opts.RerankTop)
		if err != nil {
			return nil, err
		}
	}

	results, err := s.hydrate(ctx, fused)
	if err != nil {
		return nil, err
	}

	results = filterByPath(results, opts.FilterPath)
	results = capPerFile(results, opts.PerFile)
	if len(results) > opts.K {
		results = results[:opts.K]
	}
	return results, nil
}

// FindReferences looks up whole-word occurrences of a symbol without
// touching the semantic path.
func (s *Searcher) FindReferences(ctx context.Context, symbol string, k int) ([]*Result, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, kerrors.InvalidInput("empty symbol", nil)
	}
	if k <= 0 {
		k = DefaultK
	}

	hits, err := s.eng.FTS.FindReferences(ctx, symbol, k)
	if err != nil {
		return nil, err
	}

	fused := make([]*FusedHit, len(hits))
	for i, h := range hits {
		fused[i] = &FusedHit{ID: h.ID, RRFScore: h.Score, TextScore: h.Score}
	}
	return s.hydrate(ctx, fused)
}

// rerank rescores the top hits with the cross-encoder and reorders
// them; the tail keeps its RRF order below the reranked head.
func (s *Searcher) rerank(ctx context.Context, query string, fused []*FusedHit, top int) ([]*FusedHit, error) {
	if len(fused) == 0 {
		return fused, nil
	}
	if top > len(fused) {
		top = len(fused)
	}

	head := fused[:top]
	ids := make([]uint64, len(head))
	for i, h := range head {
		ids[i] = h.ID
	}
	records, err := s.eng.Vectors.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint64]string, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec.Content
	}

	passages := make([]string, len(head))
	for i, h := range head {
		passages[i] = byID[h.ID]
	}
	scores, err := s.reranker.Score(ctx, query, passages)
	if err != nil {
		return nil, err
	}

	order := make([]int, len(head))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	reordered := make([]*FusedHit, 0, len(fused))
	for _, idx := range order {
		h := head[idx]
		h.RRFScore = float64(scores[idx])
		reordered = append(reordered, h)
	}
	return append(reordered, fused[top:]...), nil
}

// hydrate resolves fused hits into serialized results, preserving
// order. Hits whose record vanished under a concurrent writer are
// dropped.
func (s *Searcher) hydrate(ctx context.Context, fused []*FusedHit) ([]*Result, error) {
	if len(fused) == 0 {
		return []*Result{}, nil
	}

	ids := make([]uint64, len(fused))
	for i, h := range fused {
		ids[i] = h.ID
	}
	records, err := s.eng.Vectors.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint64]*store.Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	results := make([]*Result, 0, len(fused))
	for _, h := range fused {
		rec, ok := byID[h.ID]
		if !ok {
			continue
		}
		results = append(results, &Result{
			Path:      rec.Path,
			StartLine: rec.StartLine,
			EndLine:   rec.EndLine,
			Kind:      string(rec.Kind),
			Name:      rec.Name,
			Signature: rec.Signature,
			Score:     h.RRFScore,
			Content:   rec.Content,
		})
	}
	return results, nil
}

// Compact strips content from results for token-constrained consumers.
func Compact(results []*Result) []*Result {
	out := make([]*Result, len(results))
	for i, r := range results {
		copied := *r
		copied.Content = ""
		out[i] = &copied
	}
	return out
}

func filterByPath(results []*Result, prefix string) []*Result {
	if prefix == "" {
		return results
	}
	out := results[:0]
	for _, r := range results {
		if strings.HasPrefix(r.Path, prefix) {
			out = append(out, r)
		}
	}
	return out
}

func capPerFile(results []*Result, perFile int) []*Result {
	if perFile <= 0 {
		return results
	}
	counts := make(map[string]int)
	out := results[:0]
	for _, r := range results {
		if counts[r.Path] >= perFile {
			continue
		}
		counts[r.Path]++
		out = append(out, r)
	}
	return out
}
