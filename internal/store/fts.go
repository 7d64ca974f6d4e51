package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/porter"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/kestrel-search/kestrel/internal/chunk"
	kerrors "github.com/kestrel-search/kestrel/internal/errors"
)

// Analyzer registry names.
const (
	codeTokenizerName   = "code_tokenizer"
	codeAnalyzerName    = "code_analyzer"
	contentAnalyzerName = "code_content_analyzer"
)

// Field boosts for combined BM25 scoring.
var fieldBoosts = []struct {
	field string
	boost float64
}{
	{"name", 4.0},
	{"signature", 3.0},
	{"breadcrumb", 2.0},
	{"content", 1.0},
	{"path", 0.5},
}

func init() {
	_ = registry.RegisterTokenizer(codeTokenizerName, func(map[string]interface{}, *registry.Cache) (analysis.Tokenizer, error) {
		return &codeTokenizer{}, nil
	})
}

// FTS is the sparse full-text index over chunk fields. Identifier
// fields use the code analyzer without stemming; content additionally
// gets light English stemming.
type FTS struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// ftsDoc is the indexed document shape.
type ftsDoc struct {
	Content    string `json:"content"`
	Name       string `json:"name"`
	Signature  string `json:"signature"`
	Breadcrumb string `json:"breadcrumb"`
	Path       string `json:"path"`
	Language   string `json:"language"`
	Kind       string `json:"kind"`
}

// OpenFTS opens the full-text index at dir. Writers are created on
// first open; transient open failures (antivirus and indexer services
// briefly locking files) are retried with bounded backoff. Read-only
// handles may coexist with one writer.
func OpenFTS(ctx context.Context, dir string, readOnly bool) (*FTS, error) {
	idx, err := kerrors.RetryWithResult(ctx, kerrors.DefaultRetryConfig(), func() (bleve.Index, error) {
		idx, err := openBleve(dir, readOnly)
		if err != nil {
			// Bounded retry accommodates transient file locking on
			// user machines; persistent failures surface after the
			// last attempt.
			return nil, kerrors.Transient("open full-text index", err).WithPath(dir)
		}
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return &FTS{index: idx, path: dir}, nil
}

func openBleve(dir string, readOnly bool) (bleve.Index, error) {
	if readOnly {
		return bleve.OpenUsing(dir, map[string]interface{}{"read_only": true})
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		m, err := buildIndexMapping()
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return nil, err
		}
		return bleve.New(dir, m)
	}
	return bleve.Open(dir)
}

func buildIndexMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()

	err := m.AddCustomAnalyzer(codeAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     codeTokenizerName,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("add code analyzer: %w", err)
	}

	err = m.AddCustomAnalyzer(contentAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     codeTokenizerName,
		"token_filters": []string{lowercase.Name, porter.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("add content analyzer: %w", err)
	}

	codeField := bleve.NewTextFieldMapping()
	codeField.Analyzer = codeAnalyzerName

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = contentAnalyzerName

	kwField := bleve.NewTextFieldMapping()
	kwField.Analyzer = keyword.Name

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", contentField)
	doc.AddFieldMappingsAt("name", codeField)
	doc.AddFieldMappingsAt("signature", codeField)
	doc.AddFieldMappingsAt("breadcrumb", codeField)
	doc.AddFieldMappingsAt("path", codeField)
	doc.AddFieldMappingsAt("language", kwField)
	doc.AddFieldMappingsAt("kind", kwField)

	m.DefaultMapping = doc
	m.DefaultAnalyzer = codeAnalyzerName
	return m, nil
}

// Upsert writes or replaces chunks in one batch.
func (f *FTS) Upsert(ctx context.Context, chunks []*chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("fts index is closed")
	}

	batch := f.index.NewBatch()
	for _, ck := range chunks {
		doc := ftsDoc{
			Content:    ck.Content,
			Name:       ck.Name,
			Signature:  ck.Signature,
			Breadcrumb: ck.Breadcrumb,
			Path:       ck.Path,
			Language:   ck.Language,
			Kind:       string(ck.Kind),
		}
		if err := batch.Index(docID(ck.ID), doc); err != nil {
			return fmt.Errorf("index chunk %s: %w", docID(ck.ID), err)
		}
	}
	if err := f.index.Batch(batch); err != nil {
		return fmt.Errorf("execute fts batch: %w", err)
	}
	return nil
}

// Delete removes chunks by ID.
func (f *FTS) Delete(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("fts index is closed")
	}

	batch := f.index.NewBatch()
	for _, id := range ids {
		batch.Delete(docID(id))
	}
	if err := f.index.Batch(batch); err != nil {
		return fmt.Errorf("delete from fts: %w", err)
	}
	return nil
}

// Search runs a scored query over all fields with the standard boosts.
// A structural filter turns the kind and identifier into MUST clauses
// so other kinds cannot pollute the top ranks.
func (f *FTS) Search(ctx context.Context, queryStr string, k int, structural *StructuralFilter) ([]*TextHit, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, fmt.Errorf("fts index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []*TextHit{}, nil
	}

	var q query.Query
	if structural == nil {
		q = boostedDisjunction(queryStr)
	} else {
		kindQ := bleve.NewTermQuery(string(structural.Kind))
		kindQ.SetField("kind")

		identQ := bleve.NewDisjunctionQuery()
		for _, fb := range fieldBoosts {
			mq := bleve.NewMatchQuery(structural.Identifier)
			mq.SetField(fb.field)
			mq.SetBoost(fb.boost)
			identQ.AddQuery(mq)
		}

		bq := bleve.NewBooleanQuery()
		bq.AddMust(kindQ, identQ)
		bq.AddShould(boostedDisjunction(queryStr))
		q = bq
	}

	return f.run(ctx, q, k)
}

// FindReferences restricts matching to whole-word occurrences of the
// symbol in content and name, BM25-sorted. Match queries analyze the
// symbol with the field analyzer, so the compound token must match in
// full.
func (f *FTS) FindReferences(ctx context.Context, symbol string, k int) ([]*TextHit, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, fmt.Errorf("fts index is closed")
	}
	if strings.TrimSpace(symbol) == "" {
		return []*TextHit{}, nil
	}

	contentQ := bleve.NewMatchQuery(symbol)
	contentQ.SetField("content")

	nameQ := bleve.NewMatchQuery(symbol)
	nameQ.SetField("name")

	return f.run(ctx, bleve.NewDisjunctionQuery(contentQ, nameQ), k)
}

func boostedDisjunction(queryStr string) *query.DisjunctionQuery {
	dq := bleve.NewDisjunctionQuery()
	for _, fb := range fieldBoosts {
		mq := bleve.NewMatchQuery(queryStr)
		mq.SetField(fb.field)
		mq.SetBoost(fb.boost)
		dq.AddQuery(mq)
	}
	return dq
}

func (f *FTS) run(ctx context.Context, q query.Query, k int) ([]*TextHit, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = k

	res, err := f.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}

	hits := make([]*TextHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, err := parseDocID(h.ID)
		if err != nil {
			continue
		}
		hits = append(hits, &TextHit{ID: id, Score: h.Score})
	}
	return hits, nil
}

// AllIDs returns every chunk ID in the index, for consistency checks.
func (f *FTS) AllIDs() ([]uint64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, fmt.Errorf("fts index is closed")
	}

	count, err := f.index.DocCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	res, err := f.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("list fts ids: %w", err)
	}

	ids := make([]uint64, 0, len(res.Hits))
	for _, h := range res.Hits {
		if id, err := parseDocID(h.ID); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Count returns the number of indexed chunks.
func (f *FTS) Count() (uint64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return 0, fmt.Errorf("fts index is closed")
	}
	return f.index.DocCount()
}

// Close closes the index handle.
func (f *FTS) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.index.Close()
}

func docID(id uint64) string {
	return strconv.FormatUint(id, 16)
}

func parseDocID(s string) (uint64, error) {
	return strconv.ParseUint(s, 16, 64)
}

// codeTokenizer adapts TokenizeCode to the bleve analysis chain.
type codeTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *codeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := TokenizeCode(text)

	stream := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0
	for _, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), token)
		if start < 0 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)
		stream = append(stream, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		// Compound tokens and their parts overlap; only advance past
		// tokens that end before the cursor would regress.
		if end <= len(text) && end > offset {
			offset = start
		}
	}
	return stream
}
