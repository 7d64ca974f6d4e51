package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// StaticDimensions is the vector width of the hash-projection embedder.
const StaticDimensions = 256

// Feature weights for the hash projection.
const (
	staticTokenWeight = 0.7
	staticNgramWeight = 0.3
	staticNgramSize   = 3
)

var staticTokenRe = regexp.MustCompile(`[a-zA-Z0-9]+`)

// keywordStop filters language keywords that carry no retrieval signal.
var keywordStop = map[string]bool{
	"func": true, "function": true, "def": true, "class": true,
	"return": true, "import": true, "const": true, "var": true,
	"let": true, "int": true, "string": true, "bool": true,
	"void": true, "true": true, "false": true, "nil": true,
	"null": true, "this": true, "self": true, "new": true,
}

// StaticEmbedder projects text into a fixed vector with FNV token and
// trigram hashing. Deterministic, dependency-free, reduced semantic
// quality. Selected when no model directory is configured.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

// NewStaticEmbedder creates the hash-projection embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed implements Embedder.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	vec := make([]float32, StaticDimensions)
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return vec, nil
	}

	for _, token := range staticTokens(trimmed) {
		vec[hashBucket(token)] += staticTokenWeight
	}
	squashed := squashAlnum(trimmed)
	for i := 0; i+staticNgramSize <= len(squashed); i++ {
		vec[hashBucket(squashed[i:i+staticNgramSize])] += staticNgramWeight
	}

	normalizeInPlace(vec)
	return vec, nil
}

// EmbedBatch implements Embedder.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		results[i] = vec
	}
	return results, nil
}

// EmbedQuery implements Embedder. The projection is symmetric, so a
// query embeds exactly like a document.
func (e *StaticEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return e.Embed(ctx, query)
}

// Dimensions implements Embedder.
func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

// ModelID implements Embedder.
func (e *StaticEmbedder) ModelID() string { return "static-fnv-256" }

// Close implements Embedder.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

var _ Embedder = (*StaticEmbedder)(nil)

// staticTokens lowercases and splits identifiers on camelCase and
// snake_case boundaries, dropping keywords.
func staticTokens(text string) []string {
	var tokens []string
	for _, word := range staticTokenRe.FindAllString(text, -1) {
		for _, part := range splitIdentifier(word) {
			lower := strings.ToLower(part)
			if lower != "" && !keywordStop[lower] {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

// splitIdentifier splits camelCase and PascalCase runs, keeping
// acronyms together (HTTPHandler -> HTTP, Handler).
func splitIdentifier(s string) []string {
	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if (prevLower || nextLower) && current.Len() > 0 {
				result = append(result, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

func squashAlnum(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func hashBucket(s string) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % StaticDimensions)
}
