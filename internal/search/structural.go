// Package search serves hybrid queries: dense and sparse candidates
// fused with Reciprocal Rank Fusion, optionally reranked by a
// cross-encoder.
package search

import (
	"regexp"
	"strings"

	"github.com/kestrel-search/kestrel/internal/chunk"
	"github.com/kestrel-search/kestrel/internal/store"
)

// structuralKeywords maps query keywords to chunk kinds, with a
// specificity weight. When a query names several keywords the most
// specific wins; ties break on first occurrence in the query.
var structuralKeywords = map[string]struct {
	kind        chunk.Kind
	specificity int
}{
	"struct":    {chunk.KindStruct, 3},
	"trait":     {chunk.KindInterface, 3},
	"interface": {chunk.KindInterface, 3},
	"enum":      {chunk.KindEnum, 3},
	"class":     {chunk.KindClass, 2},
	"method":    {chunk.KindMethod, 1},
	"function":  {chunk.KindFunction, 0},
}

var (
	pascalCaseRe = regexp.MustCompile(`^[A-Z][a-z0-9]+(?:[A-Z][a-zA-Z0-9]*)*$`)
	snakeCaseRe  = regexp.MustCompile(`^[a-z][a-z0-9]*(?:_[a-z0-9]+)+$`)
)

// DetectStructural recognizes structural intent: a structural keyword
// plus a PascalCase or snake_case identifier in the same query. The
// resulting filter intersects the identifier against the kind so other
// kinds cannot pollute the top ranks.
func DetectStructural(query string) *store.StructuralFilter {
	words := strings.Fields(query)

	bestSpec := -1
	var bestKind chunk.Kind
	var ident string

	for _, word := range words {
		trimmed := strings.Trim(word, `"'.,;:()`)
		if kw, ok := structuralKeywords[strings.ToLower(trimmed)]; ok {
			if kw.specificity > bestSpec {
				bestSpec = kw.specificity
				bestKind = kw.kind
			}
			continue
		}
		if ident == "" && isIdentifier(trimmed) {
			ident = trimmed
		}
	}

	if bestSpec < 0 || ident == "" {
		return nil
	}
	return &store.StructuralFilter{Kind: bestKind, Identifier: ident}
}

func isIdentifier(word string) bool {
	return pascalCaseRe.MatchString(word) || snakeCaseRe.MatchString(word)
}
