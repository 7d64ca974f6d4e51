package chunk

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// Parser wraps a tree-sitter parser. tree-sitter parsers are not safe
// for concurrent use, so Parse serializes callers.
type Parser struct {
	mu       sync.Mutex
	parser   *sitter.Parser
	registry *LanguageRegistry
	closed   bool
}

// NewParser creates a parser backed by the given registry.
func NewParser(registry *LanguageRegistry) *Parser {
	return &Parser{
		parser:   sitter.NewParser(),
		registry: registry,
	}
}

// Parse parses content as the named language and returns the tree.
// The caller owns the tree and must Close it.
func (p *Parser) Parse(ctx context.Context, content []byte, language string) (*sitter.Tree, error) {
	grammar, ok := p.registry.Grammar(language)
	if !ok {
		return nil, fmt.Errorf("no grammar for language %q", language)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("parser is closed")
	}

	p.parser.SetLanguage(grammar)
	tree, err := p.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", language, err)
	}
	return tree, nil
}

// Close releases the parser.
func (p *Parser) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.parser.Close()
}
