package chunk

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Chunker splits files into semantic chunks.
type Chunker interface {
	// Chunk splits a file into chunks. Identical input produces
	// identical chunks in identical order.
	Chunk(ctx context.Context, path string, content []byte, language string) ([]*Chunk, error)
}

// CodeChunker emits one chunk per named declaration using tree-sitter,
// falling back to line windows for unparseable input.
type CodeChunker struct {
	parser   *Parser
	registry *LanguageRegistry
}

// NewCodeChunker creates a chunker over the default language registry.
func NewCodeChunker() *CodeChunker {
	return NewCodeChunkerWithRegistry(DefaultRegistry())
}

// NewCodeChunkerWithRegistry creates a chunker over a custom registry.
func NewCodeChunkerWithRegistry(registry *LanguageRegistry) *CodeChunker {
	return &CodeChunker{
		parser:   NewParser(registry),
		registry: registry,
	}
}

// Close releases parser resources.
func (c *CodeChunker) Close() {
	c.parser.Close()
}

// Chunk implements Chunker. Files over the size cap and binary files
// return no chunks.
func (c *CodeChunker) Chunk(ctx context.Context, path string, content []byte, language string) ([]*Chunk, error) {
	if len(content) == 0 || len(content) > MaxFileSize || IsBinary(content) {
		return nil, nil
	}

	cfg, ok := c.registry.Get(language)
	if !ok {
		return chunkLines(path, content, language), nil
	}

	tree, err := c.parser.Parse(ctx, content, language)
	if err != nil {
		// Unparseable input degrades to line chunking.
		return chunkLines(path, content, language), nil
	}
	defer tree.Close()

	w := &declWalker{
		cfg:     cfg,
		path:    path,
		source:  content,
		lang:    language,
		lineIdx: buildLineIndex(content),
	}
	w.walk(tree.RootNode(), nil, 0)

	if len(w.chunks) == 0 {
		return chunkLines(path, content, language), nil
	}
	return w.chunks, nil
}

// scope is one enclosing named declaration on the walk stack.
type scope struct {
	label     string
	id        uint64
	container bool
}

type declWalker struct {
	cfg     *LanguageConfig
	path    string
	source  []byte
	lang    string
	lineIdx []int // byte offset of each line start
	chunks  []*Chunk
}

// walk emits chunks in source order. Nested declarations produce their
// own chunks while the enclosing chunk keeps its full span.
func (w *declWalker) walk(n *sitter.Node, scopes []scope, parentID uint64) {
	count := int(n.NamedChildCount())
	for i := 0; i < count; i++ {
		child := n.NamedChild(i)
		kind, isDecl := w.cfg.DeclKinds[child.Type()]
		if !isDecl {
			w.walk(child, scopes, parentID)
			continue
		}

		ck := w.emit(child, kind, scopes, parentID)
		if ck == nil {
			w.walk(child, scopes, parentID)
			continue
		}

		childScopes := scopes
		if w.cfg.Containers[child.Type()] {
			childScopes = append(append([]scope(nil), scopes...), scope{
				label:     breadcrumbLabel(ck.Kind, ck.Name),
				id:        ck.ID,
				container: true,
			})
		}
		w.walk(child, childScopes, ck.ID)
	}
}

// emit builds the chunk for one declaration node. Returns nil for
// anonymous declarations.
func (w *declWalker) emit(n *sitter.Node, kind Kind, scopes []scope, parentID uint64) *Chunk {
	if kind == kindFromBody {
		kind = w.resolveBodyKind(n)
	}
	if kind == KindFunction && inContainer(scopes) {
		kind = KindMethod
	}

	name := w.declName(n, kind)
	if name == "" {
		return nil
	}

	startByte := int(n.StartByte())
	startLine := int(n.StartPoint().Row) + 1
	endLine := int(n.EndPoint().Row) + 1

	// Attach the run of comment lines directly above the declaration.
	docStartByte, docStartLine := w.extendOverDocComment(startByte, startLine)

	content := string(w.source[docStartByte:n.EndByte()])

	ck := &Chunk{
		Path:       w.path,
		StartLine:  docStartLine,
		EndLine:    endLine,
		Kind:       kind,
		Name:       name,
		Signature:  w.signature(n),
		Breadcrumb: buildBreadcrumb(scopes, kind, name),
		ParentID:   parentID,
		Content:    content,
		Language:   w.lang,
	}
	finish(ck)
	w.chunks = append(w.chunks, ck)
	return ck
}

// resolveBodyKind classifies declarations whose kind lives in the body,
// e.g. Go `type X struct` vs `type X interface`.
func (w *declWalker) resolveBodyKind(n *sitter.Node) Kind {
	kind := KindStruct
	var scan func(*sitter.Node) bool
	scan = func(node *sitter.Node) bool {
		switch node.Type() {
		case "struct_type":
			kind = KindStruct
			return true
		case "interface_type":
			kind = KindInterface
			return true
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if scan(node.NamedChild(i)) {
				return true
			}
		}
		return false
	}
	scan(n)
	return kind
}

// declName extracts the declaration's primary identifier.
func (w *declWalker) declName(n *sitter.Node, kind Kind) string {
	if name := n.ChildByFieldName(w.cfg.NameField); name != nil {
		return name.Content(w.source)
	}

	// Rust impl blocks name the implemented type.
	if kind == KindImpl {
		if t := n.ChildByFieldName("type"); t != nil {
			return t.Content(w.source)
		}
	}

	// Go type declarations carry the name on the inner type_spec.
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "type_spec" {
			if name := child.ChildByFieldName("name"); name != nil {
				return name.Content(w.source)
			}
		}
	}
	return ""
}

// signature is the declaration header line, whitespace-normalized:
// the node text up to the body opener.
func (w *declWalker) signature(n *sitter.Node) string {
	text := string(w.source[n.StartByte():n.EndByte()])
	if i := strings.IndexAny(text, "{\n"); i >= 0 {
		text = text[:i]
	}
	// Python headers end at the colon.
	if w.lang == "python" {
		if i := strings.Index(text, ":"); i >= 0 {
			text = text[:i]
		}
	}
	return strings.Join(strings.Fields(text), " ")
}

// extendOverDocComment walks upward over the contiguous comment block
// directly above startLine and returns the adjusted start position.
func (w *declWalker) extendOverDocComment(startByte, startLine int) (int, int) {
	line := startLine - 1 // 0-based index of the declaration's line
	for line > 0 {
		prev := strings.TrimSpace(w.lineText(line - 1))
		if prev == "" || !w.isCommentLine(prev) {
			break
		}
		line--
	}
	if line == startLine-1 {
		return startByte, startLine
	}
	return w.lineIdx[line], line + 1
}

func (w *declWalker) isCommentLine(line string) bool {
	for _, prefix := range w.cfg.CommentPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	// Block comment bodies.
	return strings.HasPrefix(line, "/*") || strings.HasPrefix(line, "*")
}

// lineText returns the text of the 0-based line index.
func (w *declWalker) lineText(i int) string {
	start := w.lineIdx[i]
	end := len(w.source)
	if i+1 < len(w.lineIdx) {
		end = w.lineIdx[i+1]
	}
	return strings.TrimRight(string(w.source[start:end]), "\n")
}

// buildLineIndex returns the byte offset of every line start.
func buildLineIndex(source []byte) []int {
	idx := []int{0}
	for i, b := range source {
		if b == '\n' && i+1 < len(source) {
			idx = append(idx, i+1)
		}
	}
	return idx
}

func inContainer(scopes []scope) bool {
	for _, s := range scopes {
		if s.container {
			return true
		}
	}
	return false
}

// breadcrumbLabel renders one scope segment, e.g. "impl Handler".
func breadcrumbLabel(kind Kind, name string) string {
	switch kind {
	case KindModule:
		return "mod " + name
	case KindImpl:
		return "impl " + name
	case KindClass:
		return "class " + name
	case KindStruct:
		return "struct " + name
	case KindInterface:
		return "trait " + name
	case KindEnum:
		return "enum " + name
	default:
		return "fn " + name
	}
}

func buildBreadcrumb(scopes []scope, kind Kind, name string) string {
	parts := make([]string, 0, len(scopes)+1)
	for _, s := range scopes {
		parts = append(parts, s.label)
	}
	parts = append(parts, breadcrumbLabel(kind, name))
	return strings.Join(parts, " :: ")
}
