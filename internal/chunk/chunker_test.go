package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkSource(t *testing.T, path, source, language string) []*Chunk {
	t.Helper()
	c := NewCodeChunker()
	t.Cleanup(c.Close)

	chunks, err := c.Chunk(context.Background(), path, []byte(source), language)
	require.NoError(t, err)
	return chunks
}

func TestChunkGoFunction(t *testing.T) {
	source := `package greet

// Greet says hello.
func Greet(name string) string {
	return "hello " + name
}
`
	chunks := chunkSource(t, "greet.go", source, "go")
	require.Len(t, chunks, 1)

	ck := chunks[0]
	assert.Equal(t, KindFunction, ck.Kind)
	assert.Equal(t, "Greet", ck.Name)
	assert.True(t, strings.HasPrefix(ck.Signature, "func Greet(name string)"), "signature %q", ck.Signature)
	assert.Contains(t, ck.Content, "// Greet says hello.", "doc comment attaches to the declaration")
	assert.Equal(t, 3, ck.StartLine)
	assert.Equal(t, 6, ck.EndLine)
	assert.Equal(t, HashContent(ck.Content), ck.ContentHash)
}

func TestChunkGoTypeKinds(t *testing.T) {
	source := `package types

type Point struct {
	X, Y int
}

type Shape interface {
	Area() float64
}
`
	chunks := chunkSource(t, "types.go", source, "go")
	require.Len(t, chunks, 2)

	assert.Equal(t, KindStruct, chunks[0].Kind)
	assert.Equal(t, "Point", chunks[0].Name)
	assert.Equal(t, KindInterface, chunks[1].Kind)
	assert.Equal(t, "Shape", chunks[1].Name)
}

func TestChunkRustFunction(t *testing.T) {
	source := "fn greet() { println!(\"hi\"); }\n"
	chunks := chunkSource(t, "src/a.rs", source, "rust")
	require.Len(t, chunks, 1)

	ck := chunks[0]
	assert.Equal(t, KindFunction, ck.Kind)
	assert.Equal(t, "greet", ck.Name)
	assert.True(t, strings.HasPrefix(ck.Signature, "fn greet"), "signature %q", ck.Signature)
}

func TestChunkRustImplBreadcrumbs(t *testing.T) {
	source := `mod auth {
    struct Handler;

    impl Handler {
        fn authenticate(&self) -> bool {
            true
        }
    }
}
`
	chunks := chunkSource(t, "src/auth.rs", source, "rust")

	var fn *Chunk
	for _, ck := range chunks {
		if ck.Name == "authenticate" {
			fn = ck
		}
	}
	require.NotNil(t, fn)
	assert.Equal(t, KindMethod, fn.Kind, "functions inside impl blocks are methods")
	assert.Equal(t, "mod auth :: impl Handler :: fn authenticate", fn.Breadcrumb)
	assert.NotZero(t, fn.ParentID)
}

func TestChunkNestedDeclarationsOverlap(t *testing.T) {
	source := `class Outer:
    def inner(self):
        return 1
`
	chunks := chunkSource(t, "outer.py", source, "python")
	require.Len(t, chunks, 2)

	outer, inner := chunks[0], chunks[1]
	assert.Equal(t, KindClass, outer.Kind)
	assert.Equal(t, KindMethod, inner.Kind)
	// The outer chunk still covers the nested declaration's span.
	assert.LessOrEqual(t, outer.StartLine, inner.StartLine)
	assert.GreaterOrEqual(t, outer.EndLine, inner.EndLine)
	assert.Equal(t, outer.ID, inner.ParentID)
}

func TestChunkDeterminism(t *testing.T) {
	source := `package p

func A() {}

func B() {}
`
	first := chunkSource(t, "p.go", source, "go")
	second := chunkSource(t, "p.go", source, "go")

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Content, second[i].Content)
	}
}

func TestChunkUnknownLanguageFallsBackToWindows(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 100; i++ {
		sb.WriteString("line\n")
	}
	chunks := chunkSource(t, "notes.txt", sb.String(), "")

	require.NotEmpty(t, chunks)
	assert.Equal(t, KindBlock, chunks[0].Kind)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, WindowLines, chunks[0].EndLine)

	// Consecutive windows overlap by OverlapLines.
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, WindowLines-OverlapLines+1, chunks[1].StartLine)
}

func TestChunkSkipsBinaryAndOversized(t *testing.T) {
	c := NewCodeChunker()
	defer c.Close()

	binary := append([]byte("text"), 0x00)
	chunks, err := c.Chunk(context.Background(), "blob.bin", binary, "")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	big := make([]byte, MaxFileSize+1)
	for i := range big {
		big[i] = 'a'
	}
	chunks, err = c.Chunk(context.Background(), "big.txt", big, "")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkMarkdownHeadings(t *testing.T) {
	source := `# Title

intro text

## Install

run make
`
	chunks := chunkSource(t, "README.md", source, "")
	require.Len(t, chunks, 2)
	assert.Equal(t, "Title", chunks[0].Name)
	assert.Equal(t, "Install", chunks[1].Name)
	assert.Equal(t, KindBlock, chunks[0].Kind)
}

func TestChunkIDStability(t *testing.T) {
	a := ID("src/a.rs", 1, 10, "hash1")
	b := ID("src/a.rs", 1, 10, "hash1")
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, ID("src/b.rs", 1, 10, "hash1"))
	assert.NotEqual(t, a, ID("src/a.rs", 2, 10, "hash1"))
	assert.NotEqual(t, a, ID("src/a.rs", 1, 10, "hash2"))
}
