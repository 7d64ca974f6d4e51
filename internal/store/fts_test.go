package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-search/kestrel/internal/chunk"
)

func openTestFTS(t *testing.T) *FTS {
	t.Helper()
	f, err := OpenFTS(context.Background(), filepath.Join(t.TempDir(), "fts"), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func ftsChunk(id uint64, name string, kind chunk.Kind, content string) *chunk.Chunk {
	return &chunk.Chunk{
		ID:        id,
		Path:      "src/" + name + ".rs",
		StartLine: 1,
		EndLine:   10,
		Kind:      kind,
		Name:      name,
		Signature: "fn " + name + "()",
		Content:   content,
		Language:  "rust",
	}
}

func TestFTSUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	f := openTestFTS(t)

	require.NoError(t, f.Upsert(ctx, []*chunk.Chunk{
		ftsChunk(1, "authenticate", chunk.KindFunction, "fn authenticate(user: &User) {}"),
		ftsChunk(2, "render", chunk.KindFunction, "fn render(frame: &mut Frame) {}"),
	}))

	hits, err := f.Search(ctx, "authenticate", 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, uint64(1), hits[0].ID)
}

func TestFTSSubTokenMatchesCompound(t *testing.T) {
	ctx := context.Background()
	f := openTestFTS(t)

	require.NoError(t, f.Upsert(ctx, []*chunk.Chunk{
		ftsChunk(1, "authenticateUser", chunk.KindFunction, "fn authenticateUser() {}"),
	}))

	// Querying a sub-token finds the compound identifier.
	hits, err := f.Search(ctx, "authenticate", 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, uint64(1), hits[0].ID)
}

func TestFTSNameBoostOutranksContentMatch(t *testing.T) {
	ctx := context.Background()
	f := openTestFTS(t)

	named := ftsChunk(1, "debounce", chunk.KindFunction, "fn debounce() {}")
	mention := ftsChunk(2, "watch", chunk.KindFunction, "// calls debounce on every event\nfn watch() { debounce() }")
	require.NoError(t, f.Upsert(ctx, []*chunk.Chunk{mention, named}))

	hits, err := f.Search(ctx, "debounce", 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, uint64(1), hits[0].ID)
}

func TestFTSStructuralFilterExcludesOtherKinds(t *testing.T) {
	ctx := context.Background()
	f := openTestFTS(t)

	structChunk := ftsChunk(1, "Chunk", chunk.KindStruct, "struct Chunk { id: u64 }")
	structChunk.Signature = "struct Chunk"
	enumChunk := ftsChunk(2, "ChunkKind", chunk.KindEnum, "enum ChunkKind { Function }")
	enumChunk.Signature = "enum ChunkKind"
	require.NoError(t, f.Upsert(ctx, []*chunk.Chunk{structChunk, enumChunk}))

	hits, err := f.Search(ctx, "Chunk struct", 10, &StructuralFilter{
		Kind:       chunk.KindStruct,
		Identifier: "Chunk",
	})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.Equal(t, uint64(1), h.ID, "only the struct may match under a struct filter")
	}
}

func TestFTSFindReferencesWholeWord(t *testing.T) {
	ctx := context.Background()
	f := openTestFTS(t)

	def := ftsChunk(1, "authenticate", chunk.KindFunction, "fn authenticate() {}")
	caller := ftsChunk(2, "login", chunk.KindFunction, "fn login() { authenticate() }")
	unrelated := ftsChunk(3, "render", chunk.KindFunction, "fn render() {}")
	require.NoError(t, f.Upsert(ctx, []*chunk.Chunk{def, caller, unrelated}))

	hits, err := f.FindReferences(ctx, "authenticate", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	ids := []uint64{hits[0].ID, hits[1].ID}
	assert.ElementsMatch(t, []uint64{1, 2}, ids)
}

func TestFTSDeleteRemovesFromResults(t *testing.T) {
	ctx := context.Background()
	f := openTestFTS(t)

	require.NoError(t, f.Upsert(ctx, []*chunk.Chunk{
		ftsChunk(1, "authenticate", chunk.KindFunction, "fn authenticate() {}"),
	}))
	require.NoError(t, f.Delete(ctx, []uint64{1}))

	hits, err := f.Search(ctx, "authenticate", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)

	count, err := f.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestFTSEmptyQuery(t *testing.T) {
	f := openTestFTS(t)

	hits, err := f.Search(context.Background(), "   ", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFTSAllIDs(t *testing.T) {
	ctx := context.Background()
	f := openTestFTS(t)

	require.NoError(t, f.Upsert(ctx, []*chunk.Chunk{
		ftsChunk(7, "one", chunk.KindFunction, "fn one() {}"),
		ftsChunk(9, "two", chunk.KindFunction, "fn two() {}"),
	}))

	ids, err := f.AllIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{7, 9}, ids)
}
