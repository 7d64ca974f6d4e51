package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-search/kestrel/internal/engine"
	kerrors "github.com/kestrel-search/kestrel/internal/errors"
	"github.com/kestrel-search/kestrel/internal/index"
)

// indexRepo builds an index over files and returns a read-only engine.
func indexRepo(t *testing.T, files map[string]string) *engine.Engine {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}

	writer, err := engine.OpenWriter(context.Background(), root)
	require.NoError(t, err)
	_, err = index.NewMaintainer(writer).Full(context.Background())
	require.NoError(t, err)
	writer.Close()

	reader, err := engine.OpenReader(context.Background(), root)
	require.NoError(t, err)
	t.Cleanup(reader.Close)
	return reader
}

func TestSearchStructuralQuery(t *testing.T) {
	files := map[string]string{
		"src/chunk.rs": "struct Chunk { id: u64, path: String }\n",
		"src/kind.rs":  "enum ChunkKind { Function, Method }\n",
		"src/trait.rs": "trait Chunker { fn chunk(&self); }\n",
	}
	// Plenty of unrelated enums that would pollute results without the
	// kind intersection.
	names := []string{
		"Color", "Shape", "Mode", "State", "Phase", "Level", "Grade",
		"Status", "Signal", "Policy", "Layout", "Weight", "Metric",
		"Region", "Locale", "Format", "Source", "Target", "Origin", "Size",
	}
	for i, name := range names {
		files[filepath.Join("src", "enums", string(rune('a'+i))+".rs")] =
			"enum " + name + " { One, Two }\n"
	}

	eng := indexRepo(t, files)
	s := NewSearcher(eng, nil)

	results, err := s.Search(context.Background(), "Chunk struct", Options{K: 10})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "Chunk", results[0].Name)
	assert.Equal(t, "struct", results[0].Kind)
	for _, r := range results[:min(3, len(results))] {
		assert.Contains(t, r.Name, "Chunk", "no unrelated item in the top 3")
	}
}

func TestSearchEmptyIndexReturnsEmpty(t *testing.T) {
	eng := indexRepo(t, map[string]string{})
	s := NewSearcher(eng, nil)

	results, err := s.Search(context.Background(), "anything at all", Options{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchEmptyQueryRejected(t *testing.T) {
	eng := indexRepo(t, map[string]string{"a.txt": "text\n"})
	s := NewSearcher(eng, nil)

	_, err := s.Search(context.Background(), "  ", Options{})
	require.Error(t, err)
	assert.Equal(t, kerrors.CategoryInvalidInput, kerrors.CategoryOf(err))
}

func TestSearchFilterPath(t *testing.T) {
	eng := indexRepo(t, map[string]string{
		"src/auth.rs":  "fn authenticate() {}\n",
		"docs/auth.md": "# authenticate\n\nhow authentication works\n",
	})
	s := NewSearcher(eng, nil)

	results, err := s.Search(context.Background(), "authenticate", Options{FilterPath: "src/"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.True(t, len(r.Path) >= 4 && r.Path[:4] == "src/")
	}

	// A filter that excludes everything is empty, not an error.
	none, err := s.Search(context.Background(), "authenticate", Options{FilterPath: "nowhere/"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchPerFileCap(t *testing.T) {
	eng := indexRepo(t, map[string]string{
		"src/many.rs": "fn auth_one() {}\n\nfn auth_two() {}\n\nfn auth_three() {}\n",
		"src/one.rs":  "fn auth_other() {}\n",
	})
	s := NewSearcher(eng, nil)

	results, err := s.Search(context.Background(), "auth", Options{PerFile: 1})
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, r := range results {
		seen[r.Path]++
		assert.LessOrEqual(t, seen[r.Path], 1)
	}
}

func TestSearchVectorOnlyMode(t *testing.T) {
	eng := indexRepo(t, map[string]string{
		"src/auth.rs": "fn authenticate(user: &str) -> bool { true }\n",
	})
	s := NewSearcher(eng, nil)

	results, err := s.Search(context.Background(), "authenticate user", Options{Mode: ModeVectorOnly})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestSearchRerankWithoutModelRejected(t *testing.T) {
	eng := indexRepo(t, map[string]string{"a.txt": "text\n"})
	s := NewSearcher(eng, nil)

	_, err := s.Search(context.Background(), "query", Options{Mode: ModeRerank})
	require.Error(t, err)
	assert.Equal(t, kerrors.CategoryInvalidInput, kerrors.CategoryOf(err))
}

func TestFindReferences(t *testing.T) {
	eng := indexRepo(t, map[string]string{
		"src/def.rs":  "fn authenticate() {}\n",
		"src/c1.rs":   "fn a() { authenticate() }\n",
		"src/c2.rs":   "fn b() { authenticate() }\n",
		"src/c3.rs":   "fn c() { authenticate() }\n",
		"src/c4.rs":   "fn d() { authenticate() }\n",
		"src/c5.rs":   "fn e() { authenticate() }\n",
		"src/none.rs": "fn unrelated() {}\n",
	})
	s := NewSearcher(eng, nil)

	results, err := s.FindReferences(context.Background(), "authenticate", 50)
	require.NoError(t, err)
	require.Len(t, results, 6, "one definition plus five call sites")

	paths := make(map[string]bool)
	for _, r := range results {
		paths[r.Path] = true
		assert.NotZero(t, r.StartLine)
	}
	assert.False(t, paths["src/none.rs"])
}

func TestCompactOmitsContent(t *testing.T) {
	results := []*Result{{Path: "a.rs", Content: "fn a() {}"}}
	compact := Compact(results)

	assert.Empty(t, compact[0].Content)
	assert.NotEmpty(t, results[0].Content, "original untouched")
}
