package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-search/kestrel/internal/chunk"
	kerrors "github.com/kestrel-search/kestrel/internal/errors"
)

const testDim = 4

func openTestVectorStore(t *testing.T) *VectorStore {
	t.Helper()
	s, err := OpenVectorStore(filepath.Join(t.TempDir(), "vectors"), testDim, 64, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRecord(id uint64, path string, vec []float32) *Record {
	return &Record{
		Chunk: chunk.Chunk{
			ID:        id,
			Path:      path,
			StartLine: 1,
			EndLine:   5,
			Kind:      chunk.KindFunction,
			Content:   "func test() {}",
		},
		Embedding: vec,
	}
}

func TestVectorStoreUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	s := openTestVectorStore(t)

	require.NoError(t, s.Upsert(ctx, []*Record{
		testRecord(1, "a.go", []float32{1, 0, 0, 0}),
		testRecord(2, "b.go", []float32{0, 1, 0, 0}),
	}))

	hits, err := s.Search(ctx, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, uint64(1), hits[0].ID)
	assert.InDelta(t, 1.0, float64(hits[0].Score), 1e-5)
}

func TestVectorStoreWidthMismatchIsCorruption(t *testing.T) {
	ctx := context.Background()
	s := openTestVectorStore(t)

	err := s.Upsert(ctx, []*Record{testRecord(1, "a.go", []float32{1, 0})})
	require.Error(t, err)
	assert.Equal(t, kerrors.CategoryCorruption, kerrors.CategoryOf(err))

	// The failed upsert left nothing behind.
	count, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestVectorStoreDeleteHidesFromSearch(t *testing.T) {
	ctx := context.Background()
	s := openTestVectorStore(t)

	require.NoError(t, s.Upsert(ctx, []*Record{
		testRecord(1, "a.go", []float32{1, 0, 0, 0}),
		testRecord(2, "b.go", []float32{0.9, 0.1, 0, 0}),
	}))
	require.NoError(t, s.Delete(ctx, []uint64{1}))

	hits, err := s.Search(ctx, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, uint64(1), h.ID)
	}

	_, err = s.Get(ctx, 1)
	assert.True(t, kerrors.IsNotFound(err))
}

func TestVectorStoreReindexSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "vectors")

	s, err := OpenVectorStore(dir, testDim, 64, false)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, []*Record{
		testRecord(1, "a.go", []float32{1, 0, 0, 0}),
		testRecord(2, "b.go", []float32{0, 1, 0, 0}),
	}))
	require.NoError(t, s.Delete(ctx, []uint64{2}))
	require.NoError(t, s.ReindexANN(ctx))
	require.NoError(t, s.Close())

	reopened, err := OpenVectorStore(dir, testDim, 64, false)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	hits, err := reopened.Search(ctx, []float32{0, 1, 0, 0}, 2)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, uint64(2), h.ID)
	}

	ids, err := reopened.AllIDs()
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, ids)
}

func TestVectorStoreUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := openTestVectorStore(t)

	require.NoError(t, s.Upsert(ctx, []*Record{testRecord(1, "a.go", []float32{1, 0, 0, 0})}))
	require.NoError(t, s.Upsert(ctx, []*Record{testRecord(1, "a.go", []float32{0, 0, 1, 0})}))

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rec, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 1, 0}, rec.Embedding)
}

func TestVectorStoreEmptySearch(t *testing.T) {
	s := openTestVectorStore(t)

	hits, err := s.Search(context.Background(), []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
