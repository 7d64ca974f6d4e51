package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/kestrel-search/kestrel/internal/errors"
)

func openTestFileMeta(t *testing.T) *FileMetaStore {
	t.Helper()
	s, err := OpenFileMetaStore(filepath.Join(t.TempDir(), "meta"), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFileMetaRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestFileMeta(t)

	meta := &FileMeta{
		Path:        "src/a.rs",
		ContentHash: "abc123",
		MTime:       time.Now().Truncate(time.Second),
		Size:        42,
		ChunkIDs:    []uint64{1, 2, 3},
	}
	require.NoError(t, s.Put(ctx, meta))

	got, err := s.Get(ctx, "src/a.rs")
	require.NoError(t, err)
	assert.Equal(t, meta.ContentHash, got.ContentHash)
	assert.Equal(t, meta.ChunkIDs, got.ChunkIDs)
	assert.True(t, meta.MTime.Equal(got.MTime))
}

func TestFileMetaGetMissing(t *testing.T) {
	s := openTestFileMeta(t)

	_, err := s.Get(context.Background(), "nope")
	assert.True(t, kerrors.IsNotFound(err))
}

func TestFileMetaDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestFileMeta(t)

	require.NoError(t, s.Put(ctx, &FileMeta{Path: "a"}))
	require.NoError(t, s.Delete(ctx, "a"))

	_, err := s.Get(ctx, "a")
	assert.True(t, kerrors.IsNotFound(err))

	// Deleting an absent path is not an error.
	assert.NoError(t, s.Delete(ctx, "a"))
}

func TestFileMetaIterPaths(t *testing.T) {
	ctx := context.Background()
	s := openTestFileMeta(t)

	for _, p := range []string{"a.go", "b.go", "dir/c.go"} {
		require.NoError(t, s.Put(ctx, &FileMeta{Path: p}))
	}

	var paths []string
	for p := range s.IterPaths(ctx) {
		paths = append(paths, p)
	}
	assert.ElementsMatch(t, []string{"a.go", "b.go", "dir/c.go"}, paths)

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
