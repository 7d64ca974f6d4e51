package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/kestrel-search/kestrel/internal/errors"
)

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()

	m := NewManifest("static-fnv-256", 256)
	require.NoError(t, m.Save(dir))

	loaded, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, loaded.SchemaVersion)
	assert.Equal(t, "static-fnv-256", loaded.ModelID)
	assert.Equal(t, 256, loaded.VectorDim)
	assert.False(t, loaded.CreatedAt.IsZero())
}

func TestManifestMissingIsNotFound(t *testing.T) {
	_, err := LoadManifest(t.TempDir())
	assert.True(t, kerrors.IsNotFound(err))
}

func TestManifestGarbageIsCorruption(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFileName), []byte("{not json"), 0o644))

	_, err := LoadManifest(dir)
	require.Error(t, err)
	assert.Equal(t, kerrors.CategoryCorruption, kerrors.CategoryOf(err))
}

func TestManifestImplausibleValuesAreCorruption(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFileName),
		[]byte(`{"schema_version":1,"model_id":"m","vector_dim":0}`), 0o644))

	_, err := LoadManifest(dir)
	require.Error(t, err)
	assert.Equal(t, kerrors.CategoryCorruption, kerrors.CategoryOf(err))
}
