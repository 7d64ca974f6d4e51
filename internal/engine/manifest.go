package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"

	"github.com/kestrel-search/kestrel/internal/chunk"
	kerrors "github.com/kestrel-search/kestrel/internal/errors"
)

// SchemaVersion is the current on-disk schema version.
const SchemaVersion = 1

// ManifestFileName is the manifest's file name inside an index directory.
const ManifestFileName = "manifest.json"

// Manifest is the index's self-description, persisted as JSON at the
// index directory root. Every vector in the store has width VectorDim.
type Manifest struct {
	SchemaVersion  int       `json:"schema_version"`
	ModelID        string    `json:"model_id"`
	VectorDim      int       `json:"vector_dim"`
	CreatedAt      time.Time `json:"created_at"`
	ChunkerVersion int       `json:"chunker_version"`
}

// NewManifest creates a manifest for a fresh index.
func NewManifest(modelID string, vectorDim int) *Manifest {
	return &Manifest{
		SchemaVersion:  SchemaVersion,
		ModelID:        modelID,
		VectorDim:      vectorDim,
		CreatedAt:      time.Now().UTC(),
		ChunkerVersion: chunk.Version,
	}
}

// LoadManifest reads the manifest from an index directory. A missing
// manifest is NotFound; an unreadable one is Corruption.
func LoadManifest(indexDir string) (*Manifest, error) {
	path := filepath.Join(indexDir, ManifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kerrors.NotFound("no index manifest", err).WithPath(path)
		}
		return nil, kerrors.Corruption("read manifest", err).WithPath(path)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, kerrors.Corruption("parse manifest", err).WithPath(path)
	}
	if m.SchemaVersion <= 0 || m.VectorDim <= 0 {
		return nil, kerrors.Corruption(
			fmt.Sprintf("implausible manifest: schema %d, dim %d", m.SchemaVersion, m.VectorDim), nil,
		).WithPath(path)
	}
	return &m, nil
}

// Save writes the manifest atomically.
func (m *Manifest) Save(indexDir string) error {
	path := filepath.Join(indexDir, ManifestFileName)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := renameio.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return kerrors.FatalInfra("write manifest", err).WithPath(path)
	}
	return nil
}
