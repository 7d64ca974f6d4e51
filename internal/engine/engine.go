// Package engine ties the stores, embedder, and manifest of one index
// directory into a handle passed explicitly to every operation. There
// are no process globals: a process may hold several engines to serve
// several repositories.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kestrel-search/kestrel/internal/config"
	"github.com/kestrel-search/kestrel/internal/embed"
	kerrors "github.com/kestrel-search/kestrel/internal/errors"
	"github.com/kestrel-search/kestrel/internal/store"
)

// Engine is the handle to one open index.
type Engine struct {
	// Root is the repository root the index covers.
	Root string

	// Dir is the index directory.
	Dir string

	Manifest *Manifest
	Config   config.Config
	Embedder embed.Embedder
	Vectors  *store.VectorStore
	FTS      *store.FTS
	Files    *store.FileMetaStore

	lock   *store.DirLock
	writer bool
}

// OpenReader opens the index covering root read-only, discovering it
// via Locate. Returns NotFound when no index exists.
func OpenReader(ctx context.Context, root string) (*Engine, error) {
	dir := Locate(root)
	if dir == "" {
		return nil, kerrors.NotFound("no index found; run `kestrel index` first", nil).WithPath(root)
	}
	return open(ctx, root, dir, false)
}

// OpenWriter opens (or creates) the index at root/.index for writing,
// taking the exclusive directory lock.
func OpenWriter(ctx context.Context, root string) (*Engine, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, kerrors.InvalidInput("resolve root", err).WithPath(root)
	}

	// Writers always own the repository's in-tree index; discovery of
	// ancestor or global indexes is a read-side concern.
	dir := filepath.Join(abs, IndexDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, kerrors.FatalInfra("create index directory", err).WithPath(dir)
	}
	return open(ctx, abs, dir, true)
}

func open(ctx context.Context, root, dir string, writer bool) (*Engine, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, kerrors.InvalidInput("load configuration", err).WithPath(root)
	}

	e := &Engine{Root: root, Dir: dir, Config: cfg, writer: writer}

	if writer {
		e.lock = store.NewDirLock(dir)
		if err := e.lock.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	closeOnErr := func(err error) (*Engine, error) {
		e.Close()
		return nil, err
	}

	e.Embedder, err = embed.New(embed.Options{
		ModelDir:      cfg.ModelDir,
		BatchSize:     cfg.BatchSize,
		CacheBudgetMB: cfg.CacheMaxMemoryMB,
	})
	if err != nil {
		return closeOnErr(err)
	}

	e.Manifest, err = LoadManifest(dir)
	switch {
	case err == nil:
		if e.Manifest.ModelID != e.Embedder.ModelID() || e.Manifest.VectorDim != e.Embedder.Dimensions() {
			return closeOnErr(kerrors.Corruption(
				fmt.Sprintf("index built with model %s (dim %d), current model %s (dim %d); clear and reindex",
					e.Manifest.ModelID, e.Manifest.VectorDim, e.Embedder.ModelID(), e.Embedder.Dimensions()), nil,
			).WithPath(dir))
		}
	case kerrors.IsNotFound(err) && writer:
		e.Manifest = NewManifest(e.Embedder.ModelID(), e.Embedder.Dimensions())
		if err := e.Manifest.Save(dir); err != nil {
			return closeOnErr(err)
		}
	default:
		return closeOnErr(err)
	}

	e.Vectors, err = store.OpenVectorStore(
		filepath.Join(dir, store.VectorDirName), e.Manifest.VectorDim, cfg.MapSizeMB, !writer)
	if err != nil {
		return closeOnErr(err)
	}

	e.FTS, err = store.OpenFTS(ctx, filepath.Join(dir, store.FTSDirName), !writer)
	if err != nil {
		return closeOnErr(err)
	}

	e.Files, err = store.OpenFileMetaStore(filepath.Join(dir, store.MetaDirName), !writer)
	if err != nil {
		return closeOnErr(err)
	}

	return e, nil
}

// Writer reports whether this handle holds the directory lock.
func (e *Engine) Writer() bool { return e.writer }

// Close releases stores, the embedder, and the lock. Safe on a
// partially constructed engine.
func (e *Engine) Close() {
	if e.Files != nil {
		_ = e.Files.Close()
		e.Files = nil
	}
	if e.FTS != nil {
		_ = e.FTS.Close()
		e.FTS = nil
	}
	if e.Vectors != nil {
		_ = e.Vectors.Close()
		e.Vectors = nil
	}
	if e.Embedder != nil {
		_ = e.Embedder.Close()
		e.Embedder = nil
	}
	if e.lock != nil {
		_ = e.lock.Release()
		e.lock = nil
	}
}

// Stats summarizes the open index.
type Stats struct {
	ChunkCount int
	FileCount  int
	SizeBytes  int64
	ModelID    string
	VectorDim  int
}

// Stats gathers index statistics for status reporting.
func (e *Engine) Stats() (*Stats, error) {
	chunks, err := e.Vectors.Count()
	if err != nil {
		return nil, err
	}
	files, err := e.Files.Count()
	if err != nil {
		return nil, err
	}

	var size int64
	_ = filepath.Walk(e.Dir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			size += info.Size()
		}
		return nil
	})

	return &Stats{
		ChunkCount: chunks,
		FileCount:  files,
		SizeBytes:  size,
		ModelID:    e.Manifest.ModelID,
		VectorDim:  e.Manifest.VectorDim,
	}, nil
}
