// Package index maintains the dual index: discovery, diff against the
// file-meta store, chunking, embedding, and per-file commits into the
// vector and full-text stores.
package index

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kestrel-search/kestrel/internal/chunk"
	"github.com/kestrel-search/kestrel/internal/engine"
	kerrors "github.com/kestrel-search/kestrel/internal/errors"
	"github.com/kestrel-search/kestrel/internal/store"
	"github.com/kestrel-search/kestrel/internal/walk"
)

// Summary reports one maintenance pass.
type Summary struct {
	Unchanged int
	Changed   int
	New       int
	Deleted   int

	// ChunksProcessed counts chunks written during the pass.
	ChunksProcessed int

	// FilesSkipped counts files dropped by per-file errors.
	FilesSkipped int

	// UpToDate is set when the pass found nothing to do.
	UpToDate bool
}

// ProgressFunc receives per-file progress during a pass. It is called
// once after each file commits, with that file's path.
type ProgressFunc func(path string, done, total int)

// Maintainer orchestrates index maintenance over one engine handle.
// The engine must be opened as a writer.
type Maintainer struct {
	eng     *engine.Engine
	chunker chunk.Chunker

	// Progress, when set, receives per-file updates. Quiet adapters
	// leave it nil and rely on structured log events.
	Progress ProgressFunc
}

// NewMaintainer creates a maintainer over an open writer engine.
func NewMaintainer(eng *engine.Engine) *Maintainer {
	return &Maintainer{
		eng:     eng,
		chunker: chunk.NewCodeChunker(),
	}
}

// fileClass is the incremental diff classification of one path.
type fileClass int

const (
	classUnchanged fileClass = iota
	classChanged
	classNew
)

type candidate struct {
	info  walk.FileInfo
	class fileClass
	// hash is the current content hash when it was computed during
	// classification; empty means not yet read.
	hash string
	// oldMeta is the stored record for changed files.
	oldMeta *store.FileMeta
}

// Incremental brings the index up to date with the tree under the
// engine's root. Only files whose stat or hash changed are reprocessed.
func (m *Maintainer) Incremental(ctx context.Context) (*Summary, error) {
	return m.run(ctx, false)
}

// Full reprocesses every candidate file regardless of stored state.
func (m *Maintainer) Full(ctx context.Context) (*Summary, error) {
	return m.run(ctx, true)
}

func (m *Maintainer) run(ctx context.Context, force bool) (*Summary, error) {
	walker := walk.New(m.eng.Root, m.eng.Config.Exclude)
	files, err := walker.Walk(ctx)
	if err != nil {
		return nil, err
	}

	candidates, deleted, summary, err := m.classify(ctx, files, force)
	if err != nil {
		return nil, err
	}

	if summary.Changed == 0 && summary.New == 0 && summary.Deleted == 0 {
		summary.UpToDate = true
		slog.Info("index up to date",
			slog.Int("unchanged", summary.Unchanged),
			slog.String("root", m.eng.Root))
		return summary, nil
	}

	// Remove the chunks of deleted files first; a changed file's old
	// chunks are removed just before it is reprocessed, so a reader
	// never sees both generations of a file.
	for _, meta := range deleted {
		if err := m.removeFile(ctx, meta, true); err != nil {
			if kerrors.IsAbort(err) {
				return summary, err
			}
			slog.Warn("failed to remove deleted file",
				slog.String("path", meta.Path),
				slog.String("error", err.Error()))
		}
	}

	total := 0
	for _, c := range candidates {
		if c.class != classUnchanged {
			total++
		}
	}

	done := 0
	var abortErr error
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			// Cancellation at a file boundary leaves prior files
			// committed and the index well-formed.
			break
		}
		switch c.class {
		case classUnchanged:
			continue
		case classChanged:
			if err := m.removeFile(ctx, c.oldMeta, false); err != nil {
				if kerrors.IsAbort(err) {
					return summary, err
				}
				slog.Warn("failed to remove stale chunks",
					slog.String("path", c.info.Path),
					slog.String("error", err.Error()))
				summary.FilesSkipped++
				continue
			}
		}

		n, err := m.processFile(ctx, c)
		if err != nil {
			if kerrors.IsAbort(err) || ctx.Err() != nil {
				abortErr = err
				break
			}
			slog.Warn("skipping file",
				slog.String("path", c.info.Path),
				slog.String("error", err.Error()))
			summary.FilesSkipped++
			continue
		}
		summary.ChunksProcessed += n
		done++
		if m.Progress != nil {
			m.Progress(c.info.Path, done, total)
		}
	}

	// Commit boundary: make the ANN structure durable even when the
	// pass was cancelled partway.
	if err := m.eng.Vectors.ReindexANN(context.WithoutCancel(ctx)); err != nil {
		return summary, err
	}

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	if abortErr != nil {
		return summary, abortErr
	}

	slog.Info("index pass complete",
		slog.Int("unchanged", summary.Unchanged),
		slog.Int("changed", summary.Changed),
		slog.Int("new", summary.New),
		slog.Int("deleted", summary.Deleted),
		slog.Int("chunks", summary.ChunksProcessed))
	return summary, nil
}

// classify splits discovered files into diff classes. Hashes are only
// computed for files whose mtime or size moved since the stored record;
// that hashing fans out across cores since it is pure read work.
func (m *Maintainer) classify(ctx context.Context, files []walk.FileInfo, force bool) ([]*candidate, []*store.FileMeta, *Summary, error) {
	summary := &Summary{}
	seen := make(map[string]bool, len(files))
	candidates := make([]*candidate, 0, len(files))
	var needHash []*candidate

	for _, info := range files {
		seen[info.Path] = true
		c := &candidate{info: info}

		meta, err := m.eng.Files.Get(ctx, info.Path)
		switch {
		case kerrors.IsNotFound(err):
			c.class = classNew
		case err != nil:
			return nil, nil, nil, err
		case !force && meta.MTime.Equal(info.MTime) && meta.Size == info.Size:
			c.class = classUnchanged
		default:
			c.oldMeta = meta
			needHash = append(needHash, c)
		}
		candidates = append(candidates, c)
	}

	if len(needHash) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(runtime.NumCPU())
		for _, c := range needHash {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				content, err := os.ReadFile(c.info.AbsPath)
				if err != nil {
					slog.Warn("cannot read file, skipping",
						slog.String("path", c.info.Path),
						slog.String("error", err.Error()))
					c.class = classUnchanged
					c.oldMeta = nil
					return nil
				}
				c.hash = chunk.HashContent(string(content))
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, nil, err
		}
	}

	for _, c := range needHash {
		if c.oldMeta == nil {
			continue
		}
		if !force && c.hash == c.oldMeta.ContentHash {
			c.class = classUnchanged
			// Refresh the stat fields so the next pass takes the
			// cheap path again.
			c.oldMeta.MTime = c.info.MTime
			c.oldMeta.Size = c.info.Size
			if err := m.eng.Files.Put(ctx, c.oldMeta); err != nil {
				return nil, nil, nil, err
			}
			c.oldMeta = nil
		} else {
			c.class = classChanged
		}
	}

	for _, c := range candidates {
		switch c.class {
		case classUnchanged:
			summary.Unchanged++
		case classChanged:
			summary.Changed++
		case classNew:
			summary.New++
		}
	}

	// Stored paths absent from the walk are deletions.
	var deleted []*store.FileMeta
	for path := range m.eng.Files.IterPaths(ctx) {
		if seen[path] {
			continue
		}
		meta, err := m.eng.Files.Get(ctx, path)
		if err != nil {
			if kerrors.IsNotFound(err) {
				continue
			}
			return nil, nil, nil, err
		}
		deleted = append(deleted, meta)
	}
	sort.Slice(deleted, func(i, j int) bool { return deleted[i].Path < deleted[j].Path })
	summary.Deleted = len(deleted)

	return candidates, deleted, summary, nil
}

// removeFile deletes a file's chunks from both stores, then (for
// deletions) its FileMeta record.
func (m *Maintainer) removeFile(ctx context.Context, meta *store.FileMeta, dropMeta bool) error {
	if meta == nil {
		return nil
	}
	if err := m.eng.FTS.Delete(ctx, meta.ChunkIDs); err != nil {
		return err
	}
	if err := m.eng.Vectors.Delete(ctx, meta.ChunkIDs); err != nil {
		return err
	}
	if dropMeta {
		return m.eng.Files.Delete(ctx, meta.Path)
	}
	return nil
}

// processFile chunks, embeds, and commits one file. The triple (FTS
// upsert, vector upsert, FileMeta put) commits in that order so the
// FileMeta record is the last-written witness; on failure the partial
// work is rolled back and the file reads as not indexed.
func (m *Maintainer) processFile(ctx context.Context, c *candidate) (int, error) {
	content, err := os.ReadFile(c.info.AbsPath)
	if err != nil {
		return 0, kerrors.NotFound("read file", err).WithPath(c.info.Path)
	}
	if c.hash == "" {
		c.hash = chunk.HashContent(string(content))
	}

	language := chunk.DefaultRegistry().DetectLanguage(c.info.Path)
	chunks, err := m.chunker.Chunk(ctx, c.info.Path, content, language)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		// Oversized, binary, or empty: tracked so deletion is noticed,
		// but nothing to index.
		return 0, m.eng.Files.Put(ctx, &store.FileMeta{
			Path:        c.info.Path,
			ContentHash: c.hash,
			MTime:       c.info.MTime,
			Size:        c.info.Size,
		})
	}

	texts := make([]string, len(chunks))
	for i, ck := range chunks {
		texts[i] = ck.Content
	}
	vectors, err := m.eng.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		// Nothing new was written; drop any stale record so the file
		// reads as not indexed, and report a per-file (skippable) error.
		m.rollback(ctx, c.info.Path, nil)
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, kerrors.Transient("embed chunks", err).WithPath(c.info.Path)
	}

	records := make([]*store.Record, len(chunks))
	ids := make([]uint64, len(chunks))
	for i, ck := range chunks {
		records[i] = &store.Record{Chunk: *ck, Embedding: vectors[i]}
		ids[i] = ck.ID
	}

	if err := m.eng.FTS.Upsert(ctx, chunks); err != nil {
		return 0, err
	}
	if err := m.eng.Vectors.Upsert(ctx, records); err != nil {
		m.rollback(ctx, c.info.Path, ids)
		return 0, err
	}
	meta := &store.FileMeta{
		Path:        c.info.Path,
		ContentHash: c.hash,
		MTime:       c.info.MTime,
		Size:        c.info.Size,
		ChunkIDs:    ids,
	}
	if err := m.eng.Files.Put(ctx, meta); err != nil {
		m.rollback(ctx, c.info.Path, ids)
		return 0, err
	}
	return len(chunks), nil
}

// rollback removes a file's partially committed chunks so the stores
// hold either all of the file's chunks or none of them.
func (m *Maintainer) rollback(ctx context.Context, path string, ids []uint64) {
	ctx = context.WithoutCancel(ctx)
	if err := m.eng.FTS.Delete(ctx, ids); err != nil {
		slog.Error("rollback: fts delete failed",
			slog.String("path", path), slog.String("error", err.Error()))
	}
	if err := m.eng.Vectors.Delete(ctx, ids); err != nil {
		slog.Error("rollback: vector delete failed",
			slog.String("path", path), slog.String("error", err.Error()))
	}
	if err := m.eng.Files.Delete(ctx, path); err != nil {
		slog.Error("rollback: file meta delete failed",
			slog.String("path", path), slog.String("error", err.Error()))
	}
}

// Clear removes every chunk and file record from the index.
func (m *Maintainer) Clear(ctx context.Context) error {
	ids, err := m.eng.Vectors.AllIDs()
	if err != nil {
		return err
	}
	if err := m.eng.FTS.Delete(ctx, ids); err != nil {
		return err
	}
	if err := m.eng.Vectors.Delete(ctx, ids); err != nil {
		return err
	}

	// Sweep FTS entries with no vector twin, then the file records.
	ftsIDs, err := m.eng.FTS.AllIDs()
	if err != nil {
		return err
	}
	if err := m.eng.FTS.Delete(ctx, ftsIDs); err != nil {
		return err
	}

	var paths []string
	for path := range m.eng.Files.IterPaths(ctx) {
		paths = append(paths, path)
	}
	for _, path := range paths {
		if err := m.eng.Files.Delete(ctx, path); err != nil {
			return err
		}
	}

	return m.eng.Vectors.ReindexANN(ctx)
}
