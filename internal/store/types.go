// Package store is the persistence layer: a memory-mapped key-value
// store for chunk records and embeddings with an HNSW nearest-neighbor
// structure, a bleve full-text index, a file-metadata store driving
// incremental updates, and the advisory writer lock.
package store

import (
	"encoding/binary"
	"time"

	"github.com/kestrel-search/kestrel/internal/chunk"
)

// On-disk layout inside an index directory.
const (
	VectorDirName  = "vectors"
	FTSDirName     = "fts"
	MetaDirName    = "meta"
	LockFileName   = "lock"
	vectorDBName   = "store.db"
	annFileName    = "ann.hnsw"
	fileMetaDBName = "files.db"
)

// Record is one chunk as persisted in the vector store: the chunk's
// metadata plus its embedding.
type Record struct {
	chunk.Chunk

	// Embedding is the L2-normalized dense vector, width manifest
	// vector_dim.
	Embedding []float32
}

// VectorHit is one nearest-neighbor result.
type VectorHit struct {
	ID    uint64
	Score float32 // cosine similarity on normalized vectors
}

// TextHit is one full-text result.
type TextHit struct {
	ID    uint64
	Score float64 // combined field-weighted BM25
}

// StructuralFilter restricts a full-text search to one chunk kind
// intersected with an identifier term.
type StructuralFilter struct {
	Kind       chunk.Kind
	Identifier string
}

// FileMeta links a file to the chunks currently representing it.
type FileMeta struct {
	Path        string
	ContentHash string
	MTime       time.Time
	Size        int64
	ChunkIDs    []uint64
}

// idKey encodes a chunk ID as a big-endian bbolt key.
func idKey(id uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], id)
	return k[:]
}

func keyID(k []byte) uint64 {
	return binary.BigEndian.Uint64(k)
}
