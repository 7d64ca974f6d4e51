package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coder/hnsw"
	bolt "go.etcd.io/bbolt"

	kerrors "github.com/kestrel-search/kestrel/internal/errors"
)

var chunksBucket = []byte("chunks")

// VectorStore persists chunk records and embeddings in a memory-mapped
// key-value store and answers top-k queries through an in-memory HNSW
// graph. The graph uses lazy deletion: removed IDs are tombstoned and
// swept out when ReindexANN rebuilds at a commit boundary, so readers
// always see a coherent graph.
type VectorStore struct {
	mu   sync.RWMutex
	db   *bolt.DB
	dir  string
	dim  int
	path string

	graph      *hnsw.Graph[uint64]
	tombstones map[uint64]struct{}
	dirty      bool
	closed     bool
}

// OpenVectorStore opens (or creates) the vector store under dir with
// the given embedding width. mapSizeMB sets the initial mmap size.
func OpenVectorStore(dir string, dim, mapSizeMB int, readOnly bool) (*VectorStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil && !readOnly {
		return nil, kerrors.FatalInfra("create vector directory", err).WithPath(dir)
	}

	dbPath := filepath.Join(dir, vectorDBName)
	opts := &bolt.Options{
		ReadOnly:        readOnly,
		InitialMmapSize: mapSizeMB * 1024 * 1024,
		Timeout:         time.Second,
	}
	db, err := bolt.Open(dbPath, 0o644, opts)
	if err != nil {
		return nil, kerrors.FatalInfra("open vector store", err).WithPath(dbPath)
	}

	if !readOnly {
		err = db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(chunksBucket)
			return err
		})
		if err != nil {
			_ = db.Close()
			return nil, kerrors.FatalInfra("create chunks bucket", err).WithPath(dbPath)
		}
	}

	s := &VectorStore{
		db:         db,
		dir:        dir,
		dim:        dim,
		path:       filepath.Join(dir, annFileName),
		tombstones: make(map[uint64]struct{}),
	}

	if err := s.loadGraph(); err != nil {
		// A missing or stale graph is rebuilt from the records; only
		// record decoding failures are corruption.
		if kerrors.CategoryOf(err) == kerrors.CategoryCorruption {
			_ = db.Close()
			return nil, err
		}
		if err := s.rebuildGraph(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 64
	g.Ml = 0.25
	return g
}

// loadGraph imports a previously exported graph.
func (s *VectorStore) loadGraph() error {
	f, err := os.Open(s.path)
	if err != nil {
		return kerrors.NotFound("no persisted ann graph", err).WithPath(s.path)
	}
	defer func() { _ = f.Close() }()

	g := newGraph()
	if err := g.Import(bufio.NewReader(f)); err != nil {
		return kerrors.NotFound("stale ann graph", err).WithPath(s.path)
	}
	s.graph = g
	return nil
}

// rebuildGraph reconstructs the graph from every live record.
func (s *VectorStore) rebuildGraph() error {
	g := newGraph()
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(chunksBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return kerrors.Corruption("decode chunk record", err).WithPath(s.dir)
			}
			if len(rec.Embedding) > 0 {
				g.Add(hnsw.MakeNode(keyID(k), rec.Embedding))
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	s.graph = g
	s.tombstones = make(map[uint64]struct{})
	return nil
}

// Upsert writes or replaces chunk records atomically. Every embedding
// must have the manifest width; a mismatch is corruption and aborts the
// transaction with no partial state visible.
func (s *VectorStore) Upsert(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	for _, rec := range records {
		if len(rec.Embedding) != s.dim {
			return kerrors.Corruption(
				fmt.Sprintf("vector width mismatch: expected %d, got %d", s.dim, len(rec.Embedding)), nil,
			).WithPath(rec.Path)
		}
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(chunksBucket)
		for _, rec := range records {
			data, err := encodeRecord(rec)
			if err != nil {
				return err
			}
			if err := b.Put(idKey(rec.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return kerrors.FatalInfra("vector upsert", err).WithPath(s.dir)
	}

	// The bbolt write committed; mirror into the graph. A node already
	// under a record's ID (live or tombstoned) is removed before the new
	// vector is added.
	for _, rec := range records {
		delete(s.tombstones, rec.ID)
		s.graph.Delete(rec.ID)
		s.graph.Add(hnsw.MakeNode(rec.ID, rec.Embedding))
	}
	s.dirty = true
	return nil
}

// Delete removes records and tombstones their graph nodes.
func (s *VectorStore) Delete(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(chunksBucket)
		for _, id := range ids {
			if err := b.Delete(idKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return kerrors.FatalInfra("vector delete", err).WithPath(s.dir)
	}

	for _, id := range ids {
		s.tombstones[id] = struct{}{}
	}
	s.dirty = true
	return nil
}

// Search returns up to k (id, cosine similarity) pairs for the query
// vector. Vectors are L2-normalized, so similarity equals dot product.
func (s *VectorStore) Search(ctx context.Context, vector []float32, k int) ([]*VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("vector store is closed")
	}
	if len(vector) != s.dim {
		return nil, kerrors.InvalidInput(
			fmt.Sprintf("query vector width %d, index width %d", len(vector), s.dim), nil)
	}
	if s.graph.Len() == 0 {
		return []*VectorHit{}, nil
	}

	q := make([]float32, len(vector))
	copy(q, vector)
	normalize(q)

	// Over-fetch to compensate for tombstoned nodes still in the graph.
	nodes := s.graph.Search(q, k+len(s.tombstones))

	hits := make([]*VectorHit, 0, k)
	for _, node := range nodes {
		if _, dead := s.tombstones[node.Key]; dead {
			continue
		}
		sim := 1 - s.graph.Distance(q, node.Value)
		hits = append(hits, &VectorHit{ID: node.Key, Score: sim})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// Get returns one record, or NotFound.
func (s *VectorStore) Get(ctx context.Context, id uint64) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("vector store is closed")
	}

	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(chunksBucket)
		if b == nil {
			return nil
		}
		data := b.Get(idKey(id))
		if data == nil {
			return nil
		}
		var err error
		rec, err = decodeRecord(data)
		return err
	})
	if err != nil {
		return nil, kerrors.Corruption("decode chunk record", err).WithPath(s.dir)
	}
	if rec == nil {
		return nil, kerrors.NotFound(fmt.Sprintf("no chunk %x", id), nil)
	}
	return rec, nil
}

// GetMany hydrates records for a list of IDs, skipping missing ones.
func (s *VectorStore) GetMany(ctx context.Context, ids []uint64) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("vector store is closed")
	}

	records := make([]*Record, 0, len(ids))
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(chunksBucket)
		if b == nil {
			return nil
		}
		for _, id := range ids {
			data := b.Get(idKey(id))
			if data == nil {
				continue
			}
			rec, err := decodeRecord(data)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, kerrors.Corruption("decode chunk record", err).WithPath(s.dir)
	}
	return records, nil
}

// AllIDs returns every chunk ID, for consistency checks.
func (s *VectorStore) AllIDs() ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("vector store is closed")
	}

	var ids []uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(chunksBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			ids = append(ids, keyID(k))
			return nil
		})
	})
	return ids, err
}

// Count returns the number of live records.
func (s *VectorStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("vector store is closed")
	}

	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(chunksBucket)
		if b != nil {
			count = b.Stats().KeyN
		}
		return nil
	})
	return count, err
}

// ReindexANN rebuilds the graph from live records, sweeping tombstones,
// and persists the export atomically. Called at commit boundaries after
// large batches.
func (s *VectorStore) ReindexANN(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vector store is closed")
	}
	if !s.dirty {
		return nil
	}

	if len(s.tombstones) > 0 {
		if err := s.rebuildGraph(); err != nil {
			return err
		}
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return kerrors.FatalInfra("create ann export", err).WithPath(tmp)
	}
	if err := s.graph.Export(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return kerrors.FatalInfra("export ann graph", err).WithPath(tmp)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return kerrors.FatalInfra("close ann export", err).WithPath(tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return kerrors.FatalInfra("replace ann graph", err).WithPath(s.path)
	}

	s.dirty = false
	return nil
}

// Close releases the store.
func (s *VectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return s.db.Close()
}

func encodeRecord(rec *Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
