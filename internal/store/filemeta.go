package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	kerrors "github.com/kestrel-search/kestrel/internal/errors"
)

var filesBucket = []byte("files")

// FileMetaStore persists per-path file records used by the maintainer
// to classify discovered files as unchanged, changed, new, or deleted.
type FileMetaStore struct {
	mu     sync.RWMutex
	db     *bolt.DB
	dir    string
	closed bool
}

// OpenFileMetaStore opens (or creates) the file-meta store under dir.
func OpenFileMetaStore(dir string, readOnly bool) (*FileMetaStore, error) {
	if !readOnly {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, kerrors.FatalInfra("create meta directory", err).WithPath(dir)
		}
	}

	dbPath := filepath.Join(dir, fileMetaDBName)
	db, err := bolt.Open(dbPath, 0o644, &bolt.Options{ReadOnly: readOnly, Timeout: time.Second})
	if err != nil {
		return nil, kerrors.FatalInfra("open file-meta store", err).WithPath(dbPath)
	}

	if !readOnly {
		err = db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(filesBucket)
			return err
		})
		if err != nil {
			_ = db.Close()
			return nil, kerrors.FatalInfra("create files bucket", err).WithPath(dbPath)
		}
	}

	return &FileMetaStore{db: db, dir: dir}, nil
}

// Get returns the record for path, or NotFound.
func (s *FileMetaStore) Get(ctx context.Context, path string) (*FileMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("file-meta store is closed")
	}

	var meta *FileMeta
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(filesBucket)
		if b == nil {
			return nil
		}
		data := b.Get([]byte(path))
		if data == nil {
			return nil
		}
		var m FileMeta
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
			return kerrors.Corruption("decode file meta", err).WithPath(path)
		}
		meta = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, kerrors.NotFound("no file meta", nil).WithPath(path)
	}
	return meta, nil
}

// Put writes the record for meta.Path.
func (s *FileMetaStore) Put(ctx context.Context, meta *FileMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("file-meta store is closed")
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(meta); err != nil {
		return fmt.Errorf("encode file meta: %w", err)
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(filesBucket).Put([]byte(meta.Path), buf.Bytes())
	})
	if err != nil {
		return kerrors.FatalInfra("write file meta", err).WithPath(meta.Path)
	}
	return nil
}

// Delete removes the record for path. Missing paths are not an error.
func (s *FileMetaStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("file-meta store is closed")
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(filesBucket).Delete([]byte(path))
	})
	if err != nil {
		return kerrors.FatalInfra("delete file meta", err).WithPath(path)
	}
	return nil
}

// IterPaths streams every stored path. The sequence is finite and
// non-restartable; the channel closes when iteration completes or ctx
// is cancelled.
func (s *FileMetaStore) IterPaths(ctx context.Context) <-chan string {
	out := make(chan string, 64)
	go func() {
		defer close(out)
		_ = s.db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(filesBucket)
			if b == nil {
				return nil
			}
			return b.ForEach(func(k, _ []byte) error {
				select {
				case out <- string(k):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		})
	}()
	return out
}

// Count returns the number of tracked files.
func (s *FileMetaStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("file-meta store is closed")
	}

	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(filesBucket); b != nil {
			count = b.Stats().KeyN
		}
		return nil
	})
	return count, err
}

// Close releases the store.
func (s *FileMetaStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
