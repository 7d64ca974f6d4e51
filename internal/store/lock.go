package store

import (
	"context"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	kerrors "github.com/kestrel-search/kestrel/internal/errors"
)

// lockRetryInterval paces lock acquisition attempts.
const lockRetryInterval = 100 * time.Millisecond

// DirLock is the advisory lock guarding an index directory. Exactly one
// writer process holds it at any instant; readers never take it.
type DirLock struct {
	fl *flock.Flock
}

// NewDirLock creates the lock for the index directory.
func NewDirLock(indexDir string) *DirLock {
	return &DirLock{fl: flock.New(filepath.Join(indexDir, LockFileName))}
}

// Acquire takes the exclusive lock, waiting until ctx expires. Another
// live writer makes the wait block; a cancelled context surfaces as a
// Transient error naming the directory so the operator can act.
func (l *DirLock) Acquire(ctx context.Context) error {
	ok, err := l.fl.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return kerrors.Transient("acquire index lock", err).WithPath(l.fl.Path())
	}
	if !ok {
		return kerrors.Transient("index locked by another writer", nil).WithPath(l.fl.Path())
	}
	return nil
}

// TryAcquire takes the lock without waiting.
func (l *DirLock) TryAcquire() (bool, error) {
	ok, err := l.fl.TryLock()
	if err != nil {
		return false, kerrors.Transient("acquire index lock", err).WithPath(l.fl.Path())
	}
	return ok, nil
}

// Release drops the lock. Safe to call when not held.
func (l *DirLock) Release() error {
	return l.fl.Unlock()
}
