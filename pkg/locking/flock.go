package locking

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLock is a Group that takes an advisory file lock per key, so separate
// processes (for example two jobs on one runner) sharing a cache directory
// exclude each other. Keys are hashed to form lock file names.
type FileLock struct {
	dir string
	mem *MemLock
}

// NewFileLock creates lock files under dir, creating it if needed.
func NewFileLock(dir string) (*FileLock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &FileLock{
		dir: dir,
		mem: NewMemLock(),
	}, nil
}

func (f *FileLock) DoWithLock(key string, fn func() error) error {
	// flock locks are per file descriptor, so goroutines in this process still
	// need the in-memory lock.
	return f.mem.DoWithLock(key, func() error {
		sum := sha256.Sum256([]byte(key))
		lock := flock.New(filepath.Join(f.dir, hex.EncodeToString(sum[:])+".lock"))
		if err := lock.Lock(); err != nil {
			return fmt.Errorf("failed to acquire lock for %q: %w", key, err)
		}
		defer lock.Unlock()
		return fn()
	})
}
