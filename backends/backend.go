package backends

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Namespace separates full artifact bundles from fast lookup markers. A lookup
// only ever sees entries of its own namespace.
type Namespace string

const (
	NamespaceBundle Namespace = "bundle"
	NamespaceMarker Namespace = "marker"
)

var (
	// ErrNotFound is returned by Restore when the key has no entry.
	ErrNotFound = errors.New("cache entry not found")
	// ErrAlreadyExists is returned by Save when the key already has an entry.
	ErrAlreadyExists = errors.New("cache entry already exists")
)

// SaveOptions tune a single Save call.
type SaveOptions struct {
	// ChunkSize is the upload chunk size in bytes. Zero means the store default.
	ChunkSize int64
}

// Store defines the interface for cache storage backends.
//
// Implementations can be swapped to use different storage mechanisms. The
// caller issues one operation at a time.
type Store interface {
	// Lookup returns the key of the best entry for candidates, or "" when
	// nothing matches. For each candidate in order, an entry with exactly that
	// key wins, otherwise the most recently saved entry having the candidate
	// as a prefix wins. The first candidate producing an entry ends the search.
	Lookup(ctx context.Context, ns Namespace, candidates []string) (string, error)

	// Restore extracts the entry stored under key over paths.
	Restore(ctx context.Context, ns Namespace, key string, paths []string) error

	// Save archives paths under key and returns the new entry's id. An empty
	// paths list stores a zero-byte entry.
	Save(ctx context.Context, ns Namespace, key string, paths []string, opts SaveOptions) (string, error)

	// Close performs any cleanup operations needed by the backend.
	Close() error
}

var (
	_ Store = (*Disk)(nil)
	_ Store = (*S3)(nil)
	_ Store = (*Debug)(nil)
	_ Store = (*Instrumented)(nil)
)

// entry is the per-entry information stores need for matching.
type entry struct {
	Key     string
	PutTime time.Time
}

// matchCandidate picks the entry for a single candidate: an exact key, else
// the newest entry sharing the prefix. Ties on time go to the greater key so
// the result is deterministic.
func matchCandidate(candidate string, entries []entry) (string, bool) {
	var (
		best  entry
		found bool
	)
	for _, e := range entries {
		if e.Key == candidate {
			return e.Key, true
		}
		if !strings.HasPrefix(e.Key, candidate) {
			continue
		}
		if !found || e.PutTime.After(best.PutTime) || (e.PutTime.Equal(best.PutTime) && e.Key > best.Key) {
			best = e
			found = true
		}
	}
	return best.Key, found
}
