package locking

// Group runs functions with mutual exclusion over cache keys.
//
// Stores use a Group so that two writers of the same entry never interleave
// their data and metadata files.
type Group interface {
	// DoWithLock runs fn while holding the lock for key.
	DoWithLock(key string, fn func() error) error
}
