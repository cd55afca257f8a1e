// Package keys builds the layered cache keys used by both the restore and the
// save phase of a job.
//
// A TieredKey bundles the primary key, which names the full artifact bundle,
// with the fast lookup key, which names a zero-byte marker that is cheap to
// query. Both phases must derive their keys through Build so the two
// derivations can never drift apart.
package keys

import (
	"errors"
	"fmt"
	"strings"
)

// FastSuffix is appended to the primary key to form the fast lookup key.
const FastSuffix = "-flk"

// MaxKeyLength is the longest key a store accepts.
const MaxKeyLength = 512

// ErrInvalidKey is returned by Validate.
var ErrInvalidKey = errors.New("invalid cache key")

// Validate rejects keys stores cannot hold: longer than MaxKeyLength, or
// containing a comma or newline.
func Validate(key string) error {
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: %q is longer than %d characters", ErrInvalidKey, key, MaxKeyLength)
	}
	if strings.ContainsAny(key, ",\n") {
		return fmt.Errorf("%w: %q cannot contain commas or newlines", ErrInvalidKey, key)
	}
	return nil
}

// TieredKey is the full set of candidate keys for one job.
type TieredKey struct {
	// Primary names the full artifact bundle, qualified by the content hash
	// when there is one.
	Primary string
	// Fast names the fast lookup marker, qualified by the same hash.
	Fast string
	// RestoreKeys are the ordered fallback prefixes tried after Primary.
	RestoreKeys []string
	// FastRestoreKeys are the ordered fallback prefixes tried after Fast.
	FastRestoreKeys []string
}

// Build derives a TieredKey from the caller's primary key, its ordered
// restore-key prefixes and an optional content hash. A non-empty hash
// qualifies both the primary and the fast key, so a bundle is never shared
// by markers of different hashes. An empty hash leaves both unqualified.
func Build(primary string, restoreKeyPrefixes []string, hash string) TieredKey {
	fast := FastKey(primary, hash)

	// The trailing fallback uses the caller's key so bundles of any hash
	// still match.
	restoreKeys := make([]string, 0, len(restoreKeyPrefixes)+1)
	restoreKeys = append(restoreKeys, restoreKeyPrefixes...)
	restoreKeys = append(restoreKeys, primary+"-")

	// Built from the qualified fast key so same-hash variants are tried first.
	fastRestoreKeys := make([]string, 0, len(restoreKeyPrefixes)+1)
	fastRestoreKeys = append(fastRestoreKeys, restoreKeyPrefixes...)
	fastRestoreKeys = append(fastRestoreKeys, fast+"-")

	return TieredKey{
		Primary:         qualify(primary, hash),
		Fast:            fast,
		RestoreKeys:     restoreKeys,
		FastRestoreKeys: fastRestoreKeys,
	}
}

func qualify(key, hash string) string {
	if hash == "" {
		return key
	}
	return key + "-" + hash
}

// FastKey returns primary+"-flk", followed by "-"+hash when hash is non-empty.
func FastKey(primary, hash string) string {
	return qualify(primary+FastSuffix, hash)
}

// PrimaryCandidates returns the primary key followed by its restore keys, in
// the order the store should try them.
func (k TieredKey) PrimaryCandidates() []string {
	return append([]string{k.Primary}, k.RestoreKeys...)
}

// FastCandidates returns the fast key followed by its fast restore keys.
func (k TieredKey) FastCandidates() []string {
	return append([]string{k.Fast}, k.FastRestoreKeys...)
}
