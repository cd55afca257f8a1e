package backends

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richardartoul/tieredcache/pkg/locking"
)

func newTestDisk(t *testing.T) *Disk {
	t.Helper()
	d, err := NewDisk(t.TempDir(), locking.NewMemLock(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return d
}

func TestDiskSaveLookupRestore(t *testing.T) {
	ctx := context.Background()
	d := newTestDisk(t)

	src := t.TempDir()
	writeTree(t, src, map[string]string{"out/result.txt": "built"})
	out := filepath.Join(src, "out")

	id, err := d.Save(ctx, NamespaceBundle, "build-v1", []string{out}, SaveOptions{ChunkSize: 4096})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	key, err := d.Lookup(ctx, NamespaceBundle, []string{"build-v1"})
	require.NoError(t, err)
	assert.Equal(t, "build-v1", key)

	require.NoError(t, os.RemoveAll(out))
	require.NoError(t, d.Restore(ctx, NamespaceBundle, key, []string{out}))

	got, err := os.ReadFile(filepath.Join(out, "result.txt"))
	require.NoError(t, err)
	assert.Equal(t, "built", string(got))
}

func TestDiskNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	d := newTestDisk(t)

	_, err := d.Save(ctx, NamespaceMarker, "build-v1-flk", nil, SaveOptions{})
	require.NoError(t, err)

	key, err := d.Lookup(ctx, NamespaceBundle, []string{"build-v1", "build-v1-"})
	require.NoError(t, err)
	assert.Empty(t, key)

	key, err = d.Lookup(ctx, NamespaceMarker, []string{"build-v1-flk"})
	require.NoError(t, err)
	assert.Equal(t, "build-v1-flk", key)
}

func TestDiskLookupPrefersNewestPrefixMatch(t *testing.T) {
	ctx := context.Background()
	d := newTestDisk(t)

	now := time.Unix(1700000000, 0)
	d.now = func() time.Time { return now }
	_, err := d.Save(ctx, NamespaceMarker, "build-v1-flk-aaa", nil, SaveOptions{})
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = d.Save(ctx, NamespaceMarker, "build-v1-flk-bbb", nil, SaveOptions{})
	require.NoError(t, err)

	key, err := d.Lookup(ctx, NamespaceMarker, []string{"build-v1-flk-ccc", "build-v1-flk-"})
	require.NoError(t, err)
	assert.Equal(t, "build-v1-flk-bbb", key)
}

func TestDiskSaveExistingKey(t *testing.T) {
	ctx := context.Background()
	d := newTestDisk(t)

	_, err := d.Save(ctx, NamespaceMarker, "k", nil, SaveOptions{})
	require.NoError(t, err)

	_, err = d.Save(ctx, NamespaceMarker, "k", nil, SaveOptions{})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestDiskRestoreMissingKey(t *testing.T) {
	d := newTestDisk(t)
	err := d.Restore(context.Background(), NamespaceBundle, "nope", []string{"x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiskSaveMissingPathsLeavesNoEntry(t *testing.T) {
	ctx := context.Background()
	d := newTestDisk(t)

	_, err := d.Save(ctx, NamespaceBundle, "k", []string{filepath.Join(t.TempDir(), "gone")}, SaveOptions{})
	require.ErrorIs(t, err, ErrPathsMissing)

	key, err := d.Lookup(ctx, NamespaceBundle, []string{"k"})
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestDiskMetadataKeyWithColons(t *testing.T) {
	ctx := context.Background()
	d := newTestDisk(t)

	_, err := d.Save(ctx, NamespaceMarker, "linux:amd64:go1.25", nil, SaveOptions{})
	require.NoError(t, err)

	meta, err := d.readMetadata(NamespaceMarker, "linux:amd64:go1.25")
	require.NoError(t, err)
	assert.Equal(t, "linux:amd64:go1.25", meta.Key)
	assert.Zero(t, meta.Size)
}
