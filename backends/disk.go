package backends

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/richardartoul/tieredcache/pkg/locking"
)

const (
	fileFormatVersion = "v1-"
	defaultChunkSize  = 1 << 20
)

// Disk stores cache entries in a local directory. Each entry is a data file
// (the archive) plus a ".meta" file; an entry without metadata is never
// observed.
type Disk struct {
	dir    string // Absolute path to cache directory
	locks  locking.Group
	logger *slog.Logger
	now    func() time.Time
}

// diskMetadata holds metadata for a stored entry.
type diskMetadata struct {
	Key     string
	ID      string
	Size    int64
	PutTime time.Time
}

// NewDisk creates a disk store rooted at dir. locks guards writes of one key;
// pass a locking.FileLock when several processes share dir.
func NewDisk(dir string, locks locking.Group, logger *slog.Logger) (*Disk, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	// Convert to absolute path once at initialization
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	return &Disk{
		dir:    absDir,
		locks:  locks,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Lookup implements Store.
func (d *Disk) Lookup(ctx context.Context, ns Namespace, candidates []string) (string, error) {
	entries, err := d.list(ctx, ns)
	if err != nil {
		return "", err
	}
	for _, c := range candidates {
		if key, ok := matchCandidate(c, entries); ok {
			return key, nil
		}
	}
	return "", nil
}

// Restore implements Store.
func (d *Disk) Restore(ctx context.Context, ns Namespace, key string, paths []string) error {
	if _, err := d.readMetadata(ns, key); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return err
	}

	f, err := os.Open(d.dataPath(ns, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("failed to open cache entry: %w", err)
	}
	defer f.Close()

	n, err := extractArchive(f, paths)
	if err != nil {
		return err
	}
	d.logger.Debug("extracted cache entry", "namespace", ns, "key", key, "members", n)
	return nil
}

// Save implements Store.
func (d *Disk) Save(ctx context.Context, ns Namespace, key string, paths []string, opts SaveOptions) (string, error) {
	var id string
	err := d.locks.DoWithLock(string(ns)+"/"+key, func() error {
		if _, err := d.readMetadata(ns, key); err == nil {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, key)
		}

		size, err := d.write(ns, key, paths, opts.ChunkSize)
		if err != nil {
			return err
		}

		meta := diskMetadata{
			Key:     key,
			ID:      uuid.NewString(),
			Size:    size,
			PutTime: d.now(),
		}
		if err := d.writeMetadata(ns, meta); err != nil {
			return err
		}
		id = meta.ID
		d.logger.Info("cache size", "key", key, "size", humanize.Bytes(uint64(size)))
		return nil
	})
	return id, err
}

// Close implements Store.
func (d *Disk) Close() error {
	return nil
}

// write archives paths into the data file for key and returns its size.
func (d *Disk) write(ns Namespace, key string, paths []string, chunkSize int64) (int64, error) {
	diskPath := d.dataPath(ns, key)
	if err := os.MkdirAll(filepath.Dir(diskPath), 0755); err != nil {
		return 0, fmt.Errorf("failed to create subdirectory: %w", err)
	}

	// Write to temp file first for atomic operation.
	tmpPath := diskPath + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpPath) // Clean up if something goes wrong

	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	bw := bufio.NewWriterSize(tmpFile, int(chunkSize))
	_, err = writeArchive(bw, paths)
	if err == nil {
		err = bw.Flush()
	}
	closeErr := tmpFile.Close()
	if err != nil {
		return 0, err
	}
	if closeErr != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", closeErr)
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("failed to stat temp file: %w", err)
	}
	if err := os.Rename(tmpPath, diskPath); err != nil {
		return 0, fmt.Errorf("failed to rename cache file: %w", err)
	}
	return info.Size(), nil
}

// writeMetadata writes metadata for an entry. The key goes last because it
// may contain any character except a newline.
func (d *Disk) writeMetadata(ns Namespace, meta diskMetadata) error {
	metaPath := d.metadataPath(ns, meta.Key)

	content := fmt.Sprintf("id:%s\nsize:%d\ntime:%d\nkey:%s\n",
		meta.ID,
		meta.Size,
		meta.PutTime.UnixNano(),
		meta.Key)

	tmpPath := metaPath + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write temp metadata: %w", err)
	}
	if err := os.Rename(tmpPath, metaPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename metadata: %w", err)
	}
	return nil
}

func (d *Disk) readMetadata(ns Namespace, key string) (*diskMetadata, error) {
	return readMetadataFile(d.metadataPath(ns, key))
}

func readMetadataFile(metaPath string) (*diskMetadata, error) {
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var (
		meta    diskMetadata
		haveKey bool
	)
	for _, line := range strings.Split(string(data), "\n") {
		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch field {
		case "id":
			meta.ID = value
		case "size":
			meta.Size, _ = strconv.ParseInt(value, 10, 64)
		case "time":
			nanos, _ := strconv.ParseInt(value, 10, 64)
			meta.PutTime = time.Unix(0, nanos)
		case "key":
			meta.Key = value
			haveKey = true
		}
	}
	if !haveKey {
		return nil, fmt.Errorf("metadata missing key field")
	}
	return &meta, nil
}

// list returns every entry of ns with readable metadata.
func (d *Disk) list(ctx context.Context, ns Namespace) ([]entry, error) {
	var entries []entry
	root := filepath.Join(d.dir, string(ns))
	err := filepath.WalkDir(root, func(path string, de fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, os.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if de.IsDir() || !strings.HasSuffix(path, ".meta") {
			return nil
		}
		meta, err := readMetadataFile(path)
		if err != nil {
			d.logger.Warn("failed to read cache metadata", "path", path, "error", err)
			return nil
		}
		entries = append(entries, entry{Key: meta.Key, PutTime: meta.PutTime})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s entries: %w", ns, err)
	}
	return entries, nil
}

// dataPath converts a key to its data file path. Files are organized into 256
// subdirectories (00-ff) based on the first byte of the key's SHA-256,
// similar to Go's build cache structure.
func (d *Disk) dataPath(ns Namespace, key string) string {
	sum := sha256.Sum256([]byte(key))
	hexID := hex.EncodeToString(sum[:])
	return filepath.Join(d.dir, string(ns), hexID[:2], fileFormatVersion+hexID)
}

// metadataPath returns the path to the metadata file for a key.
func (d *Disk) metadataPath(ns Namespace, key string) string {
	return d.dataPath(ns, key) + ".meta"
}
