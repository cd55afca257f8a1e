package backends

import (
	"archive/tar"
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ErrPathsMissing is returned when none of the paths to save exist.
var ErrPathsMissing = errors.New("none of the specified paths exist")

// resolvePath expands a leading "~" and cleans p.
func resolvePath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Clean(p), nil
}

// writeArchive streams a zstd-compressed tar of paths to w and returns the
// number of members written. An empty paths list writes nothing at all, which
// is how zero-byte markers are produced.
func writeArchive(w io.Writer, paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	tw := tar.NewWriter(enc)

	count := 0
	for _, p := range paths {
		root, err := resolvePath(p)
		if err != nil {
			enc.Close()
			return count, err
		}
		if _, err := os.Lstat(root); errors.Is(err, os.ErrNotExist) {
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if err := addMember(tw, path, d); err != nil {
				return err
			}
			count++
			return nil
		})
		if err != nil {
			enc.Close()
			return count, fmt.Errorf("failed to archive %s: %w", p, err)
		}
	}
	if count == 0 {
		enc.Close()
		return 0, ErrPathsMissing
	}

	if err := tw.Close(); err != nil {
		enc.Close()
		return count, fmt.Errorf("failed to close tar writer: %w", err)
	}
	if err := enc.Close(); err != nil {
		return count, fmt.Errorf("failed to close zstd writer: %w", err)
	}
	return count, nil
}

func addMember(tw *tar.Writer, path string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	} else if !info.Mode().IsRegular() && !info.IsDir() {
		// Sockets, devices and pipes are not cacheable.
		return nil
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(path)
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// extractArchive unpacks r, written by writeArchive, and returns how many
// members were written. Members that fall outside every entry of paths are
// skipped, as are names that escape their root with ".." and names whose
// parent directory under the root is a symlink.
func extractArchive(r io.Reader, paths []string) (int, error) {
	br := bufio.NewReader(r)
	if _, err := br.Peek(1); errors.Is(err, io.EOF) {
		return 0, nil
	}

	roots := make([]string, 0, len(paths))
	for _, p := range paths {
		root, err := resolvePath(p)
		if err != nil {
			return 0, err
		}
		roots = append(roots, root)
	}

	dec, err := zstd.NewReader(br)
	if err != nil {
		return 0, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()

	count := 0
	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("failed to read archive: %w", err)
		}

		name := filepath.Clean(filepath.FromSlash(hdr.Name))
		if !filepath.IsAbs(name) && !filepath.IsLocal(name) {
			continue
		}
		if !withinAny(name, roots) || symlinkedParent(name, roots) {
			continue
		}
		if err := extractMember(tr, hdr, name); err != nil {
			return count, fmt.Errorf("failed to extract %s: %w", name, err)
		}
		count++
	}
}

func withinAny(name string, roots []string) bool {
	for _, root := range roots {
		if name == root || strings.HasPrefix(name, root+string(filepath.Separator)) || root == "." {
			return true
		}
	}
	return false
}

// symlinkedParent reports whether a directory between name's root and name
// is a symlink, which would let the member land outside the root.
func symlinkedParent(name string, roots []string) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(root, filepath.Dir(name))
		if err != nil || !filepath.IsLocal(rel) {
			continue
		}
		dir := root
		for _, part := range strings.Split(rel, string(filepath.Separator)) {
			if part == "." {
				continue
			}
			dir = filepath.Join(dir, part)
			fi, err := os.Lstat(dir)
			if err != nil {
				break
			}
			if fi.Mode()&fs.ModeSymlink != 0 {
				return true
			}
		}
		return false
	}
	return false
}

func extractMember(tr *tar.Reader, hdr *tar.Header, name string) error {
	mode := hdr.FileInfo().Mode()
	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(name, mode.Perm()|0700)
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
			return err
		}
		_ = os.Remove(name)
		return os.Symlink(hdr.Linkname, name)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
			return err
		}
		if fi, err := os.Lstat(name); err == nil && fi.Mode()&fs.ModeSymlink != 0 {
			if err := os.Remove(name); err != nil {
				return err
			}
		}
		f, err := os.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
		if err != nil {
			return err
		}
		_, err = io.Copy(f, tr)
		closeErr := f.Close()
		if err != nil {
			return err
		}
		return closeErr
	default:
		return nil
	}
}
