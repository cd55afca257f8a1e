// Package hasher computes the content hash used to qualify fast lookup keys.
package hasher

import (
	"context"
	_ "crypto/sha256" // registers digest.SHA256
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"
	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"
)

// Hasher hashes the files picked by a selector. An empty result means the
// selector matched nothing.
type Hasher interface {
	Hash(ctx context.Context, selector string) (string, error)
}

// Files hashes files under a root directory. The selector is a newline
// separated list of gitignore-style patterns ("**" and "!" negation are
// supported) matched against slash-separated paths relative to the root.
type Files struct {
	root    string
	workers int
	logger  *slog.Logger
}

// NewFiles returns a Files hasher rooted at root.
func NewFiles(root string, logger *slog.Logger) *Files {
	return &Files{
		root:    root,
		workers: runtime.GOMAXPROCS(0),
		logger:  logger,
	}
}

// Hash returns the hex SHA-256 over the per-file SHA-256 digests of every
// matching file, in sorted path order, or "" when no file matches.
func (h *Files) Hash(ctx context.Context, selector string) (string, error) {
	patterns := patternLines(selector)
	if len(patterns) == 0 {
		return "", nil
	}

	files, err := h.match(ctx, ignore.CompileIgnoreLines(patterns...))
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		h.logger.Debug("hash selector matched no files", "selector", patterns)
		return "", nil
	}

	digests := make([]digest.Digest, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)
	for i, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := os.Open(filepath.Join(h.root, filepath.FromSlash(rel)))
			if err != nil {
				return err
			}
			defer f.Close()
			d, err := digest.SHA256.FromReader(f)
			if err != nil {
				return fmt.Errorf("failed to hash %s: %w", rel, err)
			}
			digests[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	combined := digest.SHA256.Digester()
	for _, d := range digests {
		combined.Hash().Write([]byte(d.Encoded()))
	}
	h.logger.Debug("hashed files", "count", len(files))
	return combined.Digest().Encoded(), nil
}

// match walks the root and returns the sorted relative paths of matching
// regular files. The .git directory is never hashed.
func (h *Files) match(ctx context.Context, matcher *ignore.GitIgnore) ([]string, error) {
	var files []string
	err := filepath.WalkDir(h.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(h.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if matcher.MatchesPath(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", h.root, err)
	}
	sort.Strings(files)
	return files, nil
}

func patternLines(selector string) []string {
	var out []string
	for _, line := range strings.Split(selector, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
