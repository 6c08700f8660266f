package mirror

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/listenupapp/listenup-mirrors/internal/classifier"
)

// Walker collects the files of a tree that belong in a mirror.
type Walker struct {
	logger *slog.Logger
}

// NewWalker creates a new walker.
func NewWalker(logger *slog.Logger) *Walker {
	return &Walker{logger: logger}
}

// Tree maps a relative path to its absolute path under the walked root.
type Tree map[string]string

// Collect walks root and returns every regular file the rules accept, keyed by
// path relative to root. Excluded directories are skipped without descending.
// Errors below the root are logged and skipped; a missing root is an error.
// The context is checked before every entry.
func (w *Walker) Collect(ctx context.Context, root string, rules *classifier.Compiled) (Tree, error) {
	if rules == nil {
		rules = (*classifier.Rules)(nil).Compile()
	}
	files := make(Tree)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if path == root {
				return err
			}
			w.logger.Warn("walk error", "path", path, "error", err)
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			w.logger.Warn("failed to compute relative path", "path", path, "error", err)
			return nil
		}
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if rules.ShouldExcludeDirectory(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks, sockets and devices are never mirrored.
		if !d.Type().IsRegular() {
			return nil
		}
		if rules.ShouldHardlink(rel) {
			files[rel] = path
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Merge combines trees from several roots. When two roots contain the same
// relative path the earlier root wins.
func Merge(trees ...Tree) Tree {
	out := make(Tree)
	for _, t := range trees {
		for rel, abs := range t {
			if _, ok := out[rel]; !ok {
				out[rel] = abs
			}
		}
	}
	return out
}
