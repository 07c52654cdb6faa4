package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"autobackup/internal/backup"
)

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
// It performs actual filesystem operations using the os package.
type OSFilesystemManager struct {
	patterns []string
	logger   backup.Logger
}

// NewOSFilesystemManager creates a filesystem manager that skips the default
// ignore patterns plus the given extra patterns. A monitored folder may add
// its own patterns in an .abignore file at its root.
func NewOSFilesystemManager(extraPatterns []string, logger backup.Logger) *OSFilesystemManager {
	if logger == nil {
		logger = backup.NewNopLogger()
	}
	patterns := make([]string, 0, len(defaultIgnorePatterns)+len(extraPatterns))
	patterns = append(patterns, defaultIgnorePatterns...)
	patterns = append(patterns, extraPatterns...)
	return &OSFilesystemManager{patterns: patterns, logger: logger}
}

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(path *backup.Path) (io.ReadCloser, error) {
	if path.IsDir() {
		return nil, fmt.Errorf("cannot open directory as file: %s", path.String())
	}
	return os.Open(path.String())
}

// Stat returns fresh file info for a path.
func (m *OSFilesystemManager) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// FindFiles discovers regular files under root. Symlinks, devices and
// ignored entries are skipped. A subdirectory that cannot be read is logged
// and skipped; only a failure on root itself is returned.
func (m *OSFilesystemManager) FindFiles(ctx context.Context, root string) ([]*backup.Path, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", absRoot)
	}

	matcher, err := m.matcherFor(absRoot)
	if err != nil {
		return nil, err
	}

	var paths []*backup.Path
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == absRoot {
				return err
			}
			m.logger.Warn("skipping unreadable entry", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if p == absRoot {
			return nil
		}

		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", p, err)
		}
		if matcher.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Removed while walking.
				return nil
			}
			return fmt.Errorf("stat %s: %w", p, err)
		}
		paths = append(paths, backup.NewPath(p, false, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return paths, nil
}

func (m *OSFilesystemManager) matcherFor(root string) (*IgnoreMatcher, error) {
	local, err := ReadIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	return NewIgnoreMatcher(m.patterns, local), nil
}

// Compile-time check that OSFilesystemManager implements backup.FilesystemManager interface
var _ backup.FilesystemManager = (*OSFilesystemManager)(nil)
