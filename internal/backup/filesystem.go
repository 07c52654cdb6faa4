package backup

import (
	"context"
	"io"
	"io/fs"
)

// FilesystemManager provides an interface for filesystem operations.
// It abstracts file access to enable testing without touching the real filesystem.
type FilesystemManager interface {
	// Stat returns fresh file info for a raw path.
	Stat(path string) (fs.FileInfo, error)

	// FindFiles recursively discovers regular files under root, skipping
	// ignored entries and subdirectories that cannot be read. It stops early
	// when ctx is cancelled.
	FindFiles(ctx context.Context, root string) ([]*Path, error)

	// Open opens a file for reading.
	Open(path *Path) (io.ReadCloser, error)
}
