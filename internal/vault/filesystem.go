package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"autobackup/internal/backup"
)

// FileSystemVault is a filesystem-based implementation of backup.RemoteStore.
// It stores objects as files in a directory structure:
//
//	<root>/
//	  content/
//	    <fingerprint><ext>
type FileSystemVault struct {
	name       string
	root       string
	contentDir string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving vault root: %w", err)
	}
	contentDir := filepath.Join(absRoot, "content")

	if err := os.MkdirAll(contentDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}

	return &FileSystemVault{
		name:       name,
		root:       absRoot,
		contentDir: contentDir,
	}, nil
}

// Upload stores the content under its fingerprint. If an object with the
// same id already exists the content is read and verified but not rewritten.
func (v *FileSystemVault) Upload(ctx context.Context, req backup.UploadRequest) (*backup.RemoteObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := objectName(req.Fingerprint, req.Name)
	destPath := filepath.Join(v.contentDir, id)

	if _, err := os.Stat(destPath); err == nil {
		written, err := io.Copy(io.Discard, req.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to read content: %w", err)
		}
		if written != req.Size {
			return nil, fmt.Errorf("size mismatch: expected %d bytes, got %d", req.Size, written)
		}
	} else if err := v.writeFile(destPath, req.Content, req.Size); err != nil {
		return nil, err
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return nil, fmt.Errorf("stat stored object: %w", err)
	}
	return v.remoteObject(id, info), nil
}

// Delete removes an object. Deleting an unknown id is not an error.
func (v *FileSystemVault) Delete(ctx context.Context, remoteID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := v.objectPath(remoteID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing object: %w", err)
	}
	return nil
}

// List returns stored objects ordered by id.
func (v *FileSystemVault) List(ctx context.Context, prefix string, maxResults int) ([]*backup.RemoteObject, error) {
	entries, err := os.ReadDir(v.contentDir)
	if err != nil {
		return nil, fmt.Errorf("reading content directory: %w", err)
	}

	var out []*backup.RemoteObject
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".tmp-") || !strings.HasPrefix(name, prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed while listing.
			continue
		}
		out = append(out, v.remoteObject(name, info))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RemoteID < out[j].RemoteID })
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

// ValidateSetup verifies that the vault directories are accessible.
func (v *FileSystemVault) ValidateSetup() error {
	for _, dir := range []string{v.root, v.contentDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s", dir)
		}
	}
	return nil
}

// objectPath maps a remote id to its file, rejecting ids that would escape
// the content directory.
func (v *FileSystemVault) objectPath(remoteID string) (string, error) {
	if remoteID == "" || remoteID != filepath.Base(remoteID) || remoteID == "." || remoteID == ".." {
		return "", fmt.Errorf("invalid remote id: %q", remoteID)
	}
	return filepath.Join(v.contentDir, remoteID), nil
}

func (v *FileSystemVault) remoteObject(id string, info fs.FileInfo) *backup.RemoteObject {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(v.contentDir, id))}
	return &backup.RemoteObject{
		RemoteID:  id,
		RemoteURL: u.String(),
		SizeBytes: info.Size(),
		CreatedAt: info.ModTime().UTC(),
	}
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (v *FileSystemVault) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemVault implements backup.RemoteStore interface
var _ backup.RemoteStore = (*FileSystemVault)(nil)
