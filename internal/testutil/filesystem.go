package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"autobackup/internal/backup"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
}

// MockFilesystemManager is an in-memory filesystem for testing. Paths are
// used as given; directories exist when added explicitly or when they
// contain a file. Safe for concurrent use.
type MockFilesystemManager struct {
	mu     sync.Mutex
	files  map[string]*MockFile
	onOpen func(path string)
	opens  map[string]int
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files: make(map[string]*MockFile),
		opens: make(map[string]int),
	}
}

// AddFile adds or replaces a file in the mock filesystem.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filepath.Clean(path)] = &MockFile{
		Content:     content,
		Permissions: 0644,
		ModTime:     time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}

// AddDirectory adds an empty directory to the mock filesystem.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filepath.Clean(path)] = &MockFile{
		Permissions: 0755,
		ModTime:     time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		IsDirectory: true,
	}
}

// Remove deletes a file or directory entry.
func (m *MockFilesystemManager) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, filepath.Clean(path))
}

// Move renames a file, keeping its content.
func (m *MockFilesystemManager) Move(from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from, to = filepath.Clean(from), filepath.Clean(to)
	if f, ok := m.files[from]; ok {
		delete(m.files, from)
		m.files[to] = f
	}
}

// OnOpen registers a hook called before every Open, outside the lock. Tests
// use it to change a file between the scan and the upload.
func (m *MockFilesystemManager) OnOpen(hook func(path string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOpen = hook
}

// Opens returns how many times path has been opened.
func (m *MockFilesystemManager) Opens(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens[filepath.Clean(path)]
}

func (m *MockFilesystemManager) Stat(path string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	if file, ok := m.files[path]; ok {
		return newMockFileInfo(path, file), nil
	}
	if m.hasChildrenLocked(path) {
		return newMockFileInfo(path, &MockFile{Permissions: 0755, IsDirectory: true}), nil
	}
	return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
}

// FindFiles returns every file under root, ordered by path.
func (m *MockFilesystemManager) FindFiles(ctx context.Context, root string) ([]*backup.Path, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	root = filepath.Clean(root)
	if f, ok := m.files[root]; ok && !f.IsDirectory {
		return nil, fmt.Errorf("path is not a directory: %s", root)
	}
	if _, ok := m.files[root]; !ok && !m.hasChildrenLocked(root) {
		return nil, &fs.PathError{Op: "walk", Path: root, Err: fs.ErrNotExist}
	}

	var names []string
	for p, f := range m.files {
		if !f.IsDirectory && isUnder(p, root) {
			names = append(names, p)
		}
	}
	sort.Strings(names)

	paths := make([]*backup.Path, 0, len(names))
	for _, p := range names {
		paths = append(paths, backup.NewPath(p, false, newMockFileInfo(p, m.files[p])))
	}
	return paths, nil
}

func (m *MockFilesystemManager) Open(path *backup.Path) (io.ReadCloser, error) {
	name := filepath.Clean(path.String())

	m.mu.Lock()
	hook := m.onOpen
	m.opens[name]++
	m.mu.Unlock()

	if hook != nil {
		hook(name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot open directory: %s", name)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(file.Content))), nil
}

func (m *MockFilesystemManager) hasChildrenLocked(dir string) bool {
	for p := range m.files {
		if isUnder(p, dir) {
			return true
		}
	}
	return false
}

func isUnder(path, dir string) bool {
	return strings.HasPrefix(path, strings.TrimSuffix(dir, string(filepath.Separator))+string(filepath.Separator))
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

func newMockFileInfo(path string, f *MockFile) *mockFileInfo {
	mode := f.Permissions
	if f.IsDirectory {
		mode |= fs.ModeDir
	}
	return &mockFileInfo{
		name:    filepath.Base(path),
		size:    int64(len(f.Content)),
		mode:    mode,
		modTime: f.ModTime,
		isDir:   f.IsDirectory,
	}
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ backup.FilesystemManager = (*MockFilesystemManager)(nil)
