// Package membership stores the fingerprints the scanner has already offered
// for upload.
package membership

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"autobackup/internal/backup"
)

// MemorySet is a MembershipSet that lives only in memory.
// This implementation is safe for concurrent use.
type MemorySet struct {
	mu  sync.RWMutex
	set map[string]struct{}
}

// NewMemorySet creates a set holding the given fingerprints.
func NewMemorySet(fingerprints ...string) *MemorySet {
	s := &MemorySet{set: make(map[string]struct{}, len(fingerprints))}
	for _, fp := range fingerprints {
		s.set[fp] = struct{}{}
	}
	return s
}

func (s *MemorySet) Contains(fingerprint string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.set[fingerprint]
	return ok
}

func (s *MemorySet) Add(fingerprint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[fingerprint]; ok {
		return false
	}
	s.set[fingerprint] = struct{}{}
	return true
}

func (s *MemorySet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.set)
}

// Flush is a no-op.
func (s *MemorySet) Flush() error { return nil }

// Fingerprints returns the members in sorted order.
func (s *MemorySet) Fingerprints() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.set))
	for fp := range s.set {
		out = append(out, fp)
	}
	sort.Strings(out)
	return out
}

// FileSet is a MembershipSet persisted as a JSON array of fingerprints.
// Flush rewrites the file atomically, so a crash leaves either the old or
// the new contents.
type FileSet struct {
	*MemorySet
	path string

	flushMu sync.Mutex
	dirty   bool
	dirtyMu sync.Mutex
}

// OpenFileSet loads the set stored at path. A missing file yields an empty set.
func OpenFileSet(path string) (*FileSet, error) {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading membership file: %w", err)
	}

	var fingerprints []string
	if len(data) > 0 {
		if err := json.Unmarshal(data, &fingerprints); err != nil {
			return nil, fmt.Errorf("decoding membership file %s: %w", path, err)
		}
	}

	return &FileSet{
		MemorySet: NewMemorySet(fingerprints...),
		path:      path,
	}, nil
}

// Add records the fingerprint in memory; call Flush to persist it.
func (s *FileSet) Add(fingerprint string) bool {
	added := s.MemorySet.Add(fingerprint)
	if added {
		s.dirtyMu.Lock()
		s.dirty = true
		s.dirtyMu.Unlock()
	}
	return added
}

// Flush writes the set to disk if it changed since the last flush.
func (s *FileSet) Flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.dirtyMu.Lock()
	dirty := s.dirty
	s.dirty = false
	s.dirtyMu.Unlock()
	if !dirty {
		return nil
	}

	data, err := json.MarshalIndent(s.Fingerprints(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding membership set: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		s.dirtyMu.Lock()
		s.dirty = true
		s.dirtyMu.Unlock()
		return err
	}
	return nil
}

// Path returns the file backing the set.
func (s *FileSet) Path() string {
	return s.path
}

// writeFileAtomic writes data to path using a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating membership directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-membership-*")
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

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time checks
var (
	_ backup.MembershipSet = (*MemorySet)(nil)
	_ backup.MembershipSet = (*FileSet)(nil)
)
