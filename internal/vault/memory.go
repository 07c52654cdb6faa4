package vault

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"autobackup/internal/backup"
)

type memoryObject struct {
	data      []byte
	createdAt time.Time
}

// MemoryVault is an in-memory implementation of backup.RemoteStore.
// It keeps all objects in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryVault struct {
	name    string
	objects map[string]*memoryObject // remote id -> object
	mu      sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:    name,
		objects: make(map[string]*memoryObject),
	}
}

// Upload stores the content under its fingerprint.
func (m *MemoryVault) Upload(ctx context.Context, req backup.UploadRequest) (*backup.RemoteObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(req.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != req.Size {
		return nil, fmt.Errorf("size mismatch: expected %d bytes, got %d", req.Size, len(data))
	}

	id := objectName(req.Fingerprint, req.Name)
	obj := &memoryObject{data: data, createdAt: time.Now().UTC()}

	m.mu.Lock()
	m.objects[id] = obj
	m.mu.Unlock()

	return m.remoteObject(id, obj), nil
}

// Delete removes an object. Deleting an unknown id is not an error.
func (m *MemoryVault) Delete(ctx context.Context, remoteID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, remoteID)
	return nil
}

// List returns stored objects ordered by id.
func (m *MemoryVault) List(ctx context.Context, prefix string, maxResults int) ([]*backup.RemoteObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.objects))
	for id := range m.objects {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if maxResults > 0 && len(ids) > maxResults {
		ids = ids[:maxResults]
	}

	out := make([]*backup.RemoteObject, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.remoteObject(id, m.objects[id]))
	}
	return out, nil
}

// Content returns a copy of a stored object's bytes.
func (m *MemoryVault) Content(remoteID string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[remoteID]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// Len returns the number of stored objects.
func (m *MemoryVault) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

func (m *MemoryVault) remoteObject(id string, obj *memoryObject) *backup.RemoteObject {
	return &backup.RemoteObject{
		RemoteID:  id,
		RemoteURL: "memory://" + m.name + "/" + id,
		SizeBytes: int64(len(obj.data)),
		CreatedAt: obj.createdAt,
	}
}

// Compile-time check that MemoryVault implements backup.RemoteStore interface
var _ backup.RemoteStore = (*MemoryVault)(nil)
