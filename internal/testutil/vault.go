package testutil

import (
	"context"
	"sync"

	"autobackup/internal/backup"
	"autobackup/internal/vault"
)

// NewTestRemoteStore creates a new in-memory remote store for testing.
func NewTestRemoteStore() *vault.MemoryVault {
	return vault.NewMemoryVault("test-remote")
}

// RecordingRemoteStore wraps a RemoteStore, counting calls and optionally
// failing them.
type RecordingRemoteStore struct {
	backup.RemoteStore

	mu        sync.Mutex
	uploads   []string
	deletes   []string
	UploadErr error
	DeleteErr error
}

// NewRecordingRemoteStore wraps inner.
func NewRecordingRemoteStore(inner backup.RemoteStore) *RecordingRemoteStore {
	return &RecordingRemoteStore{RemoteStore: inner}
}

func (r *RecordingRemoteStore) Upload(ctx context.Context, req backup.UploadRequest) (*backup.RemoteObject, error) {
	r.mu.Lock()
	r.uploads = append(r.uploads, req.Fingerprint)
	err := r.UploadErr
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return r.RemoteStore.Upload(ctx, req)
}

func (r *RecordingRemoteStore) Delete(ctx context.Context, remoteID string) error {
	r.mu.Lock()
	r.deletes = append(r.deletes, remoteID)
	err := r.DeleteErr
	r.mu.Unlock()

	if err != nil {
		return err
	}
	return r.RemoteStore.Delete(ctx, remoteID)
}

// Uploads returns the fingerprints of every Upload call, failed ones included.
func (r *RecordingRemoteStore) Uploads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.uploads...)
}

// Deletes returns the ids of every Delete call.
func (r *RecordingRemoteStore) Deletes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.deletes...)
}
