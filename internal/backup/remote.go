package backup

import (
	"context"
	"io"
	"time"
)

// UploadRequest describes one object to upload. Content is streamed; Size is
// the number of bytes that will be read from it.
type UploadRequest struct {
	Fingerprint string
	Name        string // original file name, used for the object extension
	Content     io.Reader
	Size        int64
	Tags        []string
}

// RemoteObject is an object held by a remote store.
type RemoteObject struct {
	RemoteID  string
	RemoteURL string
	SizeBytes int64
	CreatedAt time.Time
}

// RemoteStore is the object storage the backups go to.
// Upload is not assumed to deduplicate: callers must not submit a
// fingerprint that is already stored.
type RemoteStore interface {
	// Upload stores the content and returns its remote handle.
	Upload(ctx context.Context, req UploadRequest) (*RemoteObject, error)

	// Delete removes an object by its remote id.
	Delete(ctx context.Context, remoteID string) error

	// List returns up to maxResults objects of this store, ordered by id.
	// prefix filters on the object name, the id without any key prefix the
	// store itself adds. A non-positive maxResults means no limit.
	List(ctx context.Context, prefix string, maxResults int) ([]*RemoteObject, error)
}
