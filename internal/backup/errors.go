package backup

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup by hash finds nothing.
var ErrNotFound = errors.New("not found")

// ValidationError reports a file rejected before upload (size or extension).
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// RemoteStoreError wraps a failure of the remote store.
type RemoteStoreError struct {
	Op  string // "upload", "delete" or "list"
	Err error
}

func (e *RemoteStoreError) Error() string {
	return fmt.Sprintf("remote store %s: %v", e.Op, e.Err)
}

func (e *RemoteStoreError) Unwrap() error { return e.Err }

// CatalogError wraps a persistence failure of the catalog.
type CatalogError struct {
	Op  string
	Err error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
}

func (e *CatalogError) Unwrap() error { return e.Err }
