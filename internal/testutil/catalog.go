package testutil

import (
	"context"

	"autobackup/internal/backup"
	"autobackup/internal/model"
)

// FaultyCatalog wraps a Catalog and fails Upsert with UpsertErr when set,
// simulating a crash between the upload and the catalog write.
type FaultyCatalog struct {
	backup.Catalog
	UpsertErr error
}

func (c *FaultyCatalog) Upsert(ctx context.Context, record *model.FileRecord) error {
	if c.UpsertErr != nil {
		return c.UpsertErr
	}
	return c.Catalog.Upsert(ctx, record)
}
