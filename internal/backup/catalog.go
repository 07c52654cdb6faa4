package backup

import (
	"context"
	"time"

	"autobackup/internal/model"
)

// Catalog is the persisted record store for uploaded files, aggregate
// statistics, devices and the activity log. Every mutating method is atomic
// with its statistics update and log entry.
type Catalog interface {
	// Upsert inserts the record or replaces the existing row with the same
	// content hash. Only a first insert moves the lifetime counters; every
	// upsert refreshes the last backup time and appends an upload entry.
	Upsert(ctx context.Context, record *model.FileRecord) error

	// ListActive returns non-deleted records, newest upload first.
	// A non-positive limit means no limit.
	ListActive(ctx context.Context, limit, offset int) ([]*model.FileRecord, error)

	// Search returns non-deleted records whose display name or any tag
	// contains keyword, ignoring case.
	Search(ctx context.Context, keyword string) ([]*model.FileRecord, error)

	// FindByHash returns the record with the given hash, deleted or not.
	// Returns nil with no error when there is no such record.
	FindByHash(ctx context.Context, hash string) (*model.FileRecord, error)

	// SoftDelete hides the record from listings and search.
	// Returns ErrNotFound when no record has the hash.
	SoftDelete(ctx context.Context, hash string) error

	// Stats returns aggregate statistics with the active totals recomputed
	// from the file rows.
	Stats(ctx context.Context) (*model.AggregateStats, error)

	// KindBreakdown returns active file counts and sizes grouped by kind.
	KindBreakdown(ctx context.Context) ([]*model.KindStats, error)

	// LogActivity appends an entry to the activity log.
	LogActivity(ctx context.Context, kind model.ActivityKind, detail string) error

	// RecentActivity returns the newest activity entries first.
	RecentActivity(ctx context.Context, limit int) ([]*model.ActivityLogEntry, error)

	// RecordSyncCycle stores the time a sync cycle finished and logs its summary.
	RecordSyncCycle(ctx context.Context, finishedAt time.Time, detail string) error

	// TouchDevice registers the device if needed, refreshes its last seen
	// time and adds newFiles to its file count.
	TouchDevice(ctx context.Context, deviceID, label string, newFiles int64) (*model.DeviceRecord, error)

	// FindDevice returns the device with the given id, or nil if unknown.
	FindDevice(ctx context.Context, deviceID string) (*model.DeviceRecord, error)

	// ListDevices returns all registered devices.
	ListDevices(ctx context.Context) ([]*model.DeviceRecord, error)

	// Close closes the underlying store.
	Close() error
}
