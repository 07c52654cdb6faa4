package backup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"autobackup/internal/content"
	"autobackup/internal/model"
)

// ErrAlreadyCataloged marks a file skipped because its fingerprint is
// already in the catalog, deleted or not.
var ErrAlreadyCataloged = errors.New("already cataloged")

// ErrContentChanged marks a file whose bytes changed between the scan and
// the upload.
var ErrContentChanged = errors.New("content changed since scan")

// SyncOptions configures a SyncCoordinator.
type SyncOptions struct {
	Allowed          ExtensionSet
	MaxFileSizeBytes int64 // zero or negative disables the size check
	Tags             []string
	DeviceID         string // the agent's own device
	DeviceLabel      string
}

// SkippedFile is a discovered file that was not uploaded on purpose.
type SkippedFile struct {
	File   *DiscoveredFile
	Reason error
}

// FailedFile is a discovered file whose upload or recording failed.
type FailedFile struct {
	File *DiscoveredFile
	Err  error
}

// SyncReport is the outcome of one sync cycle. A report is produced for every
// cycle, even when every file fails.
type SyncReport struct {
	StartedAt      time.Time
	FinishedAt     time.Time
	Uploaded       []*model.FileRecord
	Skipped        []*SkippedFile
	Failed         []*FailedFile
	MissingFolders []string
	ScanErrors     []error
	Cancelled      bool
}

// Summary returns a one-line description of the report for logs.
func (r *SyncReport) Summary() string {
	s := fmt.Sprintf("uploaded=%d failed=%d skipped=%d", len(r.Uploaded), len(r.Failed), len(r.Skipped))
	if len(r.MissingFolders) > 0 {
		s += fmt.Sprintf(" missing_folders=%d", len(r.MissingFolders))
	}
	if r.Cancelled {
		s += " cancelled"
	}
	return s
}

// SyncCoordinator runs Scanner, RemoteStore and Catalog together: every newly
// discovered file is uploaded once and recorded.
//
// A fingerprint enters the membership set when it is discovered, so a file
// whose upload fails is not offered again by later scans. Recovery needs the
// fingerprint removed from the set by hand.
type SyncCoordinator struct {
	scanner *Scanner
	catalog Catalog
	remote  RemoteStore
	fsmgr   FilesystemManager
	opts    SyncOptions
	logger  Logger
	clock   Clock
}

// NewSyncCoordinator creates a SyncCoordinator with the provided dependencies.
func NewSyncCoordinator(scanner *Scanner, catalog Catalog, remote RemoteStore, fsmgr FilesystemManager, opts SyncOptions, logger Logger, clock Clock) *SyncCoordinator {
	if opts.DeviceLabel == "" {
		opts.DeviceLabel = model.DefaultDeviceLabel
	}
	return &SyncCoordinator{
		scanner: scanner,
		catalog: catalog,
		remote:  remote,
		fsmgr:   fsmgr,
		opts:    opts,
		logger:  logger,
		clock:   clock,
	}
}

// RunSyncCycle discovers new files under folders and uploads each of them.
// Folders and files are processed independently: one failure never stops the
// cycle. Cancelling ctx stops the cycle between files; files already recorded
// stay recorded.
func (c *SyncCoordinator) RunSyncCycle(ctx context.Context, folders []string) *SyncReport {
	report := &SyncReport{StartedAt: c.clock.Now()}
	c.logger.Info("sync cycle started", "folders", len(folders))

	scan, err := c.scanner.DiscoverNew(ctx, folders, c.opts.Allowed)
	report.MissingFolders = scan.MissingFolders
	report.ScanErrors = scan.Errors
	if err != nil {
		if ctx.Err() != nil {
			report.Cancelled = true
		} else {
			report.ScanErrors = append(report.ScanErrors, err)
		}
	}

	for _, df := range scan.Files {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}

		record, err := c.processFile(ctx, df, c.opts.DeviceLabel, c.opts.Tags)
		switch {
		case err == nil:
			report.Uploaded = append(report.Uploaded, record)
		case isSkip(err):
			c.logger.Info("file skipped", "path", df.Path, "reason", err)
			report.Skipped = append(report.Skipped, &SkippedFile{File: df, Reason: err})
		default:
			c.logger.Error("file failed", "path", df.Path, "error", err)
			report.Failed = append(report.Failed, &FailedFile{File: df, Err: err})
			c.logActivity(ctx, model.ActivityError, fmt.Sprintf("%s: %v", df.Name, err))
		}
	}

	report.FinishedAt = c.clock.Now()
	c.finishCycle(ctx, report)
	c.logger.Info("sync cycle finished", "summary", report.Summary())
	return report
}

// finishCycle records the cycle and the agent's device in the catalog.
// Bookkeeping runs even when ctx was cancelled.
func (c *SyncCoordinator) finishCycle(ctx context.Context, report *SyncReport) {
	ctx = context.WithoutCancel(ctx)

	if err := c.catalog.RecordSyncCycle(ctx, report.FinishedAt, report.Summary()); err != nil {
		c.logger.Error("recording sync cycle failed", "error", err)
	}

	if c.opts.DeviceID != "" {
		if _, err := c.catalog.TouchDevice(ctx, c.opts.DeviceID, c.opts.DeviceLabel, int64(len(report.Uploaded))); err != nil {
			c.logger.Error("updating device failed", "device", c.opts.DeviceID, "error", err)
		}
	}
}

// processFile validates, deduplicates, uploads and records one file.
// Skips are reported as *ValidationError or ErrAlreadyCataloged.
func (c *SyncCoordinator) processFile(ctx context.Context, df *DiscoveredFile, deviceLabel string, tags []string) (*model.FileRecord, error) {
	if err := c.validate(df); err != nil {
		return nil, err
	}

	existing, err := c.catalog.FindByHash(ctx, df.Fingerprint)
	if err != nil {
		return nil, &CatalogError{Op: "lookup", Err: err}
	}
	if existing != nil {
		return nil, ErrAlreadyCataloged
	}

	obj, err := c.upload(ctx, df, tags)
	if err != nil {
		return nil, err
	}

	record := &model.FileRecord{
		ContentHash:  df.Fingerprint,
		OriginalPath: df.OriginalPath(),
		DisplayName:  df.Name,
		SizeBytes:    df.SizeBytes,
		Kind:         df.Kind,
		RemoteID:     obj.RemoteID,
		RemoteURL:    obj.RemoteURL,
		UploadedAt:   c.clock.Now(),
		Tags:         tags,
		DeviceLabel:  deviceLabel,
	}

	// The object is already stored; record it even if ctx was cancelled meanwhile.
	if err := c.catalog.Upsert(context.WithoutCancel(ctx), record); err != nil {
		return nil, &CatalogError{Op: "upsert", Err: err}
	}

	c.logger.Info("file backed up", "path", df.Path, "fingerprint", df.Fingerprint, "remote_id", obj.RemoteID)
	return record, nil
}

// validate checks size and extension before anything is sent.
func (c *SyncCoordinator) validate(df *DiscoveredFile) error {
	if c.opts.MaxFileSizeBytes > 0 && df.SizeBytes > c.opts.MaxFileSizeBytes {
		return &ValidationError{
			Path:   df.Path,
			Reason: fmt.Sprintf("size %d exceeds maximum of %d bytes", df.SizeBytes, c.opts.MaxFileSizeBytes),
		}
	}
	if !c.opts.Allowed.Allows(df.Name) {
		return &ValidationError{
			Path:   df.Path,
			Reason: fmt.Sprintf("extension %q is not allowed", strings.ToLower(filepath.Ext(df.Name))),
		}
	}
	return nil
}

// upload streams the file to the remote store while re-fingerprinting it.
// If the bytes no longer match the scanned fingerprint the object is removed.
func (c *SyncCoordinator) upload(ctx context.Context, df *DiscoveredFile, tags []string) (*RemoteObject, error) {
	r, err := c.fsmgr.Open(NewPath(df.Path, false, nil))
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer r.Close()

	h := content.NewHasher(r)
	obj, err := c.remote.Upload(ctx, UploadRequest{
		Fingerprint: df.Fingerprint,
		Name:        df.Name,
		Content:     h,
		Size:        df.SizeBytes,
		Tags:        tags,
	})
	if err != nil {
		return nil, &RemoteStoreError{Op: "upload", Err: err}
	}

	if h.Sum() != df.Fingerprint || h.Size() != df.SizeBytes {
		if delErr := c.remote.Delete(context.WithoutCancel(ctx), obj.RemoteID); delErr != nil {
			c.logger.Warn("removing mismatched upload failed", "remote_id", obj.RemoteID, "error", delErr)
		}
		return nil, ErrContentChanged
	}

	return obj, nil
}

// logActivity appends to the activity log; failures are only logged.
func (c *SyncCoordinator) logActivity(ctx context.Context, kind model.ActivityKind, detail string) {
	if err := c.catalog.LogActivity(context.WithoutCancel(ctx), kind, detail); err != nil {
		c.logger.Warn("appending activity log failed", "kind", kind, "error", err)
	}
}

// isSkip reports whether err marks a deliberate skip rather than a failure.
func isSkip(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrAlreadyCataloged)
}
