package backup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"autobackup/internal/model"
)

// IngestRequest describes a single file pushed to the agent by a device,
// outside of a scan.
type IngestRequest struct {
	// Path is where the content currently lives on the agent.
	Path string
	// Name is the original file name as given by the device.
	Name string
	// OriginalPath is the path on the device, if known.
	OriginalPath string
	DeviceID     string
	DeviceLabel  string
}

// IngestResult is the outcome of IngestFile.
type IngestResult struct {
	Record *model.FileRecord
	// Duplicate is true when the content was already cataloged and nothing
	// was uploaded. Record is then the existing entry.
	Duplicate bool
}

// IngestFile validates, uploads and records one file. It does not consult or
// modify the scan membership set. Validation failures are returned as
// *ValidationError.
func (c *SyncCoordinator) IngestFile(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	name := req.Name
	if name == "" {
		name = filepath.Base(req.Path)
	}
	label, err := c.deviceLabel(ctx, req)
	if err != nil {
		return nil, err
	}

	fingerprint, size, err := fingerprintPath(c.fsmgr, NewPath(req.Path, false, nil))
	if err != nil {
		return nil, fmt.Errorf("fingerprinting upload: %w", err)
	}

	df := &DiscoveredFile{
		Path:        req.Path,
		Name:        name,
		SizeBytes:   size,
		Fingerprint: fingerprint,
		Kind:        model.KindForName(name),
		origin:      req.OriginalPath,
	}
	if df.origin == "" {
		df.origin = name
	}

	tags := c.opts.Tags
	if req.DeviceID != "" {
		tags = appendUnique(tags, "device:"+req.DeviceID)
	}

	record, err := c.processFile(ctx, df, label, tags)
	if errors.Is(err, ErrAlreadyCataloged) {
		existing, findErr := c.catalog.FindByHash(ctx, fingerprint)
		if findErr != nil {
			return nil, &CatalogError{Op: "lookup", Err: findErr}
		}
		return &IngestResult{Record: existing, Duplicate: true}, nil
	}
	if err != nil {
		if !isSkip(err) {
			c.logActivity(ctx, model.ActivityError, fmt.Sprintf("%s: %v", name, err))
		}
		return nil, err
	}

	if req.DeviceID != "" {
		if _, err := c.catalog.TouchDevice(context.WithoutCancel(ctx), req.DeviceID, label, 1); err != nil {
			c.logger.Warn("updating device failed", "device", req.DeviceID, "error", err)
		}
	}

	return &IngestResult{Record: record}, nil
}

// DeleteFile removes the remote object of an active record and then marks the
// record deleted. When the remote delete fails the catalog is left as it was.
// Returns ErrNotFound for unknown or already deleted hashes.
func (c *SyncCoordinator) DeleteFile(ctx context.Context, hash string) (*model.FileRecord, error) {
	record, err := c.catalog.FindByHash(ctx, hash)
	if err != nil {
		return nil, &CatalogError{Op: "lookup", Err: err}
	}
	if record == nil || record.IsDeleted {
		return nil, ErrNotFound
	}

	if err := c.remote.Delete(ctx, record.RemoteID); err != nil {
		return nil, &RemoteStoreError{Op: "delete", Err: err}
	}

	if err := c.catalog.SoftDelete(context.WithoutCancel(ctx), hash); err != nil {
		return nil, &CatalogError{Op: "soft delete", Err: err}
	}

	c.logger.Info("file deleted", "fingerprint", hash, "remote_id", record.RemoteID)
	record.IsDeleted = true
	return record, nil
}

// deviceLabel returns the label given in req, else the label the device
// registered with.
func (c *SyncCoordinator) deviceLabel(ctx context.Context, req IngestRequest) (string, error) {
	if req.DeviceLabel != "" {
		return req.DeviceLabel, nil
	}
	if req.DeviceID != "" {
		device, err := c.catalog.FindDevice(ctx, req.DeviceID)
		if err != nil {
			return "", &CatalogError{Op: "find device", Err: err}
		}
		if device != nil {
			return device.DeviceLabel, nil
		}
	}
	return model.DefaultDeviceLabel, nil
}

func appendUnique(tags []string, tag string) []string {
	if slices.Contains(tags, tag) {
		return tags
	}
	return append(slices.Clone(tags), tag)
}
