package backup_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"autobackup/internal/backup"
	"autobackup/internal/testutil"
)

func TestSyncCoordinator_IngestFile(t *testing.T) {
	t.Run("uploads and records a pushed file", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, defaultSyncOptions())
		h.fsmgr.AddFile("/var/tmp/upload-1", []byte("pushed photo"))

		result, err := h.coord.IngestFile(ctx, backup.IngestRequest{
			Path:        "/var/tmp/upload-1",
			Name:        "IMG_9.jpg",
			DeviceID:    "phone-2",
			DeviceLabel: "Galaxy",
		})
		if err != nil {
			t.Fatalf("IngestFile() error = %v", err)
		}
		if result.Duplicate {
			t.Error("Duplicate = true for new content")
		}

		rec := result.Record
		if rec.ContentHash != testutil.SHA256Hex([]byte("pushed photo")) {
			t.Errorf("ContentHash = %q", rec.ContentHash)
		}
		if rec.DisplayName != "IMG_9.jpg" || rec.OriginalPath != "IMG_9.jpg" {
			t.Errorf("names = %q, %q", rec.DisplayName, rec.OriginalPath)
		}
		if rec.DeviceLabel != "Galaxy" {
			t.Errorf("DeviceLabel = %q", rec.DeviceLabel)
		}
		if !slices.Equal(rec.Tags, []string{"auto_backup", "device:phone-2"}) {
			t.Errorf("Tags = %v", rec.Tags)
		}

		devices, err := h.catalog.ListDevices(ctx)
		if err != nil {
			t.Fatalf("ListDevices() error = %v", err)
		}
		if len(devices) != 1 || devices[0].DeviceID != "phone-2" || devices[0].FileCount != 1 {
			t.Errorf("devices = %+v", devices)
		}
		if h.membership.Len() != 0 {
			t.Error("IngestFile touched the membership set")
		}
	})

	t.Run("returns the existing record for known content", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, defaultSyncOptions())
		h.fsmgr.AddFile("/var/tmp/upload-1", []byte("same"))
		h.fsmgr.AddFile("/var/tmp/upload-2", []byte("same"))

		first, err := h.coord.IngestFile(ctx, backup.IngestRequest{Path: "/var/tmp/upload-1", Name: "a.jpg"})
		if err != nil {
			t.Fatalf("first IngestFile() error = %v", err)
		}
		second, err := h.coord.IngestFile(ctx, backup.IngestRequest{Path: "/var/tmp/upload-2", Name: "b.jpg"})
		if err != nil {
			t.Fatalf("second IngestFile() error = %v", err)
		}
		if !second.Duplicate {
			t.Error("Duplicate = false for known content")
		}
		if second.Record.DisplayName != first.Record.DisplayName {
			t.Errorf("duplicate record = %q, want the original %q", second.Record.DisplayName, first.Record.DisplayName)
		}
		if n := len(h.remote.Uploads()); n != 1 {
			t.Errorf("Upload called %d times, want 1", n)
		}
	})

	t.Run("rejects a disallowed extension", func(t *testing.T) {
		h := newHarness(t, defaultSyncOptions())
		h.fsmgr.AddFile("/var/tmp/upload-1", []byte("#!/bin/sh"))

		_, err := h.coord.IngestFile(context.Background(), backup.IngestRequest{Path: "/var/tmp/upload-1", Name: "run.sh"})
		var ve *backup.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("IngestFile() error = %v, want *ValidationError", err)
		}
		if n := len(h.remote.Uploads()); n != 0 {
			t.Errorf("Upload called %d times, want 0", n)
		}
	})

	t.Run("reports remote failures", func(t *testing.T) {
		h := newHarness(t, defaultSyncOptions())
		h.fsmgr.AddFile("/var/tmp/upload-1", []byte("x"))
		h.remote.UploadErr = errors.New("quota exceeded")

		_, err := h.coord.IngestFile(context.Background(), backup.IngestRequest{Path: "/var/tmp/upload-1", Name: "a.pdf"})
		var re *backup.RemoteStoreError
		if !errors.As(err, &re) {
			t.Errorf("IngestFile() error = %v, want *RemoteStoreError", err)
		}
	})
}

func TestSyncCoordinator_DeleteFile(t *testing.T) {
	setup := func(t *testing.T) (*harness, string) {
		t.Helper()
		h := newHarness(t, defaultSyncOptions())
		h.fsmgr.AddFile("/sdcard/Pictures/a.jpg", []byte("to delete"))
		report := h.coord.RunSyncCycle(context.Background(), []string{"/sdcard/Pictures"})
		if len(report.Uploaded) != 1 {
			t.Fatalf("setup cycle = %s", report.Summary())
		}
		return h, report.Uploaded[0].ContentHash
	}

	t.Run("removes the object and hides the record", func(t *testing.T) {
		ctx := context.Background()
		h, hash := setup(t)

		rec, err := h.coord.DeleteFile(ctx, hash)
		if err != nil {
			t.Fatalf("DeleteFile() error = %v", err)
		}
		if !rec.IsDeleted {
			t.Error("returned record not marked deleted")
		}
		if h.store.Len() != 0 {
			t.Errorf("remote store holds %d objects", h.store.Len())
		}
		active, err := h.catalog.ListActive(ctx, 0, 0)
		if err != nil {
			t.Fatalf("ListActive() error = %v", err)
		}
		if len(active) != 0 {
			t.Errorf("ListActive() = %d records", len(active))
		}
		found, err := h.catalog.FindByHash(ctx, hash)
		if err != nil || found == nil || !found.IsDeleted {
			t.Errorf("FindByHash() = %+v, %v", found, err)
		}
	})

	t.Run("unknown and deleted hashes are not found", func(t *testing.T) {
		ctx := context.Background()
		h, hash := setup(t)

		if _, err := h.coord.DeleteFile(ctx, "ffff"); !errors.Is(err, backup.ErrNotFound) {
			t.Errorf("DeleteFile(unknown) error = %v, want ErrNotFound", err)
		}
		if _, err := h.coord.DeleteFile(ctx, hash); err != nil {
			t.Fatalf("DeleteFile() error = %v", err)
		}
		if _, err := h.coord.DeleteFile(ctx, hash); !errors.Is(err, backup.ErrNotFound) {
			t.Errorf("second DeleteFile() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("remote failure leaves the catalog untouched", func(t *testing.T) {
		ctx := context.Background()
		h, hash := setup(t)
		h.remote.DeleteErr = errors.New("forbidden")

		_, err := h.coord.DeleteFile(ctx, hash)
		var re *backup.RemoteStoreError
		if !errors.As(err, &re) || re.Op != "delete" {
			t.Fatalf("DeleteFile() error = %v, want delete *RemoteStoreError", err)
		}
		rec, err := h.catalog.FindByHash(ctx, hash)
		if err != nil || rec == nil || rec.IsDeleted {
			t.Errorf("FindByHash() = %+v, %v; want active record", rec, err)
		}
	})
}
