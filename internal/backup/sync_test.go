package backup_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"autobackup/internal/backup"
	"autobackup/internal/model"
	"autobackup/internal/testutil"
)

func TestSyncCoordinator_RunSyncCycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultSyncOptions())
	h.fsmgr.AddFile("/sdcard/DCIM/Camera/IMG_1.jpg", []byte("photo one"))
	h.fsmgr.AddFile("/sdcard/Documents/report.pdf", []byte("quarterly report"))

	report := h.coord.RunSyncCycle(ctx, []string{"/sdcard/DCIM/Camera", "/sdcard/Documents"})

	if len(report.Uploaded) != 2 || len(report.Failed) != 0 || len(report.Skipped) != 0 {
		t.Fatalf("report = %s, want 2 uploaded", report.Summary())
	}
	if report.Cancelled {
		t.Error("report marked cancelled")
	}
	if report.StartedAt.IsZero() || report.FinishedAt.Before(report.StartedAt) {
		t.Errorf("StartedAt=%v FinishedAt=%v", report.StartedAt, report.FinishedAt)
	}

	hash := testutil.SHA256Hex([]byte("photo one"))
	rec, err := h.catalog.FindByHash(ctx, hash)
	if err != nil {
		t.Fatalf("FindByHash() error = %v", err)
	}
	if rec == nil {
		t.Fatal("uploaded file missing from catalog")
	}
	if rec.OriginalPath != "/sdcard/DCIM/Camera/IMG_1.jpg" || rec.DisplayName != "IMG_1.jpg" {
		t.Errorf("record paths = %q, %q", rec.OriginalPath, rec.DisplayName)
	}
	if rec.Kind != model.KindImage || rec.DeviceLabel != "Pixel" {
		t.Errorf("record kind/label = %q, %q", rec.Kind, rec.DeviceLabel)
	}
	if len(rec.Tags) != 1 || rec.Tags[0] != "auto_backup" {
		t.Errorf("record tags = %v", rec.Tags)
	}
	if rec.RemoteID != hash+".jpg" {
		t.Errorf("RemoteID = %q", rec.RemoteID)
	}
	if data, ok := h.store.Content(rec.RemoteID); !ok || !bytes.Equal(data, []byte("photo one")) {
		t.Errorf("remote content = %q, %v", data, ok)
	}

	stats, err := h.catalog.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalFiles != 2 {
		t.Errorf("TotalFiles = %d, want 2", stats.TotalFiles)
	}
	if stats.LastSyncTime == nil || !stats.LastSyncTime.Equal(report.FinishedAt) {
		t.Errorf("LastSyncTime = %v, want %v", stats.LastSyncTime, report.FinishedAt)
	}

	devices, err := h.catalog.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 1 || devices[0].DeviceID != "agent-1" || devices[0].FileCount != 2 {
		t.Errorf("devices = %+v", devices)
	}
}

func TestSyncCoordinator_OversizedFileIsSkipped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultSyncOptions()) // 1 MiB limit
	big := bytes.Repeat([]byte("x"), 2*1024*1024)
	h.fsmgr.AddFile("/sdcard/Movies/big.mp4", big)

	report := h.coord.RunSyncCycle(ctx, []string{"/sdcard/Movies"})

	if len(report.Skipped) != 1 || len(report.Uploaded) != 0 || len(report.Failed) != 0 {
		t.Fatalf("report = %s, want 1 skipped", report.Summary())
	}
	var ve *backup.ValidationError
	if !errors.As(report.Skipped[0].Reason, &ve) {
		t.Errorf("skip reason = %v, want *ValidationError", report.Skipped[0].Reason)
	}
	if n := len(h.remote.Uploads()); n != 0 {
		t.Errorf("remote Upload called %d times, want 0", n)
	}
	stats, err := h.catalog.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalFiles != 0 {
		t.Errorf("TotalFiles = %d, want 0", stats.TotalFiles)
	}
}

func TestSyncCoordinator_MissingFolder(t *testing.T) {
	h := newHarness(t, defaultSyncOptions())
	h.fsmgr.AddFile("/sdcard/Pictures/a.jpg", []byte("a"))

	report := h.coord.RunSyncCycle(context.Background(), []string{"/sdcard/DoesNotExist", "/sdcard/Pictures"})

	if len(report.Uploaded) != 1 || report.Uploaded[0].OriginalPath != "/sdcard/Pictures/a.jpg" {
		t.Errorf("report = %s", report.Summary())
	}
	if len(report.MissingFolders) != 1 || report.MissingFolders[0] != "/sdcard/DoesNotExist" {
		t.Errorf("MissingFolders = %v", report.MissingFolders)
	}
	if !strings.Contains(report.Summary(), "missing_folders=1") {
		t.Errorf("Summary() = %q", report.Summary())
	}
}

func TestSyncCoordinator_CatalogFailureAfterUpload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultSyncOptions())
	h.fsmgr.AddFile("/sdcard/Pictures/a.jpg", []byte("orphan"))
	hash := testutil.SHA256Hex([]byte("orphan"))
	h.faulty.UpsertErr = errors.New("disk I/O error")
	folders := []string{"/sdcard/Pictures"}

	report := h.coord.RunSyncCycle(ctx, folders)

	if len(report.Failed) != 1 {
		t.Fatalf("report = %s, want 1 failed", report.Summary())
	}
	var ce *backup.CatalogError
	if !errors.As(report.Failed[0].Err, &ce) {
		t.Errorf("failure = %v, want *CatalogError", report.Failed[0].Err)
	}
	if !h.membership.Contains(hash) {
		t.Error("membership set does not contain the fingerprint")
	}
	rec, err := h.catalog.FindByHash(ctx, hash)
	if err != nil {
		t.Fatalf("FindByHash() error = %v", err)
	}
	if rec != nil {
		t.Errorf("FindByHash() = %+v, want absent", rec)
	}

	// The fingerprint stays in the membership set, so it is not offered again.
	h.faulty.UpsertErr = nil
	again := h.coord.RunSyncCycle(ctx, folders)
	if len(again.Uploaded)+len(again.Failed)+len(again.Skipped) != 0 {
		t.Errorf("second cycle = %s, want nothing", again.Summary())
	}
	if rec, _ := h.catalog.FindByHash(ctx, hash); rec != nil {
		t.Error("file recorded on a later cycle")
	}
}

func TestSyncCoordinator_UploadFailureIsNotRetried(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultSyncOptions())
	h.fsmgr.AddFile("/sdcard/Pictures/a.jpg", []byte("a"))
	h.remote.UploadErr = errors.New("connection reset")
	folders := []string{"/sdcard/Pictures"}

	report := h.coord.RunSyncCycle(ctx, folders)

	if len(report.Failed) != 1 {
		t.Fatalf("report = %s, want 1 failed", report.Summary())
	}
	var re *backup.RemoteStoreError
	if !errors.As(report.Failed[0].Err, &re) || re.Op != "upload" {
		t.Errorf("failure = %v, want upload *RemoteStoreError", report.Failed[0].Err)
	}

	activity, err := h.catalog.RecentActivity(ctx, 10)
	if err != nil {
		t.Fatalf("RecentActivity() error = %v", err)
	}
	var errorEntries int
	for _, e := range activity {
		if e.Kind == model.ActivityError {
			errorEntries++
		}
	}
	if errorEntries != 1 {
		t.Errorf("error activity entries = %d, want 1", errorEntries)
	}

	h.remote.UploadErr = nil
	h.coord.RunSyncCycle(ctx, folders)
	if n := len(h.remote.Uploads()); n != 1 {
		t.Errorf("Upload called %d times across two cycles, want 1", n)
	}
}

func TestSyncCoordinator_SkipsCatalogedContent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultSyncOptions())
	h.fsmgr.AddFile("/sdcard/Pictures/a.jpg", []byte("known"))
	hash := testutil.SHA256Hex([]byte("known"))

	// Cataloged by another path, e.g. an earlier HTTP upload.
	if err := h.catalog.Upsert(ctx, &model.FileRecord{
		ContentHash: hash,
		DisplayName: "a.jpg",
		SizeBytes:   5,
		RemoteID:    hash + ".jpg",
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	report := h.coord.RunSyncCycle(ctx, []string{"/sdcard/Pictures"})

	if len(report.Skipped) != 1 || !errors.Is(report.Skipped[0].Reason, backup.ErrAlreadyCataloged) {
		t.Fatalf("report = %s, want 1 skipped as already cataloged", report.Summary())
	}
	if n := len(h.remote.Uploads()); n != 0 {
		t.Errorf("Upload called %d times, want 0", n)
	}
}

func TestSyncCoordinator_ContentChangedDuringUpload(t *testing.T) {
	ctx := context.Background()
	opts := defaultSyncOptions()
	h := newHarness(t, opts)
	path := "/sdcard/Pictures/a.jpg"
	h.fsmgr.AddFile(path, []byte("original"))

	// The first open fingerprints during the scan, the second streams the upload.
	h.fsmgr.OnOpen(func(p string) {
		if p == path && h.fsmgr.Opens(path) == 2 {
			h.fsmgr.AddFile(path, []byte("modified"))
		}
	})

	report := h.coord.RunSyncCycle(ctx, []string{"/sdcard/Pictures"})

	if len(report.Failed) != 1 || !errors.Is(report.Failed[0].Err, backup.ErrContentChanged) {
		t.Fatalf("report = %s, failed = %v", report.Summary(), report.Failed)
	}
	if h.store.Len() != 0 {
		t.Errorf("remote store holds %d objects, want 0", h.store.Len())
	}
	if len(h.remote.Deletes()) != 1 {
		t.Errorf("Delete called %d times, want 1", len(h.remote.Deletes()))
	}
}

func TestSyncCoordinator_FileRemovedBeforeUpload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultSyncOptions())
	gone := "/sdcard/Pictures/gone.jpg"
	h.fsmgr.AddFile(gone, []byte("short lived"))
	h.fsmgr.AddFile("/sdcard/Pictures/kept.jpg", []byte("kept"))

	h.fsmgr.OnOpen(func(p string) {
		if p == gone && h.fsmgr.Opens(gone) == 2 {
			h.fsmgr.Remove(gone)
		}
	})

	report := h.coord.RunSyncCycle(ctx, []string{"/sdcard/Pictures"})

	if len(report.Uploaded) != 1 || len(report.Failed) != 1 {
		t.Fatalf("report = %s, want 1 uploaded and 1 failed", report.Summary())
	}
	if report.Failed[0].File.Path != gone {
		t.Errorf("failed file = %s, want %s", report.Failed[0].File.Path, gone)
	}
	if !h.membership.Contains(testutil.SHA256Hex([]byte("short lived"))) {
		t.Error("fingerprint of the removed file should stay in the membership set")
	}
}

func TestSyncCoordinator_Cancelled(t *testing.T) {
	h := newHarness(t, defaultSyncOptions())
	h.fsmgr.AddFile("/sdcard/Pictures/a.jpg", []byte("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := h.coord.RunSyncCycle(ctx, []string{"/sdcard/Pictures"})
	if !report.Cancelled {
		t.Error("report not marked cancelled")
	}
	if len(report.Uploaded) != 0 {
		t.Errorf("uploaded %d files after cancellation", len(report.Uploaded))
	}

	// Bookkeeping still runs.
	stats, err := h.catalog.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.LastSyncTime == nil {
		t.Error("LastSyncTime not recorded for cancelled cycle")
	}
}

func TestSyncReport_Summary(t *testing.T) {
	r := &backup.SyncReport{
		Uploaded:  make([]*model.FileRecord, 3),
		Failed:    make([]*backup.FailedFile, 1),
		Skipped:   make([]*backup.SkippedFile, 2),
		Cancelled: true,
	}
	want := "uploaded=3 failed=1 skipped=2 cancelled"
	if got := r.Summary(); got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}

func TestSyncCoordinator_UsesClockForUploadTime(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultSyncOptions())
	h.clock.Advance(48 * time.Hour)
	h.fsmgr.AddFile("/sdcard/Pictures/a.jpg", []byte("a"))

	report := h.coord.RunSyncCycle(ctx, []string{"/sdcard/Pictures"})
	if len(report.Uploaded) != 1 {
		t.Fatalf("report = %s", report.Summary())
	}
	rec, err := h.catalog.FindByHash(ctx, testutil.SHA256Hex([]byte("a")))
	if err != nil || rec == nil {
		t.Fatalf("FindByHash() = %v, %v", rec, err)
	}
	if !rec.UploadedAt.Equal(h.clock.Now()) {
		t.Errorf("UploadedAt = %v, want %v", rec.UploadedAt, h.clock.Now())
	}
}
