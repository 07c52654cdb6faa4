package backup_test

import (
	"testing"

	"autobackup/internal/backup"
	"autobackup/internal/database"
	"autobackup/internal/membership"
	"autobackup/internal/testutil"
	"autobackup/internal/vault"
)

// harness wires a SyncCoordinator to in-memory dependencies.
type harness struct {
	fsmgr      *testutil.MockFilesystemManager
	membership *membership.MemorySet
	catalog    *database.SQLiteCatalog
	faulty     *testutil.FaultyCatalog
	store      *vault.MemoryVault
	remote     *testutil.RecordingRemoteStore
	clock      *testutil.StubClock
	scanner    *backup.Scanner
	coord      *backup.SyncCoordinator
}

func defaultSyncOptions() backup.SyncOptions {
	return backup.SyncOptions{
		Allowed:          backup.NewExtensionSet([]string{".jpg", ".png", ".mp4", ".pdf"}),
		MaxFileSizeBytes: 1 << 20,
		Tags:             []string{"auto_backup"},
		DeviceID:         "agent-1",
		DeviceLabel:      "Pixel",
	}
}

func newHarness(t *testing.T, opts backup.SyncOptions) *harness {
	t.Helper()

	h := &harness{
		fsmgr:      testutil.NewMockFilesystemManager(),
		membership: membership.NewMemorySet(),
		clock:      testutil.FixedClock(),
		store:      testutil.NewTestRemoteStore(),
	}
	h.catalog = testutil.NewTestCatalog(t, h.clock)
	h.faulty = &testutil.FaultyCatalog{Catalog: h.catalog}
	h.remote = testutil.NewRecordingRemoteStore(h.store)

	logger := backup.NewNopLogger()
	h.scanner = backup.NewScanner(h.fsmgr, h.membership, logger)
	h.coord = backup.NewSyncCoordinator(h.scanner, h.faulty, h.remote, h.fsmgr, opts, logger, h.clock)
	return h
}
