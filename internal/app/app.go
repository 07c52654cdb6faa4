package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"autobackup/internal/access"
	"autobackup/internal/api"
	"autobackup/internal/backup"
	"autobackup/internal/config"
	"autobackup/internal/database"
	"autobackup/internal/database/migrations"
	"autobackup/internal/fs"
	"autobackup/internal/membership"
	"autobackup/internal/model"
	"autobackup/internal/vault"
)

// Version is reported by the HTTP API.
var Version = "dev"

// App is the application layer between the CLI and the backup services.
// It constructs all dependencies from config once and hands the same
// instances to every consumer. The caller must call Close when done.
type App struct {
	cfg        *config.Config
	catalog    *database.SQLiteCatalog
	remote     backup.RemoteStore
	fsmgr      *fs.OSFilesystemManager
	membership backup.MembershipSet
	coord      *backup.SyncCoordinator
	scheduler  *backup.Scheduler
	guard      *access.Guard
	logger     backup.Logger
	logFile    *os.File
}

// NewApp creates a fully wired App from the given config.
// command identifies the CLI command being run and tags every log line.
func NewApp(ctx context.Context, cfg *config.Config, command string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	runID := command + "-" + time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, runID, slog.LevelInfo, stderrMirror())
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}
	clock := backup.RealClock{}

	a := &App{cfg: cfg, logger: logger, logFile: logFile}
	if err := a.wire(ctx, clock); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, clock backup.Clock) error {
	cfg := a.cfg

	catalog, err := database.NewCatalogFromConfig(cfg.Database, clock)
	if err != nil {
		return fmt.Errorf("creating catalog: %w", err)
	}
	a.catalog = catalog

	remote, err := vault.NewRemoteStoreFromConfig(ctx, cfg.Remote)
	if err != nil {
		return fmt.Errorf("creating remote store: %w", err)
	}
	a.remote = remote

	if cfg.Backup.MembershipPath == "" {
		a.membership = membership.NewMemorySet()
	} else {
		set, err := membership.OpenFileSet(cfg.Backup.MembershipPath)
		if err != nil {
			return fmt.Errorf("opening membership set: %w", err)
		}
		a.membership = set
	}

	a.fsmgr = fs.NewOSFilesystemManager(cfg.Filesystem.Ignore, a.logger)
	scanner := backup.NewScanner(a.fsmgr, a.membership, a.logger)
	a.coord = backup.NewSyncCoordinator(scanner, a.catalog, a.remote, a.fsmgr, backup.SyncOptions{
		Allowed:          backup.NewExtensionSet(cfg.Backup.AllowedExtensions),
		MaxFileSizeBytes: cfg.Backup.MaxFileSizeBytes,
		Tags:             cfg.Backup.Tags,
		DeviceID:         cfg.DeviceID,
		DeviceLabel:      cfg.DeviceLabel,
	}, a.logger, clock)
	a.scheduler = backup.NewScheduler(a.coord, cfg.Backup.MonitoredFolders, cfg.Backup.ScanInterval(), a.logger)
	a.guard = access.NewGuard(cfg.Access, clock)
	return nil
}

// Sync runs one sync cycle over the monitored folders.
func (a *App) Sync(ctx context.Context) *backup.SyncReport {
	report, _ := a.scheduler.Trigger(ctx)
	return report
}

// Serve runs the periodic scheduler and the HTTP API until ctx is cancelled
// or one of them fails.
func (a *App) Serve(ctx context.Context) error {
	if a.cfg.Access.APIKey == "" {
		a.logger.Warn("access.api_key is not set; every API request will be rejected")
	}

	server := api.NewServer(api.Deps{
		Catalog:        a.catalog,
		Remote:         a.remote,
		Files:          a.coord,
		Scheduler:      a.scheduler,
		Guard:          a.guard,
		IDs:            backup.UUIDGenerator{},
		Logger:         a.logger,
		UploadDir:      filepath.Join(a.cfg.BaseDir, "uploads"),
		MaxUploadBytes: a.cfg.Backup.MaxFileSizeBytes,
		FoldersScanned: len(a.cfg.Backup.MonitoredFolders),
		Version:        Version,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scheduler.Run(ctx)
	})
	g.Go(func() error {
		return server.ListenAndServe(ctx, a.cfg.Server.Listen)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ListFiles returns active records, newest first.
func (a *App) ListFiles(ctx context.Context, limit, offset int) ([]*model.FileRecord, error) {
	return a.catalog.ListActive(ctx, limit, offset)
}

// Search returns active records whose name or tags contain keyword.
func (a *App) Search(ctx context.Context, keyword string) ([]*model.FileRecord, error) {
	return a.catalog.Search(ctx, keyword)
}

// Show returns the record for hash, deleted or not.
func (a *App) Show(ctx context.Context, hash string) (*model.FileRecord, error) {
	record, err := a.catalog.FindByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, backup.ErrNotFound
	}
	return record, nil
}

// Delete removes a file from the remote store and hides it in the catalog.
func (a *App) Delete(ctx context.Context, hash string) (*model.FileRecord, error) {
	return a.coord.DeleteFile(ctx, hash)
}

// Stats returns aggregate statistics and the per-kind breakdown.
func (a *App) Stats(ctx context.Context) (*model.AggregateStats, []*model.KindStats, error) {
	stats, err := a.catalog.Stats(ctx)
	if err != nil {
		return nil, nil, err
	}
	kinds, err := a.catalog.KindBreakdown(ctx)
	if err != nil {
		return nil, nil, err
	}
	return stats, kinds, nil
}

// Devices returns every known device.
func (a *App) Devices(ctx context.Context) ([]*model.DeviceRecord, error) {
	return a.catalog.ListDevices(ctx)
}

// Activity returns the most recent activity log entries.
func (a *App) Activity(ctx context.Context, limit int) ([]*model.ActivityLogEntry, error) {
	return a.catalog.RecentActivity(ctx, limit)
}

// BackupCatalog writes a consistent copy of the catalog database to dest.
func (a *App) BackupCatalog(dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("destination already exists: %s", dest)
	}
	return a.catalog.BackupTo(dest)
}

// CatalogStatus reports the schema version of the catalog.
func (a *App) CatalogStatus() (*migrations.Status, error) {
	return a.catalog.SchemaStatus()
}

// Close flushes the membership set and closes the catalog and log file.
func (a *App) Close() error {
	var errs []error

	if a.membership != nil {
		if err := a.membership.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flushing membership set: %w", err))
		}
	}
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing catalog: %w", err))
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}

	return errors.Join(errs...)
}
