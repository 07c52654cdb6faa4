package database

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"autobackup/internal/backup"
	"autobackup/internal/database/migrations"
	"autobackup/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const memoryPath = ":memory:"

// SQLiteCatalog implements backup.Catalog using SQLite.
//
// Writes are serialised by a mutex and run in immediate transactions, so the
// lifetime counters and the activity log always move together with the file
// rows. File databases use WAL mode, which lets reads proceed while a write
// is in progress.
type SQLiteCatalog struct {
	db    *sql.DB
	path  string
	clock backup.Clock

	writeMu sync.Mutex
}

// NewSQLiteCatalog opens the catalog at path, applying pending migrations.
// path can be a file path or ":memory:" for an in-memory catalog.
// A nil clock uses the real time.
func NewSQLiteCatalog(path string, clock backup.Clock) (*SQLiteCatalog, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating catalog: %w", err)
	}

	return NewSQLiteCatalogFromDB(db, path, clock), nil
}

// NewSQLiteCatalogFromDB wraps an existing, migrated database connection.
func NewSQLiteCatalogFromDB(db *sql.DB, path string, clock backup.Clock) *SQLiteCatalog {
	if clock == nil {
		clock = backup.RealClock{}
	}
	return &SQLiteCatalog{
		db:    db,
		path:  path,
		clock: clock,
	}
}

// OpenConnection opens and configures a SQLite database connection.
// Connection settings are passed in the DSN so that every pooled connection
// gets them. An in-memory database is limited to one connection, since each
// connection would otherwise see its own empty database.
func OpenConnection(path string) (*sql.DB, error) {
	params := url.Values{}
	params.Set("_foreign_keys", "1")
	params.Set("_busy_timeout", "5000")
	params.Set("_txlock", "immediate")

	dsn := path
	if path != memoryPath {
		params.Set("_journal_mode", "WAL")
		params.Set("_synchronous", "NORMAL")
		dsn = "file:" + path
	}
	dsn += "?" + params.Encode()

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == memoryPath {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

const fileColumns = `content_hash, original_path, display_name, size_bytes, kind,
	remote_id, remote_url, uploaded_at, tags, device_label, is_deleted`

// File operations

func (s *SQLiteCatalog) Upsert(ctx context.Context, record *model.FileRecord) error {
	if record.ContentHash == "" {
		return fmt.Errorf("upserting file: content hash is required")
	}
	if record.SizeBytes < 0 {
		return fmt.Errorf("upserting file: negative size %d", record.SizeBytes)
	}

	now := s.now()
	uploadedAt := record.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = now
	}
	label := record.DeviceLabel
	if label == "" {
		label = model.DefaultDeviceLabel
	}
	kind := record.Kind
	if kind == "" {
		kind = model.KindForName(record.DisplayName)
	}
	tags, err := encodeTags(record.Tags)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM files WHERE content_hash = ?`, record.ContentHash).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking existing file: %w", err)
	}

	// uploaded_at is left alone on conflict: it records the first upload.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO files (`+fileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT (content_hash) DO UPDATE SET
			original_path = excluded.original_path,
			display_name  = excluded.display_name,
			size_bytes    = excluded.size_bytes,
			kind          = excluded.kind,
			remote_id     = excluded.remote_id,
			remote_url    = excluded.remote_url,
			tags          = excluded.tags,
			device_label  = excluded.device_label,
			is_deleted    = 0`,
		record.ContentHash, record.OriginalPath, record.DisplayName, record.SizeBytes, string(kind),
		record.RemoteID, record.RemoteURL, uploadedAt.UTC(), tags, label,
	)
	if err != nil {
		return fmt.Errorf("upserting file: %w", err)
	}

	if exists {
		_, err = tx.ExecContext(ctx, `UPDATE backup_status SET last_backup_time = ? WHERE id = 1`, now)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE backup_status SET
				lifetime_files   = lifetime_files + 1,
				lifetime_size_mb = lifetime_size_mb + ?,
				last_backup_time = ?
			WHERE id = 1`,
			float64(record.SizeBytes)/model.BytesPerMB, now,
		)
	}
	if err != nil {
		return fmt.Errorf("updating backup status: %w", err)
	}

	if err := insertActivity(ctx, tx, model.ActivityUpload, record.DisplayName, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}
	return nil
}

func (s *SQLiteCatalog) ListActive(ctx context.Context, limit, offset int) ([]*model.FileRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fileColumns+` FROM files
		WHERE is_deleted = 0
		ORDER BY uploaded_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing active files: %w", err)
	}
	return scanFiles(rows)
}

func (s *SQLiteCatalog) Search(ctx context.Context, keyword string) ([]*model.FileRecord, error) {
	needle := strings.ToLower(strings.TrimSpace(keyword))

	var (
		rows *sql.Rows
		err  error
	)
	if isASCII(needle) {
		// SQLite's LIKE folds ASCII case only; it narrows the rows and the
		// match below decides. Tags are matched on their decoded values, not
		// on the stored JSON text.
		pattern := "%" + escapeLike(needle) + "%"
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+fileColumns+` FROM files
			WHERE is_deleted = 0
			  AND (display_name LIKE ? ESCAPE '\'
			    OR EXISTS (SELECT 1 FROM json_each(files.tags) WHERE json_each.value LIKE ? ESCAPE '\'))
			ORDER BY uploaded_at DESC, id DESC`, pattern, pattern)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+fileColumns+` FROM files
			WHERE is_deleted = 0
			ORDER BY uploaded_at DESC, id DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("searching files: %w", err)
	}

	candidates, err := scanFiles(rows)
	if err != nil {
		return nil, err
	}

	var out []*model.FileRecord
	for _, f := range candidates {
		if matchesKeyword(f, needle) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *SQLiteCatalog) FindByHash(ctx context.Context, hash string) (*model.FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE content_hash = ?`, hash)
	f, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding file by hash: %w", err)
	}
	return f, nil
}

func (s *SQLiteCatalog) SoftDelete(ctx context.Context, hash string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		name    string
		deleted bool
	)
	err = tx.QueryRowContext(ctx, `SELECT display_name, is_deleted FROM files WHERE content_hash = ?`, hash).Scan(&name, &deleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return backup.ErrNotFound
		}
		return fmt.Errorf("finding file: %w", err)
	}
	if deleted {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE files SET is_deleted = 1 WHERE content_hash = ?`, hash); err != nil {
		return fmt.Errorf("marking file deleted: %w", err)
	}
	if err := insertActivity(ctx, tx, model.ActivityDelete, name, s.now()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	return nil
}

// Statistics

func (s *SQLiteCatalog) Stats(ctx context.Context) (*model.AggregateStats, error) {
	var (
		stats      model.AggregateStats
		totalBytes int64
		lastBackup sql.NullTime
		lastSync   sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM files WHERE is_deleted = 0),
			(SELECT COALESCE(SUM(size_bytes), 0) FROM files WHERE is_deleted = 0),
			lifetime_files, lifetime_size_mb, last_backup_time, last_sync_time
		FROM backup_status WHERE id = 1`,
	).Scan(&stats.TotalFiles, &totalBytes, &stats.LifetimeFiles, &stats.LifetimeSizeMB, &lastBackup, &lastSync)
	if err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}

	stats.TotalSizeMB = float64(totalBytes) / model.BytesPerMB
	if lastBackup.Valid {
		t := lastBackup.Time.UTC()
		stats.LastBackupTime = &t
	}
	if lastSync.Valid {
		t := lastSync.Time.UTC()
		stats.LastSyncTime = &t
	}
	return &stats, nil
}

func (s *SQLiteCatalog) KindBreakdown(ctx context.Context) ([]*model.KindStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*), COALESCE(SUM(size_bytes), 0)
		FROM files WHERE is_deleted = 0
		GROUP BY kind ORDER BY COUNT(*) DESC, kind`)
	if err != nil {
		return nil, fmt.Errorf("grouping files by kind: %w", err)
	}
	defer rows.Close()

	var out []*model.KindStats
	for rows.Next() {
		var (
			ks   model.KindStats
			kind string
		)
		if err := rows.Scan(&kind, &ks.Count, &ks.SizeBytes); err != nil {
			return nil, fmt.Errorf("scanning kind stats: %w", err)
		}
		ks.Kind = model.FileKind(kind)
		out = append(out, &ks)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("grouping files by kind: %w", err)
	}
	return out, nil
}

// Activity log

func (s *SQLiteCatalog) LogActivity(ctx context.Context, kind model.ActivityKind, detail string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return insertActivity(ctx, s.db, kind, detail, s.now())
}

func (s *SQLiteCatalog) RecentActivity(ctx context.Context, limit int) ([]*model.ActivityLogEntry, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, detail, created_at FROM activity_logs
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	defer rows.Close()

	var out []*model.ActivityLogEntry
	for rows.Next() {
		var (
			e    model.ActivityLogEntry
			kind string
		)
		if err := rows.Scan(&e.ID, &kind, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		e.Kind = model.ActivityKind(kind)
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	return out, nil
}

func (s *SQLiteCatalog) RecordSyncCycle(ctx context.Context, finishedAt time.Time, detail string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE backup_status SET last_sync_time = ? WHERE id = 1`, finishedAt.UTC()); err != nil {
		return fmt.Errorf("updating last sync time: %w", err)
	}
	if err := insertActivity(ctx, tx, model.ActivityScan, detail, finishedAt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing sync cycle: %w", err)
	}
	return nil
}

// Devices

func (s *SQLiteCatalog) TouchDevice(ctx context.Context, deviceID, label string, newFiles int64) (*model.DeviceRecord, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("touching device: device id is required")
	}
	if label == "" {
		label = model.DefaultDeviceLabel
	}
	now := s.now()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO devices (device_id, device_label, first_seen_at, last_seen_at, file_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (device_id) DO UPDATE SET
			device_label = excluded.device_label,
			last_seen_at = excluded.last_seen_at,
			file_count   = file_count + excluded.file_count`,
		deviceID, label, now, now, newFiles,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting device: %w", err)
	}

	d, err := scanDevice(tx.QueryRowContext(ctx, `
		SELECT device_id, device_label, last_seen_at, file_count FROM devices WHERE device_id = ?`, deviceID))
	if err != nil {
		return nil, fmt.Errorf("reading device: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing device: %w", err)
	}
	return d, nil
}

func (s *SQLiteCatalog) FindDevice(ctx context.Context, deviceID string) (*model.DeviceRecord, error) {
	d, err := scanDevice(s.db.QueryRowContext(ctx, `
		SELECT device_id, device_label, last_seen_at, file_count FROM devices WHERE device_id = ?`, deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding device: %w", err)
	}
	return d, nil
}

func (s *SQLiteCatalog) ListDevices(ctx context.Context) ([]*model.DeviceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, device_label, last_seen_at, file_count FROM devices
		ORDER BY last_seen_at DESC, device_id`)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var out []*model.DeviceRecord
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	return out, nil
}

// Maintenance

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteCatalog) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteCatalog) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// SchemaStatus reports the schema version of the catalog.
func (s *SQLiteCatalog) SchemaStatus() (*migrations.Status, error) {
	return migrations.GetStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteCatalog) BackupTo(destPath string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteCatalog) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteCatalog) now() time.Time {
	return s.clock.Now().UTC()
}

// helpers

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func insertActivity(ctx context.Context, ex execer, kind model.ActivityKind, detail string, at time.Time) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO activity_logs (kind, detail, created_at) VALUES (?, ?, ?)`,
		string(kind), detail, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("appending %s activity: %w", kind, err)
	}
	return nil
}

func scanFile(row rowScanner) (*model.FileRecord, error) {
	var (
		f    model.FileRecord
		kind string
		tags string
	)
	err := row.Scan(&f.ContentHash, &f.OriginalPath, &f.DisplayName, &f.SizeBytes, &kind,
		&f.RemoteID, &f.RemoteURL, &f.UploadedAt, &tags, &f.DeviceLabel, &f.IsDeleted)
	if err != nil {
		return nil, err
	}
	f.Kind = model.FileKind(kind)
	f.UploadedAt = f.UploadedAt.UTC()
	if err := json.Unmarshal([]byte(tags), &f.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags of %s: %w", f.ContentHash, err)
	}
	return &f, nil
}

func scanFiles(rows *sql.Rows) ([]*model.FileRecord, error) {
	defer rows.Close()

	var out []*model.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading files: %w", err)
	}
	return out, nil
}

func scanDevice(row rowScanner) (*model.DeviceRecord, error) {
	var d model.DeviceRecord
	if err := row.Scan(&d.DeviceID, &d.DeviceLabel, &d.LastSeenAt, &d.FileCount); err != nil {
		return nil, err
	}
	d.LastSeenAt = d.LastSeenAt.UTC()
	return &d, nil
}

// encodeTags stores the tag set sorted and without duplicates.
func encodeTags(tags []string) (string, error) {
	set := slices.Compact(slices.Sorted(slices.Values(tags)))
	if set == nil {
		set = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(set); err != nil {
		return "", fmt.Errorf("encoding tags: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func matchesKeyword(f *model.FileRecord, needle string) bool {
	if strings.Contains(strings.ToLower(f.DisplayName), needle) {
		return true
	}
	for _, tag := range f.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// Compile-time check that SQLiteCatalog implements backup.Catalog interface
var _ backup.Catalog = (*SQLiteCatalog)(nil)
