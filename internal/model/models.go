package model

import (
	"path/filepath"
	"strings"
	"time"
)

// DefaultDeviceLabel is recorded when a file arrives without a device label.
const DefaultDeviceLabel = "Unknown"

// BytesPerMB converts byte sizes into the megabyte figures kept in statistics.
const BytesPerMB = 1024 * 1024

// FileKind is the coarse category of a backed-up file, derived from its extension.
type FileKind string

const (
	KindImage    FileKind = "image"
	KindVideo    FileKind = "video"
	KindDocument FileKind = "document"
	KindAudio    FileKind = "audio"
	KindArchive  FileKind = "archive"
	KindApp      FileKind = "app"
	KindOther    FileKind = "other"
)

// kindByExtension maps lowercase extensions (with the leading dot) to kinds.
var kindByExtension = map[string]FileKind{
	".jpg": KindImage, ".jpeg": KindImage, ".png": KindImage, ".gif": KindImage,
	".bmp": KindImage, ".webp": KindImage, ".heic": KindImage,

	".mp4": KindVideo, ".mkv": KindVideo, ".avi": KindVideo, ".mov": KindVideo,
	".wmv": KindVideo, ".flv": KindVideo, ".3gp": KindVideo,

	".pdf": KindDocument, ".doc": KindDocument, ".docx": KindDocument, ".xls": KindDocument,
	".xlsx": KindDocument, ".ppt": KindDocument, ".pptx": KindDocument, ".txt": KindDocument,
	".rtf": KindDocument,

	".mp3": KindAudio, ".wav": KindAudio, ".aac": KindAudio, ".flac": KindAudio,
	".m4a": KindAudio, ".ogg": KindAudio,

	".zip": KindArchive, ".rar": KindArchive, ".7z": KindArchive,

	".apk": KindApp,
}

// KindForExtension returns the kind for ext. ext may be given with or without
// the leading dot and in any case.
func KindForExtension(ext string) FileKind {
	if k, ok := kindByExtension[NormalizeExtension(ext)]; ok {
		return k
	}
	return KindOther
}

// KindForName returns the kind for a file name or path.
func KindForName(name string) FileKind {
	return KindForExtension(filepath.Ext(name))
}

// NormalizeExtension lowercases ext and ensures a leading dot.
// An empty extension stays empty.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// FileRecord is one uniquely fingerprinted file that has been uploaded.
// ContentHash is the primary identity.
type FileRecord struct {
	ContentHash  string // hex SHA-256 of the content
	OriginalPath string // where the file was found
	DisplayName  string // base name shown in listings
	SizeBytes    int64
	Kind         FileKind
	RemoteID     string // handle returned by the remote store
	RemoteURL    string
	UploadedAt   time.Time // set on first insert, never modified
	Tags         []string
	DeviceLabel  string
	IsDeleted    bool
}

// SizeMB returns the record size in megabytes.
func (f *FileRecord) SizeMB() float64 {
	return float64(f.SizeBytes) / BytesPerMB
}

// AggregateStats summarises the catalog.
// TotalFiles and TotalSizeMB always describe the active (non-deleted) rows.
// The lifetime counters only grow: they count every distinct hash ever uploaded.
type AggregateStats struct {
	TotalFiles     int64
	TotalSizeMB    float64
	LifetimeFiles  int64
	LifetimeSizeMB float64
	LastBackupTime *time.Time
	LastSyncTime   *time.Time
}

// KindStats is the active file count and size for one kind.
type KindStats struct {
	Kind      FileKind
	Count     int64
	SizeBytes int64
}

// DeviceRecord is a device that uploads into this catalog.
type DeviceRecord struct {
	DeviceID    string
	DeviceLabel string
	LastSeenAt  time.Time
	FileCount   int64
}

// ActivityKind classifies activity log entries.
type ActivityKind string

const (
	ActivityUpload ActivityKind = "upload"
	ActivityDelete ActivityKind = "delete"
	ActivityScan   ActivityKind = "scan"
	ActivityError  ActivityKind = "error"
)

// ActivityLogEntry is one append-only diagnostic entry.
type ActivityLogEntry struct {
	ID        int64
	Kind      ActivityKind
	Detail    string
	Timestamp time.Time
}
