package api

import (
	"encoding/json"
	"net/http"
	"time"

	"autobackup/internal/backup"
	"autobackup/internal/model"
)

type fileResponse struct {
	ContentHash  string    `json:"content_hash"`
	OriginalPath string    `json:"original_path"`
	DisplayName  string    `json:"display_name"`
	SizeBytes    int64     `json:"size_bytes"`
	SizeMB       float64   `json:"size_mb"`
	Kind         string    `json:"kind"`
	RemoteID     string    `json:"remote_id"`
	RemoteURL    string    `json:"remote_url"`
	UploadedAt   time.Time `json:"uploaded_at"`
	Tags         []string  `json:"tags"`
	DeviceLabel  string    `json:"device_label"`
	IsDeleted    bool      `json:"is_deleted"`
}

func newFileResponse(f *model.FileRecord) fileResponse {
	tags := f.Tags
	if tags == nil {
		tags = []string{}
	}
	return fileResponse{
		ContentHash:  f.ContentHash,
		OriginalPath: f.OriginalPath,
		DisplayName:  f.DisplayName,
		SizeBytes:    f.SizeBytes,
		SizeMB:       f.SizeMB(),
		Kind:         string(f.Kind),
		RemoteID:     f.RemoteID,
		RemoteURL:    f.RemoteURL,
		UploadedAt:   f.UploadedAt,
		Tags:         tags,
		DeviceLabel:  f.DeviceLabel,
		IsDeleted:    f.IsDeleted,
	}
}

func newFileResponses(files []*model.FileRecord) []fileResponse {
	out := make([]fileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, newFileResponse(f))
	}
	return out
}

type statusResponse struct {
	Status         string     `json:"status"`
	TotalFiles     int64      `json:"total_files"`
	TotalSizeMB    float64    `json:"total_size_mb"`
	LifetimeFiles  int64      `json:"lifetime_files"`
	LifetimeSizeMB float64    `json:"lifetime_size_mb"`
	LastBackup     *time.Time `json:"last_backup"`
	LastSync       *time.Time `json:"last_sync"`
}

type kindResponse struct {
	Kind      string `json:"kind"`
	Count     int64  `json:"count"`
	SizeBytes int64  `json:"size_bytes"`
}

type activityResponse struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

type deviceResponse struct {
	DeviceID    string    `json:"device_id"`
	DeviceLabel string    `json:"device_label"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	FileCount   int64     `json:"file_count"`
}

type remoteObjectResponse struct {
	RemoteID  string    `json:"remote_id"`
	RemoteURL string    `json:"remote_url"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

type scanResponse struct {
	Uploaded       []fileResponse `json:"uploaded"`
	UploadedCount  int            `json:"uploaded_count"`
	FailedCount    int            `json:"failed_count"`
	SkippedCount   int            `json:"skipped_count"`
	MissingFolders []string       `json:"missing_folders"`
	FoldersScanned int            `json:"folders_scanned"`
	Cancelled      bool           `json:"cancelled"`
	Joined         bool           `json:"joined"`
	Summary        string         `json:"summary"`
}

func newScanResponse(r *backup.SyncReport, joined bool, folders int) scanResponse {
	missing := r.MissingFolders
	if missing == nil {
		missing = []string{}
	}
	return scanResponse{
		Uploaded:       newFileResponses(r.Uploaded),
		UploadedCount:  len(r.Uploaded),
		FailedCount:    len(r.Failed),
		SkippedCount:   len(r.Skipped),
		MissingFolders: missing,
		FoldersScanned: folders,
		Cancelled:      r.Cancelled,
		Joined:         joined,
		Summary:        r.Summary(),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
