package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"autobackup/internal/backup"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "autobackup",
		"version": s.deps.Version,
		"status":  "running",
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Catalog.Stats(r.Context())
	if err != nil {
		s.internalError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:         "active",
		TotalFiles:     stats.TotalFiles,
		TotalSizeMB:    stats.TotalSizeMB,
		LifetimeFiles:  stats.LifetimeFiles,
		LifetimeSizeMB: stats.LifetimeSizeMB,
		LastBackup:     stats.LastBackupTime,
		LastSync:       stats.LastSyncTime,
	})
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit = min(max(limit, 1), maxPageSize)

	files, err := s.deps.Catalog.ListActive(r.Context(), limit, offset)
	if err != nil {
		s.internalError(w, "list files", err)
		return
	}
	stats, err := s.deps.Catalog.Stats(r.Context())
	if err != nil {
		s.internalError(w, "stats", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"files": newFileResponses(files),
		"count": len(files),
		"total": stats.TotalFiles,
	})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	results, err := s.deps.Catalog.Search(r.Context(), query)
	if err != nil {
		s.internalError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": newFileResponses(results),
		"count":   len(results),
	})
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	record, err := s.deps.Catalog.FindByHash(r.Context(), hash)
	if err != nil {
		s.internalError(w, "find file", err)
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	writeJSON(w, http.StatusOK, newFileResponse(record))
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	record, err := s.deps.Files.DeleteFile(r.Context(), hash)
	if err != nil {
		s.writeServiceError(w, "delete file", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"file":    newFileResponse(record),
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Catalog.Stats(r.Context())
	if err != nil {
		s.internalError(w, "stats", err)
		return
	}
	kinds, err := s.deps.Catalog.KindBreakdown(r.Context())
	if err != nil {
		s.internalError(w, "kind breakdown", err)
		return
	}

	byKind := make([]kindResponse, 0, len(kinds))
	for _, k := range kinds {
		byKind = append(byKind, kindResponse{Kind: string(k.Kind), Count: k.Count, SizeBytes: k.SizeBytes})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_files":   stats.TotalFiles,
		"total_size_mb": stats.TotalSizeMB,
		"by_kind":       byKind,
	})
}

func (s *Server) activity(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.deps.Catalog.RecentActivity(r.Context(), min(max(limit, 1), maxPageSize))
	if err != nil {
		s.internalError(w, "activity", err)
		return
	}

	out := make([]activityResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, activityResponse{ID: e.ID, Kind: string(e.Kind), Detail: e.Detail, Timestamp: e.Timestamp})
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": out, "count": len(out)})
}

func (s *Server) devices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.deps.Catalog.ListDevices(r.Context())
	if err != nil {
		s.internalError(w, "list devices", err)
		return
	}

	out := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceResponse{DeviceID: d.DeviceID, DeviceLabel: d.DeviceLabel, LastSeenAt: d.LastSeenAt, FileCount: d.FileCount})
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": out, "count": len(out)})
}

func (s *Server) remoteObjects(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	objs, err := s.deps.Remote.List(r.Context(), r.URL.Query().Get("prefix"), min(max(limit, 1), maxPageSize))
	if err != nil {
		s.deps.Logger.Error("listing remote objects failed", "error", err)
		writeError(w, http.StatusBadGateway, "remote store unavailable")
		return
	}

	out := make([]remoteObjectResponse, 0, len(objs))
	for _, o := range objs {
		out = append(out, remoteObjectResponse{RemoteID: o.RemoteID, RemoteURL: o.RemoteURL, SizeBytes: o.SizeBytes, CreatedAt: o.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"objects": out, "count": len(out)})
}

func (s *Server) registerDevice(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("device_name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "device_name is required")
		return
	}

	deviceID := s.deps.IDs.New()
	device, err := s.deps.Catalog.TouchDevice(r.Context(), deviceID, name, 0)
	if err != nil {
		s.internalError(w, "register device", err)
		return
	}

	resp := map[string]any{
		"device_id":   device.DeviceID,
		"device_name": device.DeviceLabel,
	}
	if token, err := s.deps.Guard.IssueDeviceToken(deviceID); err == nil {
		resp["device_token"] = token
	} else {
		s.deps.Logger.Warn("device token not issued", "device", deviceID, "error", err)
	}
	s.deps.Logger.Info("device registered", "device", deviceID, "name", name)
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) scan(w http.ResponseWriter, r *http.Request) {
	// The cycle may be shared with the scheduler: it runs under the server's
	// lifetime, so a client disconnect does not cut it short but shutdown does.
	report, joined := s.deps.Scheduler.Trigger(s.lifetime)
	writeJSON(w, http.StatusOK, newScanResponse(report, joined, s.deps.FoldersScanned))
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	deviceID, err := s.uploadingDevice(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "X-Device-ID header is required")
		return
	}

	if s.deps.MaxUploadBytes > 0 {
		// Leave room for the multipart envelope.
		r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes+1<<20)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer file.Close()

	tmpPath, err := s.spool(file)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		s.internalError(w, "spool upload", err)
		return
	}
	defer os.Remove(tmpPath)

	result, err := s.deps.Files.IngestFile(r.Context(), backup.IngestRequest{
		Path:        tmpPath,
		Name:        uploadName(header.Filename),
		DeviceID:    deviceID,
		DeviceLabel: r.Header.Get(deviceLabelHeader),
	})
	if err != nil {
		s.writeServiceError(w, "ingest upload", err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"success":      true,
		"duplicate":    result.Duplicate,
		"file_id":      result.Record.ContentHash,
		"download_url": result.Record.RemoteURL,
		"file":         newFileResponse(result.Record),
	})
}

// uploadingDevice returns the device named by a bearer token, or the
// X-Device-ID header when no token is presented.
func (s *Server) uploadingDevice(r *http.Request) (string, error) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			return "", errors.New("unsupported authorization scheme")
		}
		deviceID, err := s.deps.Guard.VerifyDeviceToken(strings.TrimSpace(token))
		if err != nil {
			return "", errors.New("invalid device token")
		}
		return deviceID, nil
	}
	return strings.TrimSpace(r.Header.Get(deviceIDHeader)), nil
}

// spool copies an uploaded part to a temp file in the upload directory.
func (s *Server) spool(src io.Reader) (string, error) {
	if err := os.MkdirAll(s.deps.UploadDir, 0o700); err != nil {
		return "", fmt.Errorf("creating upload directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.deps.UploadDir, "upload-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	return tmp.Name(), nil
}

func (s *Server) writeServiceError(w http.ResponseWriter, op string, err error) {
	var (
		validation *backup.ValidationError
		remote     *backup.RemoteStoreError
	)
	switch {
	case errors.Is(err, backup.ErrNotFound):
		writeError(w, http.StatusNotFound, "file not found")
	case errors.As(err, &validation):
		writeError(w, http.StatusUnprocessableEntity, validation.Reason)
	case errors.As(err, &remote):
		s.deps.Logger.Error(op+" failed", "error", err)
		writeError(w, http.StatusBadGateway, "remote store "+remote.Op+" failed")
	default:
		s.internalError(w, op, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.deps.Logger.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// uploadName strips any client-side directories from a multipart file name.
func uploadName(raw string) string {
	name := path.Base(strings.ReplaceAll(raw, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}
