// Package api exposes the backup catalog and sync operations over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"autobackup/internal/backup"
	"autobackup/internal/model"
)

const (
	apiKeyHeader      = "X-API-Key"
	deviceIDHeader    = "X-Device-ID"
	deviceLabelHeader = "X-Device-Label"
)

// FileService ingests pushed files and deletes backed-up ones.
type FileService interface {
	IngestFile(ctx context.Context, req backup.IngestRequest) (*backup.IngestResult, error)
	DeleteFile(ctx context.Context, hash string) (*model.FileRecord, error)
}

// CycleTrigger runs a sync cycle or joins the running one.
type CycleTrigger interface {
	Trigger(ctx context.Context) (*backup.SyncReport, bool)
}

// KeyChecker authorises API clients and devices.
type KeyChecker interface {
	IsValidAPIKey(key string) bool
	IssueDeviceToken(deviceID string) (string, error)
	VerifyDeviceToken(token string) (string, error)
}

// Deps are the collaborators of a Server.
type Deps struct {
	Catalog   backup.Catalog
	Remote    backup.RemoteStore
	Files     FileService
	Scheduler CycleTrigger
	Guard     KeyChecker
	IDs       backup.IDGenerator
	Logger    backup.Logger

	// UploadDir holds pushed files until they are ingested.
	UploadDir string
	// MaxUploadBytes caps request bodies on the upload endpoint. Zero means
	// no limit.
	MaxUploadBytes int64
	// Lifetime bounds work that outlives a single request, such as a scan
	// started through the API. ListenAndServe replaces it with its own ctx.
	// Defaults to context.Background().
	Lifetime context.Context
	// FoldersScanned is reported by the scan endpoint.
	FoldersScanned int
	Version        string
}

// Server serves the HTTP API.
type Server struct {
	deps     Deps
	lifetime context.Context
}

// NewServer creates a Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = backup.NewNopLogger()
	}
	if deps.IDs == nil {
		deps.IDs = backup.UUIDGenerator{}
	}
	lifetime := deps.Lifetime
	if lifetime == nil {
		lifetime = context.Background()
	}
	return &Server{deps: deps, lifetime: lifetime}
}

// Handler returns the routed handler. Every /api/ route requires a valid
// X-API-Key header.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/status", s.status)
	api.HandleFunc("GET /api/files", s.listFiles)
	api.HandleFunc("GET /api/search", s.search)
	api.HandleFunc("GET /api/file/{hash}", s.getFile)
	api.HandleFunc("DELETE /api/file/{hash}", s.deleteFile)
	api.HandleFunc("GET /api/stats", s.stats)
	api.HandleFunc("GET /api/activity", s.activity)
	api.HandleFunc("GET /api/devices", s.devices)
	api.HandleFunc("GET /api/remote", s.remoteObjects)
	api.HandleFunc("POST /api/device/register", s.registerDevice)
	api.HandleFunc("POST /api/scan", s.scan)
	api.HandleFunc("POST /api/upload", s.upload)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.root)
	mux.Handle("/api/", s.requireAPIKey(api))
	return s.logRequests(mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. Scans started through the API are cancelled with ctx.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.lifetime = ctx
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}
	s.deps.Logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(apiKeyHeader)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing API key")
			return
		}
		if !s.deps.Guard.IsValidAPIKey(key) {
			writeError(w, http.StatusForbidden, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.deps.Logger.Debug("request",
			"request_id", s.deps.IDs.New(),
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
