package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied by NewConfig.
const (
	DefaultMaxFileSizeBytes    = 100 * 1024 * 1024
	DefaultScanIntervalSeconds = 300
	DefaultTokenTTLHours       = 30 * 24
	DefaultListen              = "0.0.0.0:8000"
	DefaultDeviceLabel         = "Unknown"
)

// DefaultMonitoredFolders are the device folders watched by a fresh config.
var DefaultMonitoredFolders = []string{
	"/sdcard/DCIM/Camera",
	"/sdcard/DCIM/Screenshots",
	"/sdcard/Download",
	"/sdcard/Documents",
	"/sdcard/Pictures",
	"/sdcard/Music",
	"/sdcard/Movies",
}

// DefaultAllowedExtensions are the file types backed up by a fresh config.
var DefaultAllowedExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp",
	".mp4", ".mkv", ".avi", ".mov", ".wmv", ".flv",
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".txt", ".rtf",
	".mp3", ".wav", ".aac", ".flac", ".m4a",
	".zip", ".rar", ".7z",
	".apk",
}

// DefaultTags are attached to every file uploaded by the sync cycle.
var DefaultTags = []string{"auto_backup"}

// Config represents the main configuration for autobackup.
type Config struct {
	DeviceID    string           `toml:"device_id"`
	DeviceLabel string           `toml:"device_label"`
	BaseDir     string           `toml:"base_dir"`
	LogDir      string           `toml:"log_dir"`
	Backup      BackupConfig     `toml:"backup"`
	Remote      RemoteConfig     `toml:"remote"`
	Database    DatabaseConfig   `toml:"database"`
	Access      AccessConfig     `toml:"access"`
	Server      ServerConfig     `toml:"server"`
	Filesystem  FilesystemConfig `toml:"filesystem"`
}

// BackupConfig controls what the sync cycle picks up and how often it runs.
type BackupConfig struct {
	MonitoredFolders    []string `toml:"monitored_folders"`
	AllowedExtensions   []string `toml:"allowed_extensions"`
	MaxFileSizeBytes    int64    `toml:"max_file_size_bytes"`
	ScanIntervalSeconds int      `toml:"scan_interval_seconds"`
	Tags                []string `toml:"tags"`
	// MembershipPath is the file holding fingerprints already seen by the scanner.
	// Empty keeps the set in memory only.
	MembershipPath string `toml:"membership_path"`
}

// ScanInterval returns the interval between sync cycles.
func (b BackupConfig) ScanInterval() time.Duration {
	return time.Duration(b.ScanIntervalSeconds) * time.Second
}

// RemoteConfig represents configuration for the remote object store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Type string `toml:"type"` // "memory", "filesystem" or "s3"
	Name string `toml:"name"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`
	// S3PublicURL, when set, is the base of the URLs recorded for uploaded objects.
	S3PublicURL string `toml:"s3_public_url,omitempty"`
}

// DatabaseConfig represents configuration for the catalog database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// AccessConfig holds the owner identity and the secrets guarding the API.
type AccessConfig struct {
	OwnerID       int64  `toml:"owner_id"`
	APIKey        string `toml:"api_key"`
	TokenSecret   string `toml:"token_secret"`
	TokenTTLHours int    `toml:"token_ttl_hours"`
}

// TokenTTL returns the lifetime of issued device tokens.
func (a AccessConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLHours) * time.Hour
}

// ServerConfig holds settings for the HTTP API.
type ServerConfig struct {
	Listen string `toml:"listen"`
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// NewConfig creates a new Config with the provided values and defaults for
// everything else. Remote and database types are left for the caller.
func NewConfig(deviceID, baseDir string) *Config {
	return &Config{
		DeviceID:    deviceID,
		DeviceLabel: DefaultDeviceLabel,
		BaseDir:     baseDir,
		LogDir:      filepath.Join(baseDir, "log"),
		Backup: BackupConfig{
			MonitoredFolders:    append([]string(nil), DefaultMonitoredFolders...),
			AllowedExtensions:   append([]string(nil), DefaultAllowedExtensions...),
			MaxFileSizeBytes:    DefaultMaxFileSizeBytes,
			ScanIntervalSeconds: DefaultScanIntervalSeconds,
			Tags:                append([]string(nil), DefaultTags...),
			MembershipPath:      filepath.Join(baseDir, "processed_files.json"),
		},
		Access: AccessConfig{
			TokenTTLHours: DefaultTokenTTLHours,
		},
		Server: ServerConfig{
			Listen: DefaultListen,
		},
	}
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.DeviceID == "" {
		errs = append(errs, errors.New("device_id must be set"))
	}
	if len(c.Backup.AllowedExtensions) == 0 {
		errs = append(errs, errors.New("backup.allowed_extensions must not be empty"))
	}
	if c.Backup.MaxFileSizeBytes < 0 {
		errs = append(errs, errors.New("backup.max_file_size_bytes must not be negative"))
	}
	if c.Backup.ScanIntervalSeconds < 0 {
		errs = append(errs, errors.New("backup.scan_interval_seconds must not be negative"))
	}
	if c.Access.TokenTTLHours < 0 {
		errs = append(errs, errors.New("access.token_ttl_hours must not be negative"))
	}
	if c.Access.TokenSecret != "" && len(c.Access.TokenSecret) < 16 {
		errs = append(errs, errors.New("access.token_secret must be at least 16 characters"))
	}
	return errors.Join(errs...)
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// The file holds secrets, so it is created readable by the owner only.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
