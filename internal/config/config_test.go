package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		DeviceID:    "device-abc",
		DeviceLabel: "Pixel 7",
		BaseDir:     "/home/user/.local/share/autobackup",
		LogDir:      "/home/user/.local/share/autobackup/log",
		Backup: BackupConfig{
			MonitoredFolders:    []string{"/sdcard/DCIM/Camera"},
			AllowedExtensions:   []string{".jpg", ".PDF"},
			MaxFileSizeBytes:    1 << 20,
			ScanIntervalSeconds: 60,
			Tags:                []string{"auto_backup"},
			MembershipPath:      "/home/user/.local/share/autobackup/processed_files.json",
		},
		Remote:   RemoteConfig{Type: "s3", Name: "cloud", S3Bucket: "backups", S3Region: "eu-west-1"},
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/autobackup/db"},
		Access:   AccessConfig{OwnerID: 42, APIKey: "key", TokenSecret: "0123456789abcdef", TokenTTLHours: 24},
		Server:   ServerConfig{Listen: "127.0.0.1:9000"},
		Filesystem: FilesystemConfig{
			Ignore: []string{"*.tmp", ".thumbnails"},
		},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.DeviceID != original.DeviceID {
		t.Errorf("DeviceID = %q, want %q", got.DeviceID, original.DeviceID)
	}
	if got.DeviceLabel != original.DeviceLabel {
		t.Errorf("DeviceLabel = %q, want %q", got.DeviceLabel, original.DeviceLabel)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if len(got.Backup.MonitoredFolders) != 1 || got.Backup.MonitoredFolders[0] != "/sdcard/DCIM/Camera" {
		t.Errorf("Backup.MonitoredFolders = %v", got.Backup.MonitoredFolders)
	}
	if len(got.Backup.AllowedExtensions) != 2 {
		t.Fatalf("len(Backup.AllowedExtensions) = %d, want 2", len(got.Backup.AllowedExtensions))
	}
	if got.Backup.MaxFileSizeBytes != 1<<20 {
		t.Errorf("Backup.MaxFileSizeBytes = %d, want %d", got.Backup.MaxFileSizeBytes, 1<<20)
	}
	if got.Backup.ScanInterval() != time.Minute {
		t.Errorf("Backup.ScanInterval() = %v, want %v", got.Backup.ScanInterval(), time.Minute)
	}
	if got.Remote.Type != "s3" || got.Remote.S3Bucket != "backups" {
		t.Errorf("Remote = %+v", got.Remote)
	}
	if got.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want %q", got.Database.Type, "sqlite")
	}
	if got.Access.OwnerID != 42 {
		t.Errorf("Access.OwnerID = %d, want 42", got.Access.OwnerID)
	}
	if got.Access.TokenTTL() != 24*time.Hour {
		t.Errorf("Access.TokenTTL() = %v, want 24h", got.Access.TokenTTL())
	}
	if got.Server.Listen != "127.0.0.1:9000" {
		t.Errorf("Server.Listen = %q", got.Server.Listen)
	}
	if len(got.Filesystem.Ignore) != 2 {
		t.Fatalf("len(Filesystem.Ignore) = %d, want 2", len(got.Filesystem.Ignore))
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("device-1", "/data/ab")

	if cfg.DeviceID != "device-1" {
		t.Errorf("DeviceID = %q, want %q", cfg.DeviceID, "device-1")
	}
	if cfg.DeviceLabel != DefaultDeviceLabel {
		t.Errorf("DeviceLabel = %q, want %q", cfg.DeviceLabel, DefaultDeviceLabel)
	}
	if cfg.LogDir != "/data/ab/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/ab/log")
	}
	if cfg.Backup.MembershipPath != "/data/ab/processed_files.json" {
		t.Errorf("Backup.MembershipPath = %q", cfg.Backup.MembershipPath)
	}
	if cfg.Backup.MaxFileSizeBytes != 100*1024*1024 {
		t.Errorf("Backup.MaxFileSizeBytes = %d, want 100 MiB", cfg.Backup.MaxFileSizeBytes)
	}
	if cfg.Backup.ScanInterval() != 5*time.Minute {
		t.Errorf("Backup.ScanInterval() = %v, want 5m", cfg.Backup.ScanInterval())
	}
	if len(cfg.Backup.AllowedExtensions) != len(DefaultAllowedExtensions) {
		t.Errorf("len(AllowedExtensions) = %d, want %d", len(cfg.Backup.AllowedExtensions), len(DefaultAllowedExtensions))
	}
	if len(cfg.Backup.Tags) != 1 || cfg.Backup.Tags[0] != "auto_backup" {
		t.Errorf("Backup.Tags = %v", cfg.Backup.Tags)
	}
	if cfg.Access.TokenTTL() != 30*24*time.Hour {
		t.Errorf("Access.TokenTTL() = %v, want 30 days", cfg.Access.TokenTTL())
	}

	// Defaults must not alias the package-level slices.
	cfg.Backup.AllowedExtensions[0] = ".changed"
	if DefaultAllowedExtensions[0] == ".changed" {
		t.Error("NewConfig() shares AllowedExtensions with DefaultAllowedExtensions")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "missing device id",
			mutate:  func(c *Config) { c.DeviceID = "" },
			wantErr: "device_id",
		},
		{
			name:    "no extensions",
			mutate:  func(c *Config) { c.Backup.AllowedExtensions = nil },
			wantErr: "allowed_extensions",
		},
		{
			name:    "negative size limit",
			mutate:  func(c *Config) { c.Backup.MaxFileSizeBytes = -1 },
			wantErr: "max_file_size_bytes",
		},
		{
			name:    "negative interval",
			mutate:  func(c *Config) { c.Backup.ScanIntervalSeconds = -5 },
			wantErr: "scan_interval_seconds",
		},
		{
			name:    "short token secret",
			mutate:  func(c *Config) { c.Access.TokenSecret = "short" },
			wantErr: "token_secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("device-1", "/data/ab")
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "autobackup.toml")
		cfg := NewConfig("d1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("config file not created: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("config file mode = %o, want 600", perm)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "autobackup.toml")
		cfg := NewConfig("d1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "autobackup.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.DeviceID != "read-test" {
			t.Errorf("DeviceID = %q, want %q", got.DeviceID, "read-test")
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/autobackup.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
