package vault

import (
	"context"
	"fmt"

	"autobackup/internal/backup"
	"autobackup/internal/config"
)

// NewRemoteStoreFromConfig creates a RemoteStore implementation based on the remote config type.
func NewRemoteStoreFromConfig(ctx context.Context, cfg config.RemoteConfig) (backup.RemoteStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem remote requires fs_root to be set")
		}
		v, err := NewFileSystemVault(cfg.Name, cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		if err := v.ValidateSetup(); err != nil {
			return nil, err
		}
		return v, nil
	case "s3":
		return NewS3Vault(ctx, cfg.Name, S3Options{
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
}
