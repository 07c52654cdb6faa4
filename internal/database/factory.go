package database

import (
	"fmt"
	"os"
	"path/filepath"

	"autobackup/internal/backup"
	"autobackup/internal/config"
)

// CatalogFileName is the catalog database file inside the data directory.
const CatalogFileName = "backup_database.db"

// NewCatalogFromConfig creates a SQLiteCatalog based on the database config type.
func NewCatalogFromConfig(cfg config.DatabaseConfig, clock backup.Clock) (*SQLiteCatalog, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteCatalog(filepath.Join(cfg.DataDir, CatalogFileName), clock)
	case "memory":
		return NewSQLiteCatalog(memoryPath, clock)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
