package database

import (
	"fmt"
	"os"
	"path/filepath"

	"romba-go/internal/config"
	"romba-go/internal/database/migrations"
)

// IndexFile is the name of the index database inside index.data_dir.
const IndexFile = "romba.db"

// NewIndexFromConfig opens the configured index and migrates it to the
// latest schema. A missing database file is created empty.
func NewIndexFromConfig(cfg config.IndexConfig) (*SQLiteIndex, error) {
	var path string
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite index")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
		path = filepath.Join(cfg.DataDir, IndexFile)
	case "memory":
		path = ":memory:"
	default:
		return nil, fmt.Errorf("unknown index type: %s", cfg.Type)
	}

	idx, err := NewSQLiteIndex(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(idx.db); err != nil {
		idx.Close()
		return nil, fmt.Errorf("migrating index: %w", err)
	}
	return idx, nil
}
