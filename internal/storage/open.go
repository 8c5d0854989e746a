package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Supported storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and configures a storage backend
type Config struct {
	// Driver is "sqlite" (default) or "postgres"
	Driver string

	// Path is the SQLite database file; ":memory:" opens a private in-memory database
	Path string

	// DSN is the PostgreSQL connection string
	DSN string

	// Dimension sizes the pgvector columns; ignored by SQLite
	Dimension int
}

// Open returns the Storage described by cfg, creating the SQLite parent
// directory when needed.
func Open(ctx context.Context, cfg Config) (Storage, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite storage requires a database path")
		}
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return NewSQLiteStorage(cfg.Path)
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres storage requires a DSN")
		}
		return NewPostgresStorage(ctx, cfg.DSN, cfg.Dimension)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
