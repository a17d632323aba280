// Package storage opens the run-record backend selected by configuration.
package storage

import (
	"context"
	"fmt"
	"os"

	"eggjnd/internal/infra/persistence/memory"
	"eggjnd/internal/infra/persistence/postgres"
	"eggjnd/internal/infra/persistence/sqlite"
	"eggjnd/pkg/domain"
)

// Driver identifies a run-record backend.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory only (tests / dry runs)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Config selects the backend.
type Config struct {
	Driver      Driver `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path,omitempty"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
}

// ConfigFromEnv overlays environment settings on base:
//
//	EGGJND_STORAGE_DRIVER: memory|sqlite|postgres
//	EGGJND_SQLITE_PATH: path to sqlite file (default ./eggjnd.db)
//	EGGJND_POSTGRES_DSN: postgres DSN when driver=postgres
func ConfigFromEnv(base Config) Config {
	cfg := base
	if v := os.Getenv("EGGJND_STORAGE_DRIVER"); v != "" {
		cfg.Driver = Driver(v)
	}
	if v := os.Getenv("EGGJND_SQLITE_PATH"); v != "" {
		cfg.SQLitePath = v
	}
	if v := os.Getenv("EGGJND_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	return cfg
}

// OpenRunStore returns the configured store. An empty driver selects sqlite.
func OpenRunStore(ctx context.Context, cfg Config) (domain.RunStore, error) {
	switch cfg.Driver {
	case DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite, "":
		return sqlite.NewStore(ctx, cfg.SQLitePath)
	case DriverPostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

// NewMemory returns an empty in-memory run store.
func NewMemory() domain.RunStore { return memory.NewStore() }
