// Package persistence selects a concrete entity store backend from
// configuration.
package persistence

import (
	"context"
	"fmt"
	"os"
	"strings"

	"permitdesk/internal/infra/persistence/memory"
	"permitdesk/internal/infra/persistence/postgres"
	"permitdesk/internal/infra/persistence/sqlite"
	"permitdesk/pkg/domain"
)

// Driver identifies a concrete entity store backend implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory (tests, dev default)
	DriverSQLite   Driver = "sqlite"   // single-file embedded store
	DriverPostgres Driver = "postgres" // shared server-backed store
)

// OpenFromEnv builds the entity store selected by PERMITDESK_STORE_DRIVER.
// SQLite reads PERMITDESK_SQLITE_PATH; postgres reads
// PERMITDESK_POSTGRES_DSN.
func OpenFromEnv(ctx context.Context) (domain.EntityStore, error) {
	driver := Driver(strings.ToLower(os.Getenv("PERMITDESK_STORE_DRIVER")))
	if driver == "" {
		driver = DriverMemory
	}
	switch driver {
	case DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite:
		path := os.Getenv("PERMITDESK_SQLITE_PATH")
		if path == "" {
			path = "permitdesk.db"
		}
		return sqlite.NewStore(path)
	case DriverPostgres:
		dsn := os.Getenv("PERMITDESK_POSTGRES_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("postgres driver requires PERMITDESK_POSTGRES_DSN")
		}
		return postgres.NewStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
