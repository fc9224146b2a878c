// ABOUTME: Store constructor that selects a backend by driver name
// ABOUTME: Maps sqlite, sqlite3 and postgres drivers onto their implementations

package store

import (
	"context"
	"fmt"
)

// DriverPostgres selects PostgresStore.
const DriverPostgres = "postgres"

// Open returns the store for driver. dsn is a file path for the SQLite drivers
// and a connection URL for postgres.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", DriverModernc:
		return NewSQLiteStore(dsn)
	case DriverCGO:
		return NewSQLiteStoreWithDriver(DriverCGO, dsn)
	case DriverPostgres:
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}
