package store

import (
	"context"
	"fmt"
)

// DriverMemory selects the in-process store.
const DriverMemory = "memory"

// Open builds the store selected by driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverPostgres, DriverSQLite:
		return OpenSQL(ctx, driver, dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}
