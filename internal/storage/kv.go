// ABOUTME: Interface definition for durable device-local key-value storage.
// ABOUTME: Defines atomic batches and the driver selection used at startup.
package storage

import (
	"context"
	"fmt"
)

// Batch is a set of writes and deletes applied together.
type Batch struct {
	Set    map[string]string
	Delete []string
}

// Empty reports whether the batch has nothing to apply.
func (b Batch) Empty() bool {
	return len(b.Set) == 0 && len(b.Delete) == 0
}

// KeyValue defines durable string storage for client state.
type KeyValue interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Apply writes every entry in the batch, or none of them.
	Apply(ctx context.Context, b Batch) error

	// Close releases any resources held by the store.
	Close() error
}

// Supported storage drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Open returns the key-value store for the configured driver.
func Open(driver, path string) (KeyValue, error) {
	switch driver {
	case "", DriverFile:
		return NewFileKV(path)
	case DriverSQLite:
		return OpenSQLiteKV(path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
