// Package storage provides key-value backends for the persisted launch state.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned by a backend used after Close
var ErrClosed = errors.New("storage: backend closed")

// Backend is a durable string key-value store
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Apply writes set and removes del as one atomic batch
	Apply(ctx context.Context, set map[string]string, del []string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// Open returns the backend for the named driver
func Open(driver, path string) (Backend, error) {
	switch driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}
