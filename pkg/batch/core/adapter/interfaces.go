// Package adapter defines what every external resource connection has in common.
package adapter

import (
	"context"
)

// ResourceConnection represents a generic connection to any resource (e.g., database, storage).
type ResourceConnection interface {
	// Close closes the resource connection.
	Close() error
	// Type returns the type of the resource (e.g., "mysql", "gs").
	Type() string
	// Name returns the connection name (e.g., "default").
	Name() string
}

// ResourceConnectionResolver resolves a named connection, re-establishing it if necessary.
type ResourceConnectionResolver interface {
	ResolveConnection(ctx context.Context, name string) (ResourceConnection, error)
}
