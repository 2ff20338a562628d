// Package store provides the generic keyed persistence used for
// session records. Only an in-memory backend ships: sessions survive
// transport reconnects, not process restarts, so nothing durable is
// required.
package store

import "context"

// Store is a keyed collection of T. Implementations are safe for
// concurrent use.
type Store[T any] interface {
	// Save stores or replaces the value under key.
	Save(ctx context.Context, key string, value T) error

	// Load returns the value under key, or ErrNotFound.
	Load(ctx context.Context, key string) (T, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns every key, in no particular order.
	List(ctx context.Context) ([]string, error)

	// Count returns the number of stored values.
	Count(ctx context.Context) (int64, error)

	// Close releases the store; every later call fails with
	// ErrStoreClosed.
	Close() error
}
