// Package remote defines the key-value store abstraction that documents and
// the index record are persisted to, with HTTP, single-file, and in-memory
// backends.
package remote

import "context"

// Store is the interface for remote key-value operations. Implementations
// wrap connectivity failures in apperr.ErrUnreachable so callers can tell
// "no backend" apart from "backend said no".
type Store interface {
	// Get returns the value at key. The second return is false when the key
	// is absent, which is not an error.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key succeeds.
	Remove(ctx context.Context, key string) error
}
