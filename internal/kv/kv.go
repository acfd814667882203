// Package kv defines the key-value collaborator the protocol core persists
// through, plus SQLite and Postgres backends. The interface is deliberately
// narrow — get, put, prefix listing — because the core's correctness
// arguments assume exactly this surface and nothing stronger. Backends that
// can do atomic conditional writes additionally implement ConditionalStore.
package kv

import "context"

// Store is the minimal durable key-value surface: flat keys, opaque values,
// key-prefixed listing. No native transactions.
type Store interface {
	// Get returns the value for key, or found=false when absent.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Put stores value under key, overwriting any existing value.
	Put(ctx context.Context, key string, value []byte) error

	// List returns up to limit keys with the given prefix, in lexicographic
	// order, strictly after cursor. An empty next cursor means the listing
	// is complete. Pass an empty cursor to start from the beginning.
	List(ctx context.Context, prefix, cursor string, limit int) (keys []string, next string, err error)
}

// ConditionalStore is implemented by backends that can perform an atomic
// create-if-absent, letting check-then-write races be resolved by the store
// itself rather than by in-process locking alone.
type ConditionalStore interface {
	Store

	// PutIfAbsent stores value under key only if the key does not exist.
	// It returns true if the write happened, false if the key was already
	// present.
	PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
}

// prefixUpperBound returns the smallest string greater than every key with
// the given prefix, for range scans. Empty when no bound exists.
func prefixUpperBound(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}
