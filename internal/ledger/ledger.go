package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/halcyonics/beacon/internal/kv"
)

// Ledger applies the interaction protocol's state transitions against the kv
// collaborator. Concurrency strategy: every check-then-write sequence runs
// under an in-process per-key lock; when the store also supports atomic
// conditional writes (kv.ConditionalStore) the first-write-wins records are
// created with PutIfAbsent so the invariants hold across processes too.
type Ledger struct {
	store kv.Store
	cond  kv.ConditionalStore // nil when the backend has no conditional writes
	locks *keyedMutex
}

// New creates a Ledger over store.
func New(store kv.Store) *Ledger {
	l := &Ledger{
		store: store,
		locks: newKeyedMutex(),
	}
	if c, ok := store.(kv.ConditionalStore); ok {
		l.cond = c
	}
	return l
}

// getJSON loads and decodes the record at key into out. Returns false when
// the key is absent.
func (l *Ledger) getJSON(ctx context.Context, key string, out any) (bool, error) {
	raw, found, err := l.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load %q: %w", key, err)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// putJSON encodes v and stores it at key.
func (l *Ledger) putJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	if err := l.store.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("store %q: %w", key, err)
	}
	return nil
}

// putJSONIfAbsent stores v at key only if the key does not exist, using the
// backend's conditional write. Callers must have checked l.cond != nil.
func (l *Ledger) putJSONIfAbsent(ctx context.Context, key string, v any) (bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("encode %q: %w", key, err)
	}
	ok, err := l.cond.PutIfAbsent(ctx, key, raw)
	if err != nil {
		return false, fmt.Errorf("store %q: %w", key, err)
	}
	return ok, nil
}
