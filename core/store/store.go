// Package store provides the keyed persistence used to carry dialogue state
// across stateless bot invocations. Implementations must treat values as
// opaque bytes and honor optional per-entry TTLs.
package store

import (
	"context"
	"time"
)

// Store is a minimal keyed byte store with optional TTL support.
type Store interface {
	// Has reports whether a live entry exists for the key.
	Has(ctx context.Context, key string) (bool, error)
	// Get returns the value for the key and whether it was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set writes the value under the key. A non-positive ttl stores the
	// entry without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes the entry; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Prefixed wraps a store so every key gets a fixed prefix. It is used to
// namespace dialogue state entries within a shared store.
func Prefixed(s Store, prefix string) Store {
	if prefix == "" {
		return s
	}
	return &prefixedStore{inner: s, prefix: prefix}
}

type prefixedStore struct {
	inner  Store
	prefix string
}

func (p *prefixedStore) Has(ctx context.Context, key string) (bool, error) {
	return p.inner.Has(ctx, p.prefix+key)
}

func (p *prefixedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.inner.Get(ctx, p.prefix+key)
}

func (p *prefixedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.inner.Set(ctx, p.prefix+key, value, ttl)
}

func (p *prefixedStore) Delete(ctx context.Context, key string) error {
	return p.inner.Delete(ctx, p.prefix+key)
}
