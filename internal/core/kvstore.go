package core

import (
	"context"
	"time"
)

// KVStore defines the key-value operations needed to persist small pieces of
// operator state, such as the read/write target snapshot of a collection.
// Implementations exist for Redis, DynamoDB and an in-process map.
type KVStore interface {
	// Get retrieves a value by key from the store.
	// Returns ErrKeyNotFound (wrapped) if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a key-value pair with an optional TTL.
	// If ttl is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key from the store.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in the store.
	Exists(ctx context.Context, key string) (bool, error)

	// Close closes the connection to the KV store and releases resources.
	Close() error
}
