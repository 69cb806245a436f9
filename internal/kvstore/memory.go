package kvstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/registry"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryKVStore is a process-local core.KVStore. It also provides the list
// operations of the backfill Redis queue.
type MemoryKVStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	lists   map[string][][]byte
	closed  bool
	now     func() time.Time
}

// NewMemoryKVStore creates an empty store.
func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{
		entries: make(map[string]memoryEntry),
		lists:   make(map[string][][]byte),
		now:     time.Now,
	}
}

// Get returns a copy of the value stored under key.
func (m *MemoryKVStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, core.ErrStoreClosed
	}

	entry, ok := m.entries[key]
	if !ok || entry.expired(m.now()) {
		delete(m.entries, key)
		return nil, fmt.Errorf("%w: %s", core.ErrKeyNotFound, key)
	}
	return append([]byte(nil), entry.value...), nil
}

// Set stores a copy of value. A zero ttl never expires.
func (m *MemoryKVStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return core.ErrStoreClosed
	}

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = entry
	return nil
}

// Delete removes key.
func (m *MemoryKVStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return core.ErrStoreClosed
	}
	delete(m.entries, key)
	delete(m.lists, key)
	return nil
}

// Exists reports whether key holds an unexpired value.
func (m *MemoryKVStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, core.ErrStoreClosed
	}
	entry, ok := m.entries[key]
	return ok && !entry.expired(m.now()), nil
}

// ListPush appends value to the list at key.
func (m *MemoryKVStore) ListPush(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return core.ErrStoreClosed
	}
	m.lists[key] = append(m.lists[key], append([]byte(nil), value...))
	return nil
}

// ListPop removes the first element of the list at key. It returns nil for
// an empty list.
func (m *MemoryKVStore) ListPop(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, core.ErrStoreClosed
	}
	list := m.lists[key]
	if len(list) == 0 {
		return nil, nil
	}
	m.lists[key] = list[1:]
	return list[0], nil
}

// ListLength returns the length of the list at key.
func (m *MemoryKVStore) ListLength(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, core.ErrStoreClosed
	}
	return int64(len(m.lists[key])), nil
}

// Close drops every entry.
func (m *MemoryKVStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	m.lists = nil
	return nil
}

// MemoryKVStoreFactory creates MemoryKVStores.
type MemoryKVStoreFactory struct{}

// Type returns "memory".
func (f *MemoryKVStoreFactory) Type() string {
	return "memory"
}

// Validate accepts any configuration of type memory.
func (f *MemoryKVStoreFactory) Validate(config KVStoreConfig) error {
	if config.Type != "memory" {
		return fmt.Errorf("invalid type for memory factory: %s", config.Type)
	}
	return nil
}

// Create returns a new empty store.
func (f *MemoryKVStoreFactory) Create(KVStoreConfig) (core.KVStore, error) {
	return NewMemoryKVStore(), nil
}

// MemoryConfigValidator validates the target store section for type memory.
type MemoryConfigValidator struct{}

// Type returns "memory".
func (v *MemoryConfigValidator) Type() string {
	return "memory"
}

// Validate checks only the type.
func (v *MemoryConfigValidator) Validate(config *registry.InternalConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if config.TargetStore.Type != "memory" {
		return fmt.Errorf("invalid type for memory validator: %s", config.TargetStore.Type)
	}
	return nil
}

func init() {
	RegisterFactory(&MemoryKVStoreFactory{})
	registry.RegisterValidator(&MemoryConfigValidator{})
}
