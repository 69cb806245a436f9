package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rzpsarthak13/docbridge/internal/collection"
)

// ErrNotRegistered is returned for collections the registry does not know.
var ErrNotRegistered = errors.New("collection is not registered")

// CollectionMetadata describes a registered collection.
type CollectionMetadata struct {
	Name       string
	Collection *collection.SwitchingCollection
	Config     InternalCollectionConfig

	// SwitchedAt is when the targets last changed through the registry.
	SwitchedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CollectionRegistry holds the routing collections by name and applies
// target switches together with the lifecycle hooks.
type CollectionRegistry struct {
	mu          sync.RWMutex
	collections map[string]*CollectionMetadata
	configMgr   *ConfigManager
	lifecycle   *LifecycleManager
}

// NewCollectionRegistry creates a registry. A nil lifecycle manager is
// replaced by an empty one.
func NewCollectionRegistry(configMgr *ConfigManager, lifecycle *LifecycleManager) *CollectionRegistry {
	if lifecycle == nil {
		lifecycle = NewLifecycleManager()
	}
	return &CollectionRegistry{
		collections: make(map[string]*CollectionMetadata),
		configMgr:   configMgr,
		lifecycle:   lifecycle,
	}
}

// Register adds or replaces a collection. Re-registering keeps the original
// creation and switch times.
func (r *CollectionRegistry) Register(name string, coll *collection.SwitchingCollection) error {
	if name == "" {
		return fmt.Errorf("collection name cannot be empty")
	}
	if coll == nil {
		return fmt.Errorf("collection cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	metadata := &CollectionMetadata{
		Name:       name,
		Collection: coll,
		Config:     r.configMgr.GetCollectionConfig(name),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if existing, exists := r.collections[name]; exists {
		metadata.CreatedAt = existing.CreatedAt
		metadata.SwitchedAt = existing.SwitchedAt
	}
	r.collections[name] = metadata
	return nil
}

// Get returns a registered collection.
func (r *CollectionRegistry) Get(name string) (*collection.SwitchingCollection, error) {
	metadata, err := r.GetMetadata(name)
	if err != nil {
		return nil, err
	}
	return metadata.Collection, nil
}

// GetMetadata returns a copy of a collection's metadata.
func (r *CollectionRegistry) GetMetadata(name string) (*CollectionMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metadata, exists := r.collections[name]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}
	copied := *metadata
	return &copied, nil
}

// Targets returns the current targets of a collection.
func (r *CollectionRegistry) Targets(name string) (Targets, error) {
	coll, err := r.Get(name)
	if err != nil {
		return Targets{}, err
	}
	return Targets{Read: coll.ReadTarget(), Write: coll.WriteTarget()}, nil
}

// SetTargets switches a collection and then runs the switch hooks. When a
// hook fails the previous targets are restored.
func (r *CollectionRegistry) SetTargets(ctx context.Context, name string, to Targets) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	metadata, exists := r.collections[name]
	if !exists {
		return fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}
	coll := metadata.Collection
	from := Targets{Read: coll.ReadTarget(), Write: coll.WriteTarget()}

	if err := coll.SetTargets(to.Read, to.Write); err != nil {
		return err
	}
	if err := r.lifecycle.ExecuteSwitchHooks(ctx, name, from, to); err != nil {
		if rbErr := coll.SetTargets(from.Read, from.Write); rbErr != nil {
			zap.S().Errorf("[SWITCH] Failed to restore targets of %s: %v", name, rbErr)
		}
		return fmt.Errorf("switch hook failed for %s: %w", name, err)
	}

	now := time.Now()
	metadata.SwitchedAt = &now
	metadata.UpdatedAt = now
	zap.S().Infof("[SWITCH] %s now reads from %s and writes to %s", name, to.Read, to.Write)
	return nil
}

// Unregister removes a collection.
func (r *CollectionRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.collections[name]; !exists {
		return fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}
	delete(r.collections, name)
	return nil
}

// List returns the registered collection names in sorted order.
func (r *CollectionRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.collections))
	for name := range r.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListPostgres returns the collections currently reading from Postgres.
func (r *CollectionRegistry) ListPostgres() []string {
	var names []string
	for _, name := range r.List() {
		if coll, err := r.Get(name); err == nil && coll.IsPostgres() {
			names = append(names, name)
		}
	}
	return names
}

// Count returns the number of registered collections.
func (r *CollectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.collections)
}

// GetLifecycleManager returns the registry's lifecycle manager.
func (r *CollectionRegistry) GetLifecycleManager() *LifecycleManager {
	return r.lifecycle
}
