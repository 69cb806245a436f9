package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rzpsarthak13/docbridge/internal/collection"
	"github.com/rzpsarthak13/docbridge/internal/core"
)

// TargetStore persists target snapshots in a KVStore, one key per
// collection. Snapshots are only read back when the client asks for them.
type TargetStore struct {
	kv     core.KVStore
	prefix string
}

// NewTargetStore creates a store writing keys under prefix.
func NewTargetStore(kv core.KVStore, prefix string) *TargetStore {
	if prefix == "" {
		prefix = "docbridge:targets:"
	}
	return &TargetStore{kv: kv, prefix: prefix}
}

func (s *TargetStore) key(name string) string {
	return s.prefix + name
}

// Save writes the snapshot of a collection without expiry.
func (s *TargetStore) Save(ctx context.Context, name string, targets Targets) error {
	data, err := json.Marshal(targets)
	if err != nil {
		return fmt.Errorf("failed to encode targets of %s: %w", name, err)
	}
	if err := s.kv.Set(ctx, s.key(name), data, 0); err != nil {
		return fmt.Errorf("failed to save targets of %s: %w", name, err)
	}
	return nil
}

// Load reads the snapshot of a collection. found is false when none was saved.
func (s *TargetStore) Load(ctx context.Context, name string) (targets Targets, found bool, err error) {
	data, err := s.kv.Get(ctx, s.key(name))
	if errors.Is(err, core.ErrKeyNotFound) {
		return Targets{}, false, nil
	}
	if err != nil {
		return Targets{}, false, fmt.Errorf("failed to load targets of %s: %w", name, err)
	}
	if err := json.Unmarshal(data, &targets); err != nil {
		return Targets{}, false, fmt.Errorf("failed to decode targets of %s: %w", name, err)
	}
	if _, err := collection.ParseReadTarget(string(targets.Read)); err != nil {
		return Targets{}, false, fmt.Errorf("stored targets of %s: %w", name, err)
	}
	if _, err := collection.ParseWriteTarget(string(targets.Write)); err != nil {
		return Targets{}, false, fmt.Errorf("stored targets of %s: %w", name, err)
	}
	return targets, true, nil
}

// Delete removes the snapshot of a collection.
func (s *TargetStore) Delete(ctx context.Context, name string) error {
	return s.kv.Delete(ctx, s.key(name))
}

// OnSwitch saves the new targets, which makes the store a SwitchHook.
func (s *TargetStore) OnSwitch(ctx context.Context, name string, from, to Targets) error {
	zap.S().Infof("[SWITCH] Persisting targets of %s: read %s->%s, write %s->%s", name, from.Read, to.Read, from.Write, to.Write)
	return s.Save(ctx, name, to)
}

var _ SwitchHook = (*TargetStore)(nil)
