package registry

import (
	"context"
	"sync"

	"github.com/rzpsarthak13/docbridge/internal/collection"
)

// Targets is the read/write target pair of a collection.
type Targets struct {
	Read  collection.ReadTarget  `json:"read_target"`
	Write collection.WriteTarget `json:"write_target"`
}

// SwitchHook is notified after a collection's targets change. A hook error
// reverts the switch.
type SwitchHook interface {
	OnSwitch(ctx context.Context, name string, from, to Targets) error
}

// SwitchHookFunc adapts a function to SwitchHook.
type SwitchHookFunc func(ctx context.Context, name string, from, to Targets) error

// OnSwitch calls f.
func (f SwitchHookFunc) OnSwitch(ctx context.Context, name string, from, to Targets) error {
	return f(ctx, name, from, to)
}

// LifecycleManager runs the registered switch hooks in registration order.
type LifecycleManager struct {
	mu    sync.RWMutex
	hooks []SwitchHook
}

// NewLifecycleManager creates a lifecycle manager without hooks.
func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{}
}

// RegisterHook adds a hook.
func (lm *LifecycleManager) RegisterHook(hook SwitchHook) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.hooks = append(lm.hooks, hook)
}

// ExecuteSwitchHooks runs every hook and stops at the first error.
func (lm *LifecycleManager) ExecuteSwitchHooks(ctx context.Context, name string, from, to Targets) error {
	lm.mu.RLock()
	hooks := make([]SwitchHook, len(lm.hooks))
	copy(hooks, lm.hooks)
	lm.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook.OnSwitch(ctx, name, from, to); err != nil {
			return err
		}
	}
	return nil
}

// HookCount returns the number of registered hooks.
func (lm *LifecycleManager) HookCount() int {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return len(lm.hooks)
}
