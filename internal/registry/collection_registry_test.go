package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/docbridge/internal/collection"
	"github.com/rzpsarthak13/docbridge/internal/kvstore"
	"github.com/rzpsarthak13/docbridge/internal/pgsql"
	"github.com/rzpsarthak13/docbridge/internal/registry"
	"github.com/rzpsarthak13/docbridge/internal/schema"
)

func newSwitching(name string) *collection.SwitchingCollection {
	table := pgsql.NewTable(name, map[string]schema.Type{"_id": schema.String{}, "title": schema.String{}})
	return collection.NewSwitchingCollection(name,
		collection.NewPgCollection(name, table, nil),
		collection.NewPgCollection(name, table, nil),
	)
}

func newRegistry(t *testing.T, hooks ...registry.SwitchHook) *registry.CollectionRegistry {
	t.Helper()
	lifecycle := registry.NewLifecycleManager()
	for _, h := range hooks {
		lifecycle.RegisterHook(h)
	}
	return registry.NewCollectionRegistry(registry.NewConfigManager(), lifecycle)
}

func TestCollectionRegistry(t *testing.T) {
	reg := newRegistry(t)

	require.NoError(t, reg.Register("posts", newSwitching("posts")))
	require.NoError(t, reg.Register("comments", newSwitching("comments")))
	assert.Error(t, reg.Register("", newSwitching("x")))
	assert.Error(t, reg.Register("x", nil))

	assert.Equal(t, 2, reg.Count())
	assert.Equal(t, []string{"comments", "posts"}, reg.List())
	assert.Empty(t, reg.ListPostgres())

	meta, err := reg.GetMetadata("posts")
	require.NoError(t, err)
	assert.Equal(t, "posts", meta.Config.Table)
	assert.Nil(t, meta.SwitchedAt)

	_, err = reg.Get("users")
	assert.ErrorIs(t, err, registry.ErrNotRegistered)

	require.NoError(t, reg.Unregister("comments"))
	assert.ErrorIs(t, reg.Unregister("comments"), registry.ErrNotRegistered)
	assert.Equal(t, []string{"posts"}, reg.List())
}

func TestSetTargets(t *testing.T) {
	ctx := context.Background()

	var seen []registry.Targets
	hook := registry.SwitchHookFunc(func(_ context.Context, name string, from, to registry.Targets) error {
		assert.Equal(t, "posts", name)
		seen = append(seen, from, to)
		return nil
	})
	reg := newRegistry(t, hook)
	require.NoError(t, reg.Register("posts", newSwitching("posts")))

	to := registry.Targets{Read: collection.ReadPg, Write: collection.WriteBoth}
	require.NoError(t, reg.SetTargets(ctx, "posts", to))

	got, err := reg.Targets("posts")
	require.NoError(t, err)
	assert.Equal(t, to, got)
	assert.Equal(t, []registry.Targets{{Read: collection.ReadMongo, Write: collection.WriteMongo}, to}, seen)
	assert.Equal(t, []string{"posts"}, reg.ListPostgres())

	meta, _ := reg.GetMetadata("posts")
	assert.NotNil(t, meta.SwitchedAt)

	// re-registering keeps the switch time
	require.NoError(t, reg.Register("posts", newSwitching("posts")))
	meta, _ = reg.GetMetadata("posts")
	assert.NotNil(t, meta.SwitchedAt)

	assert.ErrorIs(t, reg.SetTargets(ctx, "users", to), registry.ErrNotRegistered)
	assert.ErrorIs(t, reg.SetTargets(ctx, "posts", registry.Targets{Read: "both", Write: collection.WriteMongo}), collection.ErrInvalidTarget)
}

func TestSetTargetsHookFailureRestores(t *testing.T) {
	boom := errors.New("store unavailable")
	reg := newRegistry(t, registry.SwitchHookFunc(func(context.Context, string, registry.Targets, registry.Targets) error {
		return boom
	}))
	require.NoError(t, reg.Register("posts", newSwitching("posts")))

	err := reg.SetTargets(context.Background(), "posts", registry.Targets{Read: collection.ReadPg, Write: collection.WritePg})
	assert.ErrorIs(t, err, boom)

	got, _ := reg.Targets("posts")
	assert.Equal(t, registry.Targets{Read: collection.ReadMongo, Write: collection.WriteMongo}, got)

	meta, _ := reg.GetMetadata("posts")
	assert.Nil(t, meta.SwitchedAt)
}

func TestSetTargetsConcurrent(t *testing.T) {
	reg := newRegistry(t)
	require.NoError(t, reg.Register("posts", newSwitching("posts")))

	targets := []registry.Targets{
		{Read: collection.ReadMongo, Write: collection.WriteBoth},
		{Read: collection.ReadPg, Write: collection.WriteBoth},
		{Read: collection.ReadPg, Write: collection.WritePg},
	}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(to registry.Targets) {
			defer wg.Done()
			assert.NoError(t, reg.SetTargets(context.Background(), "posts", to))
			_, _ = reg.Targets("posts")
		}(targets[i%len(targets)])
	}
	wg.Wait()

	got, err := reg.Targets("posts")
	require.NoError(t, err)
	assert.Contains(t, targets, got)
}

func TestTargetStore(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemoryKVStore()
	store := registry.NewTargetStore(kv, "")

	_, found, err := store.Load(ctx, "posts")
	require.NoError(t, err)
	assert.False(t, found)

	to := registry.Targets{Read: collection.ReadPg, Write: collection.WriteBoth}
	require.NoError(t, store.Save(ctx, "posts", to))

	raw, err := kv.Get(ctx, "docbridge:targets:posts")
	require.NoError(t, err)
	assert.JSONEq(t, `{"read_target":"pg","write_target":"both"}`, string(raw))

	got, found, err := store.Load(ctx, "posts")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, to, got)

	require.NoError(t, kv.Set(ctx, "docbridge:targets:bad", []byte(`{"read_target":"both","write_target":"pg"}`), 0))
	_, _, err = store.Load(ctx, "bad")
	assert.ErrorIs(t, err, collection.ErrInvalidTarget)

	require.NoError(t, store.Delete(ctx, "posts"))
	_, found, _ = store.Load(ctx, "posts")
	assert.False(t, found)
}

func TestTargetStoreAsSwitchHook(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemoryKVStore()
	store := registry.NewTargetStore(kv, "app:")

	reg := newRegistry(t, store)
	require.NoError(t, reg.Register("posts", newSwitching("posts")))
	assert.Equal(t, 1, reg.GetLifecycleManager().HookCount())

	to := registry.Targets{Read: collection.ReadMongo, Write: collection.WriteBoth}
	require.NoError(t, reg.SetTargets(ctx, "posts", to))

	got, found, err := store.Load(ctx, "posts")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, to, got)

	require.NoError(t, kv.Close())
	err = reg.SetTargets(ctx, "posts", registry.Targets{Read: collection.ReadPg, Write: collection.WritePg})
	assert.Error(t, err)

	current, _ := reg.Targets("posts")
	assert.Equal(t, to, current)
}
