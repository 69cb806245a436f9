package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/docbridge/internal/collection"
	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/registry"
	"github.com/rzpsarthak13/docbridge/internal/writeback"
)

var testConfig = filepath.Join("testdata", "config.yaml")

type insertRecorder struct {
	core.Collection
	docs []core.Document
}

func (r *insertRecorder) RawInsert(_ context.Context, doc core.Document) (string, error) {
	r.docs = append(r.docs, doc)
	return fmt.Sprint(doc["_id"]), nil
}

type fakeClient struct {
	targets  map[string]registry.Targets
	restored int
	created  bool
	closed   bool
	queue    *writeback.MemoryQueue
	target   *insertRecorder
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		targets: map[string]registry.Targets{
			"posts": {Read: collection.ReadMongo, Write: collection.WriteBoth},
		},
		queue:  writeback.NewMemoryQueue(10),
		target: &insertRecorder{},
	}
}

func (f *fakeClient) Collections() []string { return []string{"posts"} }

func (f *fakeClient) Targets(name string) (registry.Targets, error) {
	t, ok := f.targets[name]
	if !ok {
		return registry.Targets{}, registry.ErrNotRegistered
	}
	return t, nil
}

func (f *fakeClient) SetTargets(_ context.Context, name string, t registry.Targets) error {
	f.targets[name] = t
	return nil
}

func (f *fakeClient) RestoreTargets(context.Context) (int, error) {
	f.restored++
	return 0, nil
}

func (f *fakeClient) CreateTables(context.Context) error {
	f.created = true
	return nil
}

func (f *fakeClient) Backfill(ctx context.Context, name string, from collection.ReadTarget) (int, error) {
	for _, id := range []string{"a", "b"} {
		err := f.queue.Enqueue(ctx, &core.BackfillOperation{Collection: name, Target: "pg", Document: core.Document{"_id": id}})
		if err != nil {
			return 0, err
		}
	}
	return 2, nil
}

func (f *fakeClient) TargetCollection(name, target string) (core.Collection, error) {
	if target != "pg" {
		return nil, collection.ErrInvalidTarget
	}
	return f.target, nil
}

func (f *fakeClient) Queue() core.BackfillQueue { return f.queue }

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func run(t *testing.T, fake *fakeClient, args ...string) (string, error) {
	t.Helper()
	open := func(context.Context, *registry.ConfigManager) (Client, error) {
		if fake == nil {
			return nil, errors.New("connection refused")
		}
		return fake, nil
	}

	buf := &bytes.Buffer{}
	cmd := NewRootCommand(open)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(args, "--config", testConfig))
	err := cmd.Execute()
	return buf.String(), err
}

func TestCompileGolden(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{
			name: "selector",
			args: []string{"compile", "selector", "posts", `{"score": {"$gt": 5}}`, "--sort", `{"score": -1}`, "--limit", "10"},
		},
		{
			name: "pipeline",
			args: []string{"compile", "pipeline", "posts", `[{"$match": {"score": {"$gte": 10}}}, {"$sort": {"score": -1}}, {"$limit": 5}]`},
		},
		{
			name: "table",
			args: []string{"compile", "table", "posts"},
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, nil, tt.args...)
			require.NoError(t, err)
			g.Assert(t, tt.name, []byte(out))
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "collection without schema",
			args:    []string{"compile", "selector", "comments", `{}`},
			wantErr: "has no schema",
		},
		{
			name:    "invalid selector",
			args:    []string{"compile", "selector", "posts", `{"score": `},
			wantErr: "invalid extended JSON document",
		},
		{
			name:    "invalid pipeline",
			args:    []string{"compile", "pipeline", "posts", `{"$match": {}}`},
			wantErr: "invalid extended JSON array",
		},
		{
			name:    "unsupported stage",
			args:    []string{"compile", "pipeline", "posts", `[{"$facet": {}}]`},
			wantErr: "$facet",
		},
		{
			name: "missing arguments",
			args: []string{"compile", "selector", "posts"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, nil, tt.args...)
			require.Error(t, err)
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := run(t, nil, "compile", "table", "posts", "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestTargetsCommand(t *testing.T) {
	t.Run("get", func(t *testing.T) {
		fake := newFakeClient()
		out, err := run(t, fake, "targets", "get")
		require.NoError(t, err)
		assert.Equal(t, "posts\tread=mongo\twrite=both\n", out)
		assert.Equal(t, 1, fake.restored)
		assert.True(t, fake.closed)
	})

	t.Run("get unknown collection", func(t *testing.T) {
		_, err := run(t, newFakeClient(), "targets", "get", "users")
		assert.ErrorIs(t, err, registry.ErrNotRegistered)
	})

	t.Run("set", func(t *testing.T) {
		fake := newFakeClient()
		out, err := run(t, fake, "targets", "set", "posts", "--read", "pg", "--write", "pg")
		require.NoError(t, err)
		assert.Equal(t, "posts\tread=pg\twrite=pg\n", out)
		assert.Equal(t, registry.Targets{Read: collection.ReadPg, Write: collection.WritePg}, fake.targets["posts"])
	})

	t.Run("set rejects unknown targets before connecting", func(t *testing.T) {
		_, err := run(t, nil, "targets", "set", "posts", "--read", "sqlite")
		assert.ErrorIs(t, err, collection.ErrInvalidTarget)
	})

	t.Run("connection failure", func(t *testing.T) {
		_, err := run(t, nil, "targets", "get")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to connect")
	})
}

func TestSchemaCreateCommand(t *testing.T) {
	fake := newFakeClient()
	out, err := run(t, fake, "schema", "create")
	require.NoError(t, err)
	assert.Equal(t, "tables ready\n", out)
	assert.True(t, fake.created)
}

func TestBackfillCommand(t *testing.T) {
	t.Run("enqueue only", func(t *testing.T) {
		fake := newFakeClient()
		out, err := run(t, fake, "backfill", "posts")
		require.NoError(t, err)
		assert.Equal(t, "enqueued 2 documents of posts\n", out)
		assert.Equal(t, 2, fake.queue.Size())
	})

	t.Run("drain", func(t *testing.T) {
		fake := newFakeClient()
		out, err := run(t, fake, "backfill", "posts", "--drain")
		require.NoError(t, err)
		assert.Equal(t, "enqueued 2 documents of posts\ncopied 2, already present 0, retried 0, dropped 0\n", out)
		assert.Len(t, fake.target.docs, 2)
		assert.Equal(t, 0, fake.queue.Size())
	})

	t.Run("invalid source", func(t *testing.T) {
		_, err := run(t, newFakeClient(), "backfill", "posts", "--from", "both")
		assert.ErrorIs(t, err, collection.ErrInvalidTarget)
	})
}
