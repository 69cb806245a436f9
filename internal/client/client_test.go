package client

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/rzpsarthak13/docbridge/internal/collection"
	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/kvstore"
	"github.com/rzpsarthak13/docbridge/internal/registry"
	"github.com/rzpsarthak13/docbridge/internal/writeback"
)

func testConfig(t *testing.T) *registry.ConfigManager {
	t.Helper()
	cfg := registry.DefaultConfig()
	cfg.Backfill.BatchSize = 2
	cfg.Collections["posts"] = registry.InternalCollectionConfig{
		ReadTarget:  "mongo",
		WriteTarget: "both",
		Schema: core.CollectionSchema{
			"title": &core.FieldSchema{Type: core.KindString},
		},
		Indexes: []core.IndexSpec{{Keys: []core.IndexKey{{Field: "title", Direction: 1}}, Unique: true}},
	}
	cm, err := registry.NewConfigManagerFrom(cfg)
	require.NoError(t, err)
	return cm
}

type fixture struct {
	client *ClientImpl
	pool   pgxmock.PgxPoolIface
	queue  *writeback.MemoryQueue
}

func newFixture(t *testing.T, db *mongo.Database, kv core.KVStore) fixture {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)

	queue := writeback.NewMemoryQueue(100)
	c, err := New(testConfig(t), Connections{Pool: pool, Mongo: db, KVStore: kv, Queue: queue})
	require.NoError(t, err)
	return fixture{client: c, pool: pool, queue: queue}
}

func TestClient(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("registers configured collections", func(mt *mtest.T) {
		f := newFixture(mt.T, mt.DB, nil)

		assert.Equal(mt, []string{"posts"}, f.client.Collections())
		targets, err := f.client.Targets("posts")
		require.NoError(mt, err)
		assert.Equal(mt, registry.Targets{Read: collection.ReadMongo, Write: collection.WriteBoth}, targets)

		sc, err := f.client.Collection("posts")
		require.NoError(mt, err)
		require.NotNil(mt, sc.Table())
		assert.Equal(mt, "posts", sc.Table().Name())
	})

	mt.Run("unconfigured collections have no postgres side", func(mt *mtest.T) {
		f := newFixture(mt.T, mt.DB, nil)

		sc, err := f.client.Collection("comments")
		require.NoError(mt, err)
		assert.Nil(mt, sc.PgCollection())
		assert.Equal(mt, []string{"comments", "posts"}, f.client.Collections())

		err = f.client.SetTargets(ctx, "comments", registry.Targets{Read: collection.ReadPg, Write: collection.WritePg})
		assert.ErrorIs(mt, err, collection.ErrInvalidTarget)

		_, err = f.client.TargetCollection("comments", "pg")
		assert.ErrorIs(mt, err, collection.ErrInvalidTarget)
	})

	mt.Run("targets persist and restore", func(mt *mtest.T) {
		kv := kvstore.NewMemoryKVStore()
		first := newFixture(mt.T, mt.DB, kv)

		to := registry.Targets{Read: collection.ReadPg, Write: collection.WritePg}
		require.NoError(mt, first.client.SetTargets(ctx, "posts", to))

		second := newFixture(mt.T, mt.DB, kv)
		before, _ := second.client.Targets("posts")
		assert.Equal(mt, registry.Targets{Read: collection.ReadMongo, Write: collection.WriteBoth}, before)

		restored, err := second.client.RestoreTargets(ctx)
		require.NoError(mt, err)
		assert.Equal(mt, 1, restored)

		after, _ := second.client.Targets("posts")
		assert.Equal(mt, to, after)
	})

	mt.Run("restore needs a target store", func(mt *mtest.T) {
		f := newFixture(mt.T, mt.DB, nil)
		_, err := f.client.RestoreTargets(ctx)
		assert.ErrorIs(mt, err, ErrNoTargetStore)
	})

	mt.Run("create tables", func(mt *mtest.T) {
		f := newFixture(mt.T, mt.DB, nil)
		f.pool.ExpectExec(`CREATE TABLE IF NOT EXISTS "posts"`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		f.pool.ExpectExec(`CREATE UNIQUE INDEX IF NOT EXISTS "idx_posts_title" ON "posts"`).WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))

		_, err := f.client.Collection("comments")
		require.NoError(mt, err)

		require.NoError(mt, f.client.CreateTables(ctx))
		assert.NoError(mt, f.pool.ExpectationsWereMet())
	})

	mt.Run("backfill from postgres pages by _id", func(mt *mtest.T) {
		f := newFixture(mt.T, mt.DB, nil)
		columns := []string{"_id", "title"}

		f.pool.ExpectQuery(`SELECT \* FROM "posts" ORDER BY "_id" ASC LIMIT \$1`).
			WithArgs(int64(2)).
			WillReturnRows(f.pool.NewRows(columns).AddRow("a", "A").AddRow("b", "B"))
		f.pool.ExpectQuery(`SELECT \* FROM "posts" WHERE "_id" > \$1 ORDER BY "_id" ASC LIMIT \$2`).
			WithArgs("b", int64(2)).
			WillReturnRows(f.pool.NewRows(columns).AddRow("c", "C"))

		n, err := f.client.Backfill(ctx, "posts", collection.ReadPg)
		require.NoError(mt, err)
		assert.Equal(mt, 3, n)
		assert.NoError(mt, f.pool.ExpectationsWereMet())

		ops, err := f.queue.Dequeue(ctx, 10)
		require.NoError(mt, err)
		require.Len(mt, ops, 3)
		for i, id := range []string{"a", "b", "c"} {
			assert.Equal(mt, "posts", ops[i].Collection)
			assert.Equal(mt, "mongo", ops[i].Target)
			assert.Equal(mt, id, ops[i].Document["_id"])
		}
	})

	mt.Run("closed client", func(mt *mtest.T) {
		f := newFixture(mt.T, mt.DB, kvstore.NewMemoryKVStore())
		require.NoError(mt, f.client.Close())
		require.NoError(mt, f.client.Close())

		_, err := f.client.Collection("posts")
		assert.ErrorIs(mt, err, ErrClientClosed)
		_, err = f.client.Targets("posts")
		assert.ErrorIs(mt, err, ErrClientClosed)
	})
}
