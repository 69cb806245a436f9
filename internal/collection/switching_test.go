package collection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/pgsql"
	"github.com/rzpsarthak13/docbridge/internal/schema"
)

func newSwitching() (*SwitchingCollection, *fakeCollection, *fakeCollection) {
	mongo, pg := newFake("mongo"), newFake("postgres")
	return NewSwitchingCollection("posts", mongo, pg), mongo, pg
}

// exercise calls every routed operation once.
func exercise(t *testing.T, s *SwitchingCollection) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Find(ctx, nil, nil)
	require.NoError(t, err)
	_, err = s.FindOne(ctx, nil, nil)
	require.NoError(t, err)
	_, err = s.FindOneArbitrary(ctx)
	require.NoError(t, err)
	_, err = s.Count(ctx, nil)
	require.NoError(t, err)
	_, err = s.Aggregate(ctx, nil)
	require.NoError(t, err)
	_, err = s.Indexes(ctx)
	require.NoError(t, err)
	_, err = s.RawInsert(ctx, core.Document{})
	require.NoError(t, err)
	_, err = s.RawUpdateOne(ctx, nil, nil)
	require.NoError(t, err)
	_, err = s.RawUpdateMany(ctx, nil, nil)
	require.NoError(t, err)
	_, err = s.RawRemove(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, s.EnsureIndex(ctx, core.IndexSpec{}))
	_, err = s.BulkWrite(ctx, nil)
	require.NoError(t, err)
	_, err = s.FindOneAndUpdate(ctx, nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.DropIndex(ctx, "idx"))
	_, err = s.UpdateOne(ctx, nil, nil)
	require.NoError(t, err)
	_, err = s.UpdateMany(ctx, nil, nil)
	require.NoError(t, err)
}

var (
	readCalls  = []string{"find", "findOne", "findOneArbitrary", "count", "aggregate", "indexes"}
	writeCalls = []string{"rawInsert", "rawUpdateOne", "rawUpdateMany", "rawRemove", "ensureIndex", "bulkWrite", "findOneAndUpdate", "dropIndex", "updateOne", "updateMany"}
)

func TestSwitchingCollectionRouting(t *testing.T) {
	tests := []struct {
		name      string
		read      ReadTarget
		write     WriteTarget
		wantMongo []string
		wantPg    []string
	}{
		{
			name:      "defaults to the document store",
			read:      ReadMongo,
			write:     WriteMongo,
			wantMongo: append(append([]string{}, readCalls...), writeCalls...),
		},
		{
			name:      "dual write, mongo reads",
			read:      ReadMongo,
			write:     WriteBoth,
			wantMongo: append(append([]string{}, readCalls...), writeCalls...),
			wantPg:    writeCalls,
		},
		{
			name:      "dual write, postgres reads",
			read:      ReadPg,
			write:     WriteBoth,
			wantMongo: writeCalls,
			wantPg:    append(append([]string{}, readCalls...), writeCalls...),
		},
		{
			name:   "postgres only",
			read:   ReadPg,
			write:  WritePg,
			wantPg: append(append([]string{}, readCalls...), writeCalls...),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mongo, pg := newSwitching()
			require.NoError(t, s.SetTargets(tt.read, tt.write))

			exercise(t, s)

			assert.Equal(t, tt.wantMongo, nilIfEmpty(mongo.Calls()))
			assert.Equal(t, tt.wantPg, nilIfEmpty(pg.Calls()))
		})
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestSwitchingCollectionDefaults(t *testing.T) {
	s, _, _ := newSwitching()
	assert.Equal(t, ReadMongo, s.ReadTarget())
	assert.Equal(t, WriteMongo, s.WriteTarget())
	assert.False(t, s.IsPostgres())
	assert.Equal(t, "mongo", s.Name())
}

func TestSwitchingCollectionReturnsMongoResult(t *testing.T) {
	s, _, _ := newSwitching()
	require.NoError(t, s.SetTargets(ReadPg, WriteBoth))

	id, err := s.RawInsert(context.Background(), core.Document{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "mongo-id", id)

	n, err := s.RawUpdateMany(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(len("mongo")), n)

	doc, err := s.FindOne(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres", doc["from"])
	assert.True(t, s.IsPostgres())
}

func TestSwitchingCollectionDualWriteFailure(t *testing.T) {
	backing := errors.New("connection reset")

	tests := []struct {
		name        string
		failMongo   bool
		failPg      bool
		write       WriteTarget
		wantDual    bool
		wantBacking bool
	}{
		{name: "postgres fails during dual write", failPg: true, write: WriteBoth, wantDual: true, wantBacking: true},
		{name: "mongo fails during dual write", failMongo: true, write: WriteBoth, wantDual: true, wantBacking: true},
		{name: "single target failure is not a dual write error", failPg: true, write: WritePg, wantBacking: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mongo, pg := newSwitching()
			if tt.failMongo {
				mongo.err = backing
			}
			if tt.failPg {
				pg.err = backing
			}
			require.NoError(t, s.SetTargets(ReadMongo, tt.write))

			id, err := s.RawInsert(context.Background(), core.Document{})
			require.Error(t, err)
			assert.Empty(t, id)
			assert.Equal(t, tt.wantDual, errors.Is(err, ErrDualWrite))
			assert.Equal(t, tt.wantBacking, errors.Is(err, backing))

			// no rollback: the healthy side still receives the write
			if tt.write == WriteBoth {
				for _, side := range []*fakeCollection{mongo, pg} {
					require.Eventually(t, func() bool {
						return len(side.Calls()) == 1
					}, time.Second, 5*time.Millisecond)
					assert.Equal(t, []string{"rawInsert"}, side.Calls())
				}
			}
		})
	}
}

// blockingCollection holds RawInsert until release is closed.
type blockingCollection struct {
	*fakeCollection
	release chan struct{}
}

func (b *blockingCollection) RawInsert(ctx context.Context, doc core.Document) (string, error) {
	<-b.release
	return b.fakeCollection.RawInsert(ctx, doc)
}

func TestSwitchingCollectionFailsWithoutWaitingForSlowWrite(t *testing.T) {
	slow := &blockingCollection{fakeCollection: newFake("mongo"), release: make(chan struct{})}
	pg := newFake("postgres")
	pg.err = errors.New("connection reset")
	s := NewSwitchingCollection("posts", slow, pg)
	require.NoError(t, s.SetTargets(ReadMongo, WriteBoth))

	_, err := s.RawInsert(context.Background(), core.Document{"a": 1})
	require.ErrorIs(t, err, ErrDualWrite)
	assert.Empty(t, slow.Calls())

	close(slow.release)
	require.Eventually(t, func() bool {
		return len(slow.Calls()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSwitchingCollectionSetTargets(t *testing.T) {
	s, _, _ := newSwitching()

	err := s.SetTargets("mysql", WriteMongo)
	assert.ErrorIs(t, err, ErrInvalidTarget)
	err = s.SetTargets(ReadMongo, "everywhere")
	assert.ErrorIs(t, err, ErrInvalidTarget)
	assert.Equal(t, ReadMongo, s.ReadTarget())

	mongoOnly := NewSwitchingCollection("posts", newFake("mongo"), nil)
	assert.ErrorIs(t, mongoOnly.SetTargets(ReadMongo, WriteBoth), ErrInvalidTarget)
	assert.ErrorIs(t, mongoOnly.SetTargets(ReadPg, WriteMongo), ErrInvalidTarget)
	assert.Equal(t, WriteMongo, mongoOnly.WriteTarget())

	mongoOnly.SetPgCollection(newFake("postgres"))
	assert.NoError(t, mongoOnly.SetTargets(ReadPg, WriteBoth))
}

func TestParseTargets(t *testing.T) {
	r, err := ParseReadTarget("pg")
	require.NoError(t, err)
	assert.Equal(t, ReadPg, r)

	w, err := ParseWriteTarget("both")
	require.NoError(t, err)
	assert.Equal(t, WriteBoth, w)

	_, err = ParseReadTarget("both")
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestSwitchingCollectionAdmin(t *testing.T) {
	s, mongo, pg := newSwitching()

	s.SetOption("readPreference", "primary")
	assert.Equal(t, "primary", mongo.Options()["readPreference"])
	assert.Equal(t, "primary", pg.Options()["readPreference"])

	pg.SetOption("only", "pg")
	require.NoError(t, s.SetTargets(ReadPg, WritePg))
	assert.Equal(t, "pg", s.Options()["only"])

	assert.True(t, s.IsConnected())
	pg.down = true
	assert.False(t, s.IsConnected())

	assert.Nil(t, s.Table())
	table := pgsql.NewTable("posts", map[string]schema.Type{"_id": schema.String{}})
	s.SetPgCollection(NewPgCollection("posts", table, nil))
	assert.Same(t, table, s.Table())

	replacement := newFake("other")
	s.SetMongoCollection(replacement)
	assert.Same(t, replacement, s.MongoCollection())
	assert.Equal(t, "other", s.Name())
}

func TestOperationTable(t *testing.T) {
	reads := 0
	for _, kind := range Operations {
		if kind == KindRead {
			reads++
		}
	}
	assert.Equal(t, len(readCalls), reads)
	assert.Len(t, Operations, len(readCalls)+len(writeCalls))

	for _, name := range readCalls {
		assert.Equal(t, KindRead, Operations[Operation(name)], name)
	}
	for _, name := range writeCalls {
		assert.Equal(t, KindWrite, Operations[Operation(name)], name)
	}
}

func TestSwitchingCollectionConcurrentAdmin(t *testing.T) {
	s, _, _ := newSwitching()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = s.SetTargets(ReadPg, WriteBoth)
				_ = s.SetTargets(ReadMongo, WriteMongo)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := s.Find(ctx, nil, nil)
				assert.NoError(t, err)
				_, err = s.RawInsert(ctx, core.Document{})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}
