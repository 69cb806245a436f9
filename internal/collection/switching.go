package collection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/pgsql"
)

var (
	// ErrDualWrite is returned when a write to both stores fails on at least
	// one of them. Writes that succeeded are not rolled back.
	ErrDualWrite = errors.New("dual write failed")

	// ErrInvalidTarget is returned by SetTargets for unknown targets or
	// targets whose collection is missing.
	ErrInvalidTarget = errors.New("invalid target")
)

// ReadTarget names the store reads are served from.
type ReadTarget string

const (
	ReadMongo ReadTarget = "mongo"
	ReadPg    ReadTarget = "pg"
)

// WriteTarget names the stores writes are applied to.
type WriteTarget string

const (
	WriteMongo WriteTarget = "mongo"
	WritePg    WriteTarget = "pg"
	WriteBoth  WriteTarget = "both"
)

// ParseReadTarget validates a read target name.
func ParseReadTarget(s string) (ReadTarget, error) {
	switch t := ReadTarget(s); t {
	case ReadMongo, ReadPg:
		return t, nil
	}
	return "", fmt.Errorf("%w: read target %q", ErrInvalidTarget, s)
}

// ParseWriteTarget validates a write target name.
func ParseWriteTarget(s string) (WriteTarget, error) {
	switch t := WriteTarget(s); t {
	case WriteMongo, WritePg, WriteBoth:
		return t, nil
	}
	return "", fmt.Errorf("%w: write target %q", ErrInvalidTarget, s)
}

// OperationKind classifies collection operations for routing.
type OperationKind int

const (
	// KindRead operations go to the read target only.
	KindRead OperationKind = iota
	// KindWrite operations go to every write target.
	KindWrite
)

// Operation names a routed collection operation.
type Operation string

const (
	OpFind             Operation = "find"
	OpFindOne          Operation = "findOne"
	OpFindOneArbitrary Operation = "findOneArbitrary"
	OpCount            Operation = "count"
	OpAggregate        Operation = "aggregate"
	OpIndexes          Operation = "indexes"
	OpRawInsert        Operation = "rawInsert"
	OpRawUpdateOne     Operation = "rawUpdateOne"
	OpRawUpdateMany    Operation = "rawUpdateMany"
	OpRawRemove        Operation = "rawRemove"
	OpEnsureIndex      Operation = "ensureIndex"
	OpBulkWrite        Operation = "bulkWrite"
	OpFindOneAndUpdate Operation = "findOneAndUpdate"
	OpDropIndex        Operation = "dropIndex"
	OpUpdateOne        Operation = "updateOne"
	OpUpdateMany       Operation = "updateMany"
)

// Operations is the routing table of every dispatched operation.
var Operations = map[Operation]OperationKind{
	OpFind:             KindRead,
	OpFindOne:          KindRead,
	OpFindOneArbitrary: KindRead,
	OpCount:            KindRead,
	OpAggregate:        KindRead,
	OpIndexes:          KindRead,
	OpRawInsert:        KindWrite,
	OpRawUpdateOne:     KindWrite,
	OpRawUpdateMany:    KindWrite,
	OpRawRemove:        KindWrite,
	OpEnsureIndex:      KindWrite,
	OpBulkWrite:        KindWrite,
	OpFindOneAndUpdate: KindWrite,
	OpDropIndex:        KindWrite,
	OpUpdateOne:        KindWrite,
	OpUpdateMany:       KindWrite,
}

// SwitchingCollection routes each operation to the document store, the
// Postgres table or both. Reads use the read target. Writes run on every
// write target concurrently and return the first target's result, the
// document store before Postgres.
type SwitchingCollection struct {
	name string

	mu          sync.RWMutex
	mongo       core.Collection
	pg          core.Collection
	readTarget  ReadTarget
	writeTarget WriteTarget
}

// NewSwitchingCollection creates a routing collection. Both targets start
// on the document store. pg may be nil until the table exists.
func NewSwitchingCollection(name string, mongo, pg core.Collection) *SwitchingCollection {
	return &SwitchingCollection{
		name:        name,
		mongo:       mongo,
		pg:          pg,
		readTarget:  ReadMongo,
		writeTarget: WriteMongo,
	}
}

type target struct {
	name string
	coll core.Collection
}

// writeOutcome is the result of one write target.
type writeOutcome[T any] struct {
	index  int
	result T
	err    error
}

// route dispatches one operation by its kind and returns the result of the
// first collection it ran on.
func route[T any](s *SwitchingCollection, op Operation, fn func(core.Collection) (T, error)) (T, error) {
	var zero T

	kind, ok := Operations[op]
	if !ok {
		return zero, fmt.Errorf("%w: %s", pgsql.ErrUnsupportedOperator, op)
	}

	if kind == KindRead {
		coll, readTarget := s.readCollection()
		if coll == nil {
			return zero, fmt.Errorf("%w: no collection for read target %s", ErrInvalidTarget, readTarget)
		}
		recordRead(s.name, readTarget)
		return fn(coll)
	}

	targets, err := s.writeCollections()
	if err != nil {
		return zero, err
	}

	outcomes := make(chan writeOutcome[T], len(targets))
	for i, t := range targets {
		i, t := i, t
		go func() {
			r, err := fn(t.coll)
			recordWrite(s.name, t.name, err)
			if err != nil {
				zap.S().Errorf("[SWITCH] %s on %s/%s failed: %v", op, s.name, t.name, err)
				err = fmt.Errorf("%s on %s: %w", op, t.name, err)
			}
			outcomes <- writeOutcome[T]{index: i, result: r, err: err}
		}()
	}

	// The first failure is returned without waiting for the other writes.
	var first T
	for range targets {
		o := <-outcomes
		if o.err != nil {
			if len(targets) > 1 {
				return zero, fmt.Errorf("%w: %w", ErrDualWrite, o.err)
			}
			return zero, o.err
		}
		if o.index == 0 {
			first = o.result
		}
	}
	return first, nil
}

func (s *SwitchingCollection) readCollection() (core.Collection, ReadTarget) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readTarget == ReadPg {
		return s.pg, ReadPg
	}
	return s.mongo, ReadMongo
}

func (s *SwitchingCollection) writeCollections() ([]target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var targets []target
	if s.writeTarget == WriteMongo || s.writeTarget == WriteBoth {
		targets = append(targets, target{name: string(WriteMongo), coll: s.mongo})
	}
	if s.writeTarget == WritePg || s.writeTarget == WriteBoth {
		targets = append(targets, target{name: string(WritePg), coll: s.pg})
	}
	for _, t := range targets {
		if t.coll == nil {
			return nil, fmt.Errorf("%w: no collection for write target %s", ErrInvalidTarget, t.name)
		}
	}
	return targets, nil
}

// SetTargets switches the read and write targets. A target needs its
// collection to be set.
func (s *SwitchingCollection) SetTargets(read ReadTarget, write WriteTarget) error {
	if _, err := ParseReadTarget(string(read)); err != nil {
		return err
	}
	if _, err := ParseWriteTarget(string(write)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if read == ReadPg || write == WritePg || write == WriteBoth {
		if s.pg == nil {
			return fmt.Errorf("%w: %s has no postgres collection", ErrInvalidTarget, s.name)
		}
	}
	if read == ReadMongo || write == WriteMongo || write == WriteBoth {
		if s.mongo == nil {
			return fmt.Errorf("%w: %s has no mongo collection", ErrInvalidTarget, s.name)
		}
	}

	s.readTarget, s.writeTarget = read, write
	zap.S().Infof("[SWITCH] %s: read=%s write=%s", s.name, read, write)
	return nil
}

// ReadTarget returns the current read target.
func (s *SwitchingCollection) ReadTarget() ReadTarget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readTarget
}

// WriteTarget returns the current write target.
func (s *SwitchingCollection) WriteTarget() WriteTarget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writeTarget
}

// IsPostgres reports whether reads are served by Postgres.
func (s *SwitchingCollection) IsPostgres() bool {
	return s.ReadTarget() == ReadPg
}

// MongoCollection returns the document-store collection.
func (s *SwitchingCollection) MongoCollection() core.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mongo
}

// SetMongoCollection replaces the document-store collection.
func (s *SwitchingCollection) SetMongoCollection(c core.Collection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mongo = c
}

// PgCollection returns the Postgres collection.
func (s *SwitchingCollection) PgCollection() core.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pg
}

// SetPgCollection replaces the Postgres collection.
func (s *SwitchingCollection) SetPgCollection(c core.Collection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pg = c
}

// Table returns the Postgres table, or nil when the Postgres collection is
// not table backed.
func (s *SwitchingCollection) Table() *pgsql.Table {
	if tc, ok := s.PgCollection().(interface{ Table() *pgsql.Table }); ok {
		return tc.Table()
	}
	return nil
}

// Name returns the document-store collection name, falling back to the
// routing name.
func (s *SwitchingCollection) Name() string {
	if m := s.MongoCollection(); m != nil {
		return m.Name()
	}
	return s.name
}

// Options returns the options of the read-side collection.
func (s *SwitchingCollection) Options() map[string]any {
	coll, _ := s.readCollection()
	if coll == nil {
		return map[string]any{}
	}
	return coll.Options()
}

// SetOption sets an option on both collections.
func (s *SwitchingCollection) SetOption(key string, value any) {
	for _, c := range s.collections() {
		c.SetOption(key, value)
	}
}

// IsConnected reports whether every configured collection is connected.
func (s *SwitchingCollection) IsConnected() bool {
	for _, c := range s.collections() {
		if !c.IsConnected() {
			return false
		}
	}
	return true
}

func (s *SwitchingCollection) collections() []core.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Collection
	for _, c := range []core.Collection{s.mongo, s.pg} {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Find reads matching documents from the read target.
func (s *SwitchingCollection) Find(ctx context.Context, selector any, opts *core.FindOptions) ([]core.Document, error) {
	return route(s, OpFind, func(c core.Collection) ([]core.Document, error) {
		return c.Find(ctx, selector, opts)
	})
}

// FindOne reads one document from the read target.
func (s *SwitchingCollection) FindOne(ctx context.Context, selector any, opts *core.FindOptions) (core.Document, error) {
	return route(s, OpFindOne, func(c core.Collection) (core.Document, error) {
		return c.FindOne(ctx, selector, opts)
	})
}

// FindOneArbitrary reads any document from the read target.
func (s *SwitchingCollection) FindOneArbitrary(ctx context.Context) (core.Document, error) {
	return route(s, OpFindOneArbitrary, func(c core.Collection) (core.Document, error) {
		return c.FindOneArbitrary(ctx)
	})
}

// Count counts matching documents on the read target.
func (s *SwitchingCollection) Count(ctx context.Context, selector any) (int64, error) {
	return route(s, OpCount, func(c core.Collection) (int64, error) {
		return c.Count(ctx, selector)
	})
}

// Aggregate runs a pipeline on the read target.
func (s *SwitchingCollection) Aggregate(ctx context.Context, stages []any) ([]core.Document, error) {
	return route(s, OpAggregate, func(c core.Collection) ([]core.Document, error) {
		return c.Aggregate(ctx, stages)
	})
}

// Indexes lists the indexes of the read target.
func (s *SwitchingCollection) Indexes(ctx context.Context) ([]core.IndexSpec, error) {
	return route(s, OpIndexes, func(c core.Collection) ([]core.IndexSpec, error) {
		return c.Indexes(ctx)
	})
}

// RawInsert inserts into every write target. Writing to both stores, a
// document without _id gets one generated so both stores share it.
func (s *SwitchingCollection) RawInsert(ctx context.Context, doc core.Document) (string, error) {
	if s.WriteTarget() == WriteBoth {
		doc = withID(doc)
	}
	return route(s, OpRawInsert, func(c core.Collection) (string, error) {
		return c.RawInsert(ctx, doc)
	})
}

// RawUpdateOne updates one document on every write target.
func (s *SwitchingCollection) RawUpdateOne(ctx context.Context, selector, modifier any) (int64, error) {
	return route(s, OpRawUpdateOne, func(c core.Collection) (int64, error) {
		return c.RawUpdateOne(ctx, selector, modifier)
	})
}

// RawUpdateMany updates matching documents on every write target.
func (s *SwitchingCollection) RawUpdateMany(ctx context.Context, selector, modifier any) (int64, error) {
	return route(s, OpRawUpdateMany, func(c core.Collection) (int64, error) {
		return c.RawUpdateMany(ctx, selector, modifier)
	})
}

// RawRemove removes matching documents on every write target.
func (s *SwitchingCollection) RawRemove(ctx context.Context, selector any) (int64, error) {
	return route(s, OpRawRemove, func(c core.Collection) (int64, error) {
		return c.RawRemove(ctx, selector)
	})
}

// EnsureIndex creates an index on every write target.
func (s *SwitchingCollection) EnsureIndex(ctx context.Context, index core.IndexSpec) error {
	_, err := route(s, OpEnsureIndex, func(c core.Collection) (struct{}, error) {
		return struct{}{}, c.EnsureIndex(ctx, index)
	})
	return err
}

// BulkWrite applies the operations on every write target.
func (s *SwitchingCollection) BulkWrite(ctx context.Context, operations []core.BulkOperation) (*core.BulkWriteResult, error) {
	if s.WriteTarget() == WriteBoth {
		operations = withBulkIDs(operations)
	}
	return route(s, OpBulkWrite, func(c core.Collection) (*core.BulkWriteResult, error) {
		return c.BulkWrite(ctx, operations)
	})
}

// FindOneAndUpdate updates one document on every write target.
func (s *SwitchingCollection) FindOneAndUpdate(ctx context.Context, selector, modifier any, opts *core.FindOneAndUpdateOptions) (core.Document, error) {
	if opts != nil && opts.Upsert && s.WriteTarget() == WriteBoth {
		modifier = withUpsertID(selector, modifier)
	}
	return route(s, OpFindOneAndUpdate, func(c core.Collection) (core.Document, error) {
		return c.FindOneAndUpdate(ctx, selector, modifier, opts)
	})
}

// DropIndex drops an index on every write target.
func (s *SwitchingCollection) DropIndex(ctx context.Context, name string) error {
	_, err := route(s, OpDropIndex, func(c core.Collection) (struct{}, error) {
		return struct{}{}, c.DropIndex(ctx, name)
	})
	return err
}

// UpdateOne updates one document on every write target.
func (s *SwitchingCollection) UpdateOne(ctx context.Context, selector, modifier any) (int64, error) {
	return route(s, OpUpdateOne, func(c core.Collection) (int64, error) {
		return c.UpdateOne(ctx, selector, modifier)
	})
}

// UpdateMany updates matching documents on every write target.
func (s *SwitchingCollection) UpdateMany(ctx context.Context, selector, modifier any) (int64, error) {
	return route(s, OpUpdateMany, func(c core.Collection) (int64, error) {
		return c.UpdateMany(ctx, selector, modifier)
	})
}

var _ core.Collection = (*SwitchingCollection)(nil)
