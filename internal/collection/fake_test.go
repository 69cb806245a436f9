package collection

import (
	"context"
	"sync"

	"github.com/rzpsarthak13/docbridge/internal/core"
)

// fakeCollection records which operations reached it.
type fakeCollection struct {
	name string
	err  error

	mu      sync.Mutex
	calls   []string
	options map[string]any
	down    bool
}

func newFake(name string) *fakeCollection {
	return &fakeCollection{name: name, options: map[string]any{}}
}

func (f *fakeCollection) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	return f.err
}

func (f *fakeCollection) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCollection) Name() string { return f.name }

func (f *fakeCollection) Find(context.Context, any, *core.FindOptions) ([]core.Document, error) {
	return []core.Document{{"from": f.name}}, f.record("find")
}

func (f *fakeCollection) FindOne(context.Context, any, *core.FindOptions) (core.Document, error) {
	return core.Document{"from": f.name}, f.record("findOne")
}

func (f *fakeCollection) FindOneArbitrary(context.Context) (core.Document, error) {
	return core.Document{"from": f.name}, f.record("findOneArbitrary")
}

func (f *fakeCollection) Count(context.Context, any) (int64, error) {
	return int64(len(f.name)), f.record("count")
}

func (f *fakeCollection) Aggregate(context.Context, []any) ([]core.Document, error) {
	return []core.Document{{"from": f.name}}, f.record("aggregate")
}

func (f *fakeCollection) Indexes(context.Context) ([]core.IndexSpec, error) {
	return []core.IndexSpec{{Name: f.name}}, f.record("indexes")
}

func (f *fakeCollection) RawInsert(context.Context, core.Document) (string, error) {
	if err := f.record("rawInsert"); err != nil {
		return "", err
	}
	return f.name + "-id", nil
}

func (f *fakeCollection) RawUpdateOne(context.Context, any, any) (int64, error) {
	return int64(len(f.name)), f.record("rawUpdateOne")
}

func (f *fakeCollection) RawUpdateMany(context.Context, any, any) (int64, error) {
	return int64(len(f.name)), f.record("rawUpdateMany")
}

func (f *fakeCollection) RawRemove(context.Context, any) (int64, error) {
	return int64(len(f.name)), f.record("rawRemove")
}

func (f *fakeCollection) EnsureIndex(context.Context, core.IndexSpec) error {
	return f.record("ensureIndex")
}

func (f *fakeCollection) BulkWrite(context.Context, []core.BulkOperation) (*core.BulkWriteResult, error) {
	return &core.BulkWriteResult{InsertedCount: int64(len(f.name))}, f.record("bulkWrite")
}

func (f *fakeCollection) FindOneAndUpdate(context.Context, any, any, *core.FindOneAndUpdateOptions) (core.Document, error) {
	return core.Document{"from": f.name}, f.record("findOneAndUpdate")
}

func (f *fakeCollection) DropIndex(context.Context, string) error {
	return f.record("dropIndex")
}

func (f *fakeCollection) UpdateOne(context.Context, any, any) (int64, error) {
	return int64(len(f.name)), f.record("updateOne")
}

func (f *fakeCollection) UpdateMany(context.Context, any, any) (int64, error) {
	return int64(len(f.name)), f.record("updateMany")
}

func (f *fakeCollection) Options() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]any, len(f.options))
	for k, v := range f.options {
		out[k] = v
	}
	return out
}

func (f *fakeCollection) SetOption(key string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.options[key] = value
}

func (f *fakeCollection) IsConnected() bool { return !f.down }

var _ core.Collection = (*fakeCollection)(nil)
