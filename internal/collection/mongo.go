package collection

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/document"
)

// MongoCollection implements core.Collection on a document-store collection.
type MongoCollection struct {
	coll *mongo.Collection

	mu      sync.RWMutex
	options map[string]any
}

// NewMongoCollection wraps a driver collection.
func NewMongoCollection(coll *mongo.Collection) *MongoCollection {
	return &MongoCollection{coll: coll, options: map[string]any{}}
}

// Name returns the collection name.
func (c *MongoCollection) Name() string {
	return c.coll.Name()
}

// Find returns every matching document.
func (c *MongoCollection) Find(ctx context.Context, selector any, opts *core.FindOptions) ([]core.Document, error) {
	findOpts := options.Find()
	if opts != nil {
		if opts.Sort != nil {
			findOpts.SetSort(opts.Sort)
		}
		if opts.Limit > 0 {
			findOpts.SetLimit(opts.Limit)
		}
		if opts.Skip > 0 {
			findOpts.SetSkip(opts.Skip)
		}
		if opts.Projection != nil {
			findOpts.SetProjection(opts.Projection)
		}
	}

	cursor, err := c.coll.Find(ctx, document.Selector(selector), findOpts)
	if err != nil {
		return nil, fmt.Errorf("find on %s failed: %w", c.Name(), err)
	}
	return c.decodeAll(ctx, cursor)
}

// FindOne returns the first matching document or nil.
func (c *MongoCollection) FindOne(ctx context.Context, selector any, opts *core.FindOptions) (core.Document, error) {
	findOpts := options.FindOne()
	if opts != nil {
		if opts.Sort != nil {
			findOpts.SetSort(opts.Sort)
		}
		if opts.Skip > 0 {
			findOpts.SetSkip(opts.Skip)
		}
		if opts.Projection != nil {
			findOpts.SetProjection(opts.Projection)
		}
	}
	return c.decodeOne(c.coll.FindOne(ctx, document.Selector(selector), findOpts))
}

// FindOneArbitrary returns any document of the collection.
func (c *MongoCollection) FindOneArbitrary(ctx context.Context) (core.Document, error) {
	return c.FindOne(ctx, nil, nil)
}

// Count returns the number of matching documents.
func (c *MongoCollection) Count(ctx context.Context, selector any) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, document.Selector(selector))
	if err != nil {
		return 0, fmt.Errorf("count on %s failed: %w", c.Name(), err)
	}
	return n, nil
}

// Aggregate runs the pipeline on the server.
func (c *MongoCollection) Aggregate(ctx context.Context, stages []any) ([]core.Document, error) {
	cursor, err := c.coll.Aggregate(ctx, bson.A(stages))
	if err != nil {
		return nil, fmt.Errorf("aggregate on %s failed: %w", c.Name(), err)
	}
	return c.decodeAll(ctx, cursor)
}

type mongoIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique bool   `bson:"unique"`
}

// Indexes lists the collection's indexes.
func (c *MongoCollection) Indexes(ctx context.Context) ([]core.IndexSpec, error) {
	cursor, err := c.coll.Indexes().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes of %s: %w", c.Name(), err)
	}
	var raw []mongoIndex
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode indexes of %s: %w", c.Name(), err)
	}

	specs := make([]core.IndexSpec, 0, len(raw))
	for _, idx := range raw {
		spec := core.IndexSpec{Name: idx.Name, Unique: idx.Unique}
		for _, k := range idx.Key {
			direction := 1
			if n, ok := document.Number(k.Value); ok && n < 0 {
				direction = -1
			}
			spec.Keys = append(spec.Keys, core.IndexKey{Field: k.Key, Direction: direction})
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// RawInsert inserts a document and returns its _id.
func (c *MongoCollection) RawInsert(ctx context.Context, doc core.Document) (string, error) {
	res, err := c.coll.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("insert into %s failed: %w", c.Name(), err)
	}
	return idString(res.InsertedID), nil
}

// RawUpdateOne updates at most one document and returns the match count.
// Replacement documents are applied with ReplaceOne.
func (c *MongoCollection) RawUpdateOne(ctx context.Context, selector, modifier any) (int64, error) {
	var res *mongo.UpdateResult
	var err error
	if isOperatorDocument(modifier) {
		res, err = c.coll.UpdateOne(ctx, document.Selector(selector), modifier)
	} else {
		res, err = c.coll.ReplaceOne(ctx, document.Selector(selector), modifier)
	}
	if err != nil {
		return 0, fmt.Errorf("update on %s failed: %w", c.Name(), err)
	}
	return res.MatchedCount, nil
}

// RawUpdateMany updates every matching document and returns the match count.
func (c *MongoCollection) RawUpdateMany(ctx context.Context, selector, modifier any) (int64, error) {
	res, err := c.coll.UpdateMany(ctx, document.Selector(selector), modifier)
	if err != nil {
		return 0, fmt.Errorf("update on %s failed: %w", c.Name(), err)
	}
	return res.MatchedCount, nil
}

// UpdateOne is RawUpdateOne.
func (c *MongoCollection) UpdateOne(ctx context.Context, selector, modifier any) (int64, error) {
	return c.RawUpdateOne(ctx, selector, modifier)
}

// UpdateMany is RawUpdateMany.
func (c *MongoCollection) UpdateMany(ctx context.Context, selector, modifier any) (int64, error) {
	return c.RawUpdateMany(ctx, selector, modifier)
}

// RawRemove deletes every matching document.
func (c *MongoCollection) RawRemove(ctx context.Context, selector any) (int64, error) {
	res, err := c.coll.DeleteMany(ctx, document.Selector(selector))
	if err != nil {
		return 0, fmt.Errorf("remove on %s failed: %w", c.Name(), err)
	}
	return res.DeletedCount, nil
}

// EnsureIndex creates an index. The server ignores identical existing indexes.
func (c *MongoCollection) EnsureIndex(ctx context.Context, index core.IndexSpec) error {
	keys := make(bson.D, 0, len(index.Keys))
	for _, k := range index.Keys {
		direction := 1
		if k.Direction < 0 {
			direction = -1
		}
		keys = append(keys, bson.E{Key: k.Field, Value: direction})
	}

	indexOpts := options.Index()
	if index.Name != "" {
		indexOpts.SetName(index.Name)
	}
	if index.Unique {
		indexOpts.SetUnique(true)
	}

	name, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys, Options: indexOpts})
	if err != nil {
		return fmt.Errorf("failed to create index on %s: %w", c.Name(), err)
	}
	zap.S().Debugf("[MONGO] Ensured index %s on %s", name, c.Name())
	return nil
}

// DropIndex drops an index by name.
func (c *MongoCollection) DropIndex(ctx context.Context, name string) error {
	if _, err := c.coll.Indexes().DropOne(ctx, name); err != nil {
		return fmt.Errorf("failed to drop index %s on %s: %w", name, c.Name(), err)
	}
	return nil
}

// BulkWrite applies the operations in order.
func (c *MongoCollection) BulkWrite(ctx context.Context, operations []core.BulkOperation) (*core.BulkWriteResult, error) {
	models := make([]mongo.WriteModel, 0, len(operations))
	for i, op := range operations {
		model, err := writeModel(op)
		if err != nil {
			return nil, fmt.Errorf("bulk operation %d: %w", i, err)
		}
		models = append(models, model)
	}

	res, err := c.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return nil, fmt.Errorf("bulk write on %s failed: %w", c.Name(), err)
	}
	return &core.BulkWriteResult{
		InsertedCount: res.InsertedCount,
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
		DeletedCount:  res.DeletedCount,
		UpsertedCount: res.UpsertedCount,
	}, nil
}

func writeModel(op core.BulkOperation) (mongo.WriteModel, error) {
	filter := document.Selector(op.Filter)
	switch op.Type {
	case core.BulkInsertOne:
		return mongo.NewInsertOneModel().SetDocument(op.Document), nil
	case core.BulkUpdateOne:
		return mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(op.Update).SetUpsert(op.Upsert), nil
	case core.BulkUpdateMany:
		return mongo.NewUpdateManyModel().SetFilter(filter).SetUpdate(op.Update).SetUpsert(op.Upsert), nil
	case core.BulkReplaceOne:
		return mongo.NewReplaceOneModel().SetFilter(filter).SetReplacement(op.Replacement).SetUpsert(op.Upsert), nil
	case core.BulkDeleteOne:
		return mongo.NewDeleteOneModel().SetFilter(filter), nil
	case core.BulkDeleteMany:
		return mongo.NewDeleteManyModel().SetFilter(filter), nil
	}
	return nil, fmt.Errorf("unsupported bulk operation %q", op.Type)
}

// FindOneAndUpdate updates one document and returns it before or after the
// update.
func (c *MongoCollection) FindOneAndUpdate(ctx context.Context, selector, modifier any, opts *core.FindOneAndUpdateOptions) (core.Document, error) {
	updateOpts := options.FindOneAndUpdate()
	if opts != nil {
		if opts.Sort != nil {
			updateOpts.SetSort(opts.Sort)
		}
		updateOpts.SetUpsert(opts.Upsert)
		if opts.ReturnNew {
			updateOpts.SetReturnDocument(options.After)
		}
	}
	return c.decodeOne(c.coll.FindOneAndUpdate(ctx, document.Selector(selector), modifier, updateOpts))
}

// Options returns a copy of the collection options.
func (c *MongoCollection) Options() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.options)
}

// SetOption sets a collection option.
func (c *MongoCollection) SetOption(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.options[key] = value
}

// IsConnected pings the primary.
func (c *MongoCollection) IsConnected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return c.coll.Database().Client().Ping(ctx, readpref.Primary()) == nil
}

func (c *MongoCollection) decodeAll(ctx context.Context, cursor *mongo.Cursor) ([]core.Document, error) {
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode documents of %s: %w", c.Name(), err)
	}
	docs := make([]core.Document, 0, len(raw))
	for _, m := range raw {
		docs = append(docs, document.ToMap(m))
	}
	return docs, nil
}

// decodeOne treats a missing document as a nil result.
func (c *MongoCollection) decodeOne(res *mongo.SingleResult) (core.Document, error) {
	var m bson.M
	if err := res.Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode document of %s: %w", c.Name(), err)
	}
	return document.ToMap(m), nil
}

func idString(id any) string {
	if oid, ok := id.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return fmt.Sprint(id)
}

var _ core.Collection = (*MongoCollection)(nil)
