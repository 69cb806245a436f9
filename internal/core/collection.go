package core

import (
	"context"
)

// Document is a single record as seen by callers of a Collection.
type Document = map[string]any

// FindOptions mirrors the document-store find options.
type FindOptions struct {
	// Sort is an ordered sort specification (bson.D) or a map of field to
	// direction. Maps are applied in field-name order.
	Sort any

	// Limit caps the number of returned documents. Zero means no limit.
	Limit int64

	// Skip drops the first Skip matching documents.
	Skip int64

	// Projection is an inclusion or exclusion projection.
	Projection any
}

// BulkOperationType identifies the kind of a bulk write operation.
type BulkOperationType string

const (
	BulkInsertOne  BulkOperationType = "insertOne"
	BulkUpdateOne  BulkOperationType = "updateOne"
	BulkUpdateMany BulkOperationType = "updateMany"
	BulkDeleteOne  BulkOperationType = "deleteOne"
	BulkDeleteMany BulkOperationType = "deleteMany"
	BulkReplaceOne BulkOperationType = "replaceOne"
)

// BulkOperation is one element of a BulkWrite call.
type BulkOperation struct {
	Type BulkOperationType

	// Document is the document to insert for insertOne.
	Document Document

	// Filter selects the documents for update, delete and replace operations.
	Filter any

	// Update is the update modifier for updateOne and updateMany.
	Update any

	// Replacement is the new document for replaceOne.
	Replacement Document

	// Upsert inserts a document when the filter matches nothing.
	Upsert bool
}

// BulkWriteResult summarizes a BulkWrite call.
type BulkWriteResult struct {
	InsertedCount int64
	MatchedCount  int64
	ModifiedCount int64
	DeletedCount  int64
	UpsertedCount int64
}

// FindOneAndUpdateOptions configures FindOneAndUpdate.
type FindOneAndUpdateOptions struct {
	// Sort picks which document is updated when several match.
	Sort any

	// Upsert inserts a document when the selector matches nothing.
	Upsert bool

	// ReturnNew returns the document after the update instead of before.
	ReturnNew bool
}

// Collection defines the operations shared by every backing store of a
// logical collection. Both the document store and the relational store
// implement it, and so does the routing collection that switches between them.
type Collection interface {
	// Name returns the logical collection name.
	Name() string

	// Find returns all documents matching the selector.
	Find(ctx context.Context, selector any, opts *FindOptions) ([]Document, error)

	// FindOne returns the first matching document, or nil if none matches.
	// A string selector is treated as an _id.
	FindOne(ctx context.Context, selector any, opts *FindOptions) (Document, error)

	// FindOneArbitrary returns any single document, or nil for an empty collection.
	FindOneArbitrary(ctx context.Context) (Document, error)

	// Count returns the number of documents matching the selector.
	Count(ctx context.Context, selector any) (int64, error)

	// Aggregate runs an aggregation pipeline.
	Aggregate(ctx context.Context, pipeline []any) ([]Document, error)

	// Indexes lists the indexes of the collection.
	Indexes(ctx context.Context) ([]IndexSpec, error)

	// RawInsert inserts a document and returns its _id.
	RawInsert(ctx context.Context, doc Document) (string, error)

	// RawUpdateOne updates at most one document and returns the number of
	// documents matched.
	RawUpdateOne(ctx context.Context, selector any, modifier any) (int64, error)

	// RawUpdateMany updates all matching documents and returns the number of
	// documents matched.
	RawUpdateMany(ctx context.Context, selector any, modifier any) (int64, error)

	// RawRemove removes all matching documents and returns how many were removed.
	RawRemove(ctx context.Context, selector any) (int64, error)

	// EnsureIndex creates the index if it does not exist yet.
	EnsureIndex(ctx context.Context, index IndexSpec) error

	// BulkWrite applies a list of write operations.
	BulkWrite(ctx context.Context, operations []BulkOperation) (*BulkWriteResult, error)

	// FindOneAndUpdate updates one document and returns it.
	// Returns nil if nothing matched and no upsert happened.
	FindOneAndUpdate(ctx context.Context, selector any, modifier any, opts *FindOneAndUpdateOptions) (Document, error)

	// DropIndex removes an index by name.
	DropIndex(ctx context.Context, name string) error

	// UpdateOne and UpdateMany are the raw-collection flavours of the update
	// operations. They return the number of documents matched.
	UpdateOne(ctx context.Context, selector any, modifier any) (int64, error)
	UpdateMany(ctx context.Context, selector any, modifier any) (int64, error)

	// Options returns the collection-level options.
	Options() map[string]any

	// SetOption sets a collection-level option.
	SetOption(key string, value any)

	// IsConnected reports whether the backing store connection is usable.
	IsConnected() bool
}
