package core

import (
	"context"
	"time"
)

// BackfillOperation is a single document waiting to be copied from one
// backing store of a collection into the other.
type BackfillOperation struct {
	// ID uniquely identifies the operation for logging and de-duplication.
	ID string `json:"id"`

	// Collection is the logical collection name.
	Collection string `json:"collection"`

	// Target is the store the document is copied into ("mongo" or "pg").
	Target string `json:"target"`

	// Document is the full document to insert.
	Document Document `json:"document"`

	// Timestamp is when the document was read from the source store.
	Timestamp time.Time `json:"timestamp"`

	// RetryCount tracks how many times this operation has been retried.
	RetryCount int `json:"retry_count"`
}

// BackfillQueue holds backfill operations until a drainer applies them.
type BackfillQueue interface {
	// Enqueue adds an operation to the queue.
	Enqueue(ctx context.Context, operation *BackfillOperation) error

	// Dequeue retrieves up to batchSize operations.
	// Returns an empty slice if no operations are available.
	Dequeue(ctx context.Context, batchSize int) ([]*BackfillOperation, error)

	// Size returns the current number of operations in the queue.
	Size() int

	// Close closes the queue and releases resources.
	Close() error
}
