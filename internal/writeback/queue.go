package writeback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rzpsarthak13/docbridge/internal/core"
)

var (
	// ErrQueueClosed is returned when a closed queue is used.
	ErrQueueClosed = errors.New("backfill queue is closed")

	// ErrQueueFull is returned when a bounded queue cannot take more operations.
	ErrQueueFull = errors.New("backfill queue is full")

	// ErrInvalidOperation is returned for nil or incomplete operations.
	ErrInvalidOperation = errors.New("invalid backfill operation")

	// ErrListOperationsNotSupported is returned when the KVStore given to a
	// RedisQueue has no list operations.
	ErrListOperationsNotSupported = errors.New("KVStore does not support list operations")
)

// defaultBatchSize applies when Dequeue is called with a non-positive size.
const defaultBatchSize = 100

// prepare validates an operation and fills in its ID and timestamp.
func prepare(operation *core.BackfillOperation) error {
	if operation == nil {
		return ErrInvalidOperation
	}
	if operation.Collection == "" {
		return fmt.Errorf("%w: collection name is required", ErrInvalidOperation)
	}
	if operation.Target == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidOperation)
	}
	if operation.ID == "" {
		operation.ID = uuid.NewString()
	}
	if operation.Timestamp.IsZero() {
		operation.Timestamp = time.Now()
	}
	return nil
}

// RedisQueue implements core.BackfillQueue on Redis lists. Each collection
// has its own list and a global list feeds Dequeue.
type RedisQueue struct {
	ops    ListOperations
	prefix string

	mu     sync.RWMutex
	closed bool
}

// NewRedisQueue creates a queue whose keys are namespaced by prefix. The
// store must implement ListOperations.
func NewRedisQueue(kvStore core.KVStore, prefix string) (*RedisQueue, error) {
	ops, ok := kvStore.(ListOperations)
	if !ok {
		return nil, ErrListOperationsNotSupported
	}
	if prefix == "" {
		prefix = "docbridge:backfill"
	}
	return &RedisQueue{ops: ops, prefix: prefix}, nil
}

func (q *RedisQueue) collectionKey(collection string) string {
	return fmt.Sprintf("%s:%s", q.prefix, collection)
}

func (q *RedisQueue) globalKey() string {
	return fmt.Sprintf("%s:global", q.prefix)
}

func (q *RedisQueue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Enqueue pushes the operation onto the global list.
func (q *RedisQueue) Enqueue(ctx context.Context, operation *core.BackfillOperation) error {
	if q.isClosed() {
		return ErrQueueClosed
	}
	if err := prepare(operation); err != nil {
		return err
	}

	data, err := encodeOperation(operation)
	if err != nil {
		return err
	}
	if err := q.ops.ListPush(ctx, q.globalKey(), data); err != nil {
		return fmt.Errorf("failed to enqueue operation %s: %w", operation.ID, err)
	}
	return nil
}

// Dequeue pops up to batchSize operations in FIFO order.
func (q *RedisQueue) Dequeue(ctx context.Context, batchSize int) ([]*core.BackfillOperation, error) {
	return q.dequeue(ctx, q.globalKey(), batchSize)
}

// EnqueueForCollection pushes the operation onto its collection's list only.
func (q *RedisQueue) EnqueueForCollection(ctx context.Context, operation *core.BackfillOperation) error {
	if q.isClosed() {
		return ErrQueueClosed
	}
	if err := prepare(operation); err != nil {
		return err
	}
	data, err := encodeOperation(operation)
	if err != nil {
		return err
	}
	if err := q.ops.ListPush(ctx, q.collectionKey(operation.Collection), data); err != nil {
		return fmt.Errorf("failed to enqueue operation %s: %w", operation.ID, err)
	}
	return nil
}

// DequeueFromCollection pops operations queued with EnqueueForCollection.
func (q *RedisQueue) DequeueFromCollection(ctx context.Context, collection string, batchSize int) ([]*core.BackfillOperation, error) {
	return q.dequeue(ctx, q.collectionKey(collection), batchSize)
}

func (q *RedisQueue) dequeue(ctx context.Context, key string, batchSize int) ([]*core.BackfillOperation, error) {
	if q.isClosed() {
		return nil, ErrQueueClosed
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	operations := make([]*core.BackfillOperation, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		data, err := q.ops.ListPop(ctx, key)
		if err != nil {
			return operations, fmt.Errorf("failed to dequeue from %s: %w", key, err)
		}
		if data == nil {
			break
		}
		op, err := decodeOperation(data)
		if err != nil {
			zap.S().Errorf("[REDIS] Dropping undecodable backfill operation: %v", err)
			continue
		}
		operations = append(operations, op)
	}
	return operations, nil
}

// Size returns the length of the global list.
func (q *RedisQueue) Size() int {
	if q.isClosed() {
		return 0
	}
	length, err := q.ops.ListLength(context.Background(), q.globalKey())
	if err != nil {
		return 0
	}
	return int(length)
}

// Close marks the queue closed. The underlying store stays open.
func (q *RedisQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

var _ core.BackfillQueue = (*RedisQueue)(nil)
