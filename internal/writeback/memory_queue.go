package writeback

import (
	"context"
	"sync"

	"github.com/rzpsarthak13/docbridge/internal/core"
)

// MemoryQueue implements core.BackfillQueue with a buffered channel.
// Operations are lost when the process exits.
type MemoryQueue struct {
	queue  chan *core.BackfillOperation
	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue creates a queue holding at most bufferSize operations.
func NewMemoryQueue(bufferSize int) *MemoryQueue {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &MemoryQueue{queue: make(chan *core.BackfillOperation, bufferSize)}
}

// Enqueue adds an operation without blocking. It fails with ErrQueueFull
// when the buffer is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, operation *core.BackfillOperation) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	if err := prepare(operation); err != nil {
		return err
	}

	select {
	case q.queue <- operation:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Dequeue returns up to batchSize operations in FIFO order without waiting
// for more to arrive.
func (q *MemoryQueue) Dequeue(ctx context.Context, batchSize int) ([]*core.BackfillOperation, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	operations := make([]*core.BackfillOperation, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		select {
		case operation, ok := <-q.queue:
			if !ok {
				return operations, nil
			}
			operations = append(operations, operation)
		case <-ctx.Done():
			return operations, ctx.Err()
		default:
			return operations, nil
		}
	}
	return operations, nil
}

// Size returns the number of buffered operations.
func (q *MemoryQueue) Size() int {
	return len(q.queue)
}

// Close stops further enqueues. Buffered operations can still be dequeued.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.queue)
	return nil
}

var _ core.BackfillQueue = (*MemoryQueue)(nil)
