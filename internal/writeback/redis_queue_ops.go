package writeback

import (
	"context"
)

// ListOperations are the list commands RedisQueue needs from its KVStore.
type ListOperations interface {
	// ListPush appends a value to a list (RPUSH).
	ListPush(ctx context.Context, key string, value []byte) error

	// ListPop removes and returns the first element (LPOP).
	// Returns nil if the list is empty.
	ListPop(ctx context.Context, key string) ([]byte, error)

	// ListLength returns the length of a list (LLEN).
	ListLength(ctx context.Context, key string) (int64, error)
}
