package core

import "errors"

var (
	// ErrKeyNotFound is returned by KVStore.Get when the key is absent.
	ErrKeyNotFound = errors.New("key not found")

	// ErrStoreClosed is returned when a closed store is used.
	ErrStoreClosed = errors.New("store is closed")
)
