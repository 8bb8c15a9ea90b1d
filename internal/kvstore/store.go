// Package kvstore provides the persistent key-value store used to keep small
// bits of per-client state (such as the recently viewed list) across restarts.
//
// Values are opaque strings and must round-trip byte-for-byte; no backend
// re-encodes what it is given.
package kvstore

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned by backends that have been closed.
	ErrClosed = errors.New("kvstore: store closed")
	// ErrSkip may be returned by an UpdateFunc to abort an update without
	// writing anything. Update then returns nil.
	ErrSkip = errors.New("kvstore: skip update")
)

// Store is the asynchronous get/set/remove contract consumed by the cache.
// A missing key is reported with ok == false and a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// UpdateFunc receives the current value (ok == false when absent) and returns
// the value to store.
type UpdateFunc func(current string, ok bool) (string, error)

// Updater is implemented by stores that can run a read-modify-write as one
// atomic step.
type Updater interface {
	Update(ctx context.Context, key string, fn UpdateFunc) error
}
