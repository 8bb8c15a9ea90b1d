package recent

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/wichananm65/recently-viewed/internal/kvstore"
)

const lockStripes = 64

// Registry hands out one Cache per owner over a shared store. Every owner's
// list lives under Key inside its own key prefix. Owners hashing to the same
// stripe share a lock, which only costs throughput.
type Registry struct {
	store kvstore.Store
	opts  []Option
	locks [lockStripes]sync.Mutex
}

func NewRegistry(store kvstore.Store, opts ...Option) *Registry {
	return &Registry{store: store, opts: opts}
}

// For returns the cache of owner. The empty owner maps to the unprefixed key.
func (r *Registry) For(owner string) *Cache {
	opts := make([]Option, 0, len(r.opts)+1)
	opts = append(opts, r.opts...)
	opts = append(opts, withLock(&r.locks[xxhash.Sum64String(owner)%lockStripes]))

	store := r.store
	if owner != "" {
		store = kvstore.WithPrefix(r.store, owner+":")
	}
	return NewCache(store, opts...)
}
