package kvstore

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cached is a read-through LRU front for a slower store. Only present keys
// are cached; writes go to the backing store first.
//
// Every write bumps gen under mu before touching the front. A Get fills the
// front only if no write completed while it read the backing store, so a
// value read before a write is never cached after it.
type cached struct {
	base  Store
	front *lru.Cache[string, string]

	mu  sync.Mutex
	gen uint64
}

type cachedUpdater struct {
	*cached
	updater Updater
}

// NewCached puts an LRU front of the given size before base. The result
// implements Updater when base does.
func NewCached(base Store, size int) (Store, error) {
	front, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("kvstore: lru front: %w", err)
	}
	c := &cached{base: base, front: front}
	if u, ok := base.(Updater); ok {
		return &cachedUpdater{cached: c, updater: u}, nil
	}
	return c, nil
}

func (c *cached) Get(ctx context.Context, key string) (string, bool, error) {
	if v, ok := c.front.Get(key); ok {
		return v, true, nil
	}

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	v, ok, err := c.base.Get(ctx, key)
	if err != nil || !ok {
		return v, ok, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.front.Add(key, v)
	}
	c.mu.Unlock()
	return v, true, nil
}

func (c *cached) Set(ctx context.Context, key, value string) error {
	err := c.base.Set(ctx, key, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if err != nil {
		c.front.Remove(key)
		return err
	}
	c.front.Add(key, value)
	return nil
}

func (c *cached) Remove(ctx context.Context, key string) error {
	err := c.base.Remove(ctx, key)
	c.invalidate(key)
	return err
}

func (c *cached) invalidate(key string) {
	c.mu.Lock()
	c.gen++
	c.front.Remove(key)
	c.mu.Unlock()
}

// Update always reads through to the backing store and drops the cached copy
// afterwards, since the front cannot take part in the backend's atomicity.
func (c *cachedUpdater) Update(ctx context.Context, key string, fn UpdateFunc) error {
	c.front.Remove(key)
	defer c.invalidate(key)
	return c.updater.Update(ctx, key, fn)
}
