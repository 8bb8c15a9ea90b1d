// Package recent keeps a bounded, most-recent-first list of products a client
// has looked at.
//
// The list is stored as a JSON array under a single key of a kvstore.Store.
// Entries are unique by id; recording a product that is already present moves
// it to the front. Failures never reach the caller: a broken store or a
// corrupt value degrades to an empty list and is logged.
package recent

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/fiber/v2/log"
	"github.com/wichananm65/recently-viewed/internal/kvstore"
)

const (
	// Key is the store key holding the serialized list.
	Key = "recentlyViewed"
	// MaxItems is the default bound on the list length.
	MaxItems = 10
)

type Cache struct {
	store    kvstore.Store
	key      string
	maxItems int
	lock     sync.Locker
	metrics  *Metrics
}

type Option func(*Cache)

// WithMaxItems overrides the list bound. Values below 1 are ignored.
func WithMaxItems(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxItems = n
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

func withLock(l sync.Locker) Option {
	return func(c *Cache) { c.lock = l }
}

func NewCache(store kvstore.Store, opts ...Option) *Cache {
	c := &Cache{
		store:    store,
		key:      Key,
		maxItems: MaxItems,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.lock == nil {
		c.lock = &sync.Mutex{}
	}
	return c
}

// RecordView puts p at the front of the list. A nil product is logged and
// ignored.
//
// Calls on the same list are serialized in-process. When the store is a
// kvstore.Updater the read-modify-write is also atomic in the store, and a
// corrupt value is replaced by the new list in the same step.
func (c *Cache) RecordView(ctx context.Context, p *Product) {
	if p == nil {
		log.Errorf("recent: invalid product: %v", p)
		c.metrics.invalid()
		return
	}
	s := Project(*p)

	c.lock.Lock()
	defer c.lock.Unlock()

	if u, ok := c.store.(kvstore.Updater); ok {
		var (
			corrupt bool
			stale   string
		)
		err := u.Update(ctx, c.key, func(cur string, ok bool) (string, error) {
			list, err := decodeList(cur, ok)
			if err != nil {
				log.Errorf("recent: stored list is corrupt, replacing it: %v", err)
				c.metrics.corrupt("write")
				corrupt, stale = true, cur
				list = nil
			}
			return encodeList(c.push(list, s))
		})
		if err != nil {
			log.Errorf("recent: save viewed product %s: %v", s.ID, err)
			c.metrics.storeError("update")
			if corrupt {
				c.removeStale(ctx, stale)
			}
			return
		}
		c.metrics.viewRecorded()
		return
	}

	cur, ok, err := c.store.Get(ctx, c.key)
	if err != nil {
		log.Errorf("recent: read list: %v", err)
		c.metrics.storeError("get")
		return
	}
	list, err := decodeList(cur, ok)
	if err != nil {
		log.Errorf("recent: stored list is corrupt, removing it: %v", err)
		c.metrics.corrupt("write")
		if err := c.store.Remove(ctx, c.key); err != nil {
			log.Errorf("recent: remove corrupt list: %v", err)
			c.metrics.storeError("remove")
		}
		list = nil
	}

	data, err := encodeList(c.push(list, s))
	if err != nil {
		log.Errorf("recent: encode list: %v", err)
		return
	}
	if err := c.store.Set(ctx, c.key, data); err != nil {
		log.Errorf("recent: save viewed product %s: %v", s.ID, err)
		c.metrics.storeError("set")
		return
	}
	c.metrics.viewRecorded()
}

// RecordRaw decodes a product from JSON and records it. Anything that is not
// a JSON object is logged and ignored.
func (c *Cache) RecordRaw(ctx context.Context, data []byte) {
	p, err := DecodeProduct(data)
	if err != nil {
		log.Errorf("recent: invalid product %q: %v", truncate(data, 64), err)
		c.metrics.invalid()
		return
	}
	c.RecordView(ctx, p)
}

// RecentlyViewed returns the list, most recent first. It never returns nil.
// A corrupt stored value is logged, removed, and reported as an empty list.
func (c *Cache) RecentlyViewed(ctx context.Context) []Summary {
	cur, ok, err := c.store.Get(ctx, c.key)
	if err != nil {
		log.Errorf("recent: read list: %v", err)
		c.metrics.storeError("get")
		return []Summary{}
	}
	list, err := decodeList(cur, ok)
	if err != nil {
		log.Errorf("recent: stored list is corrupt, removing it: %v", err)
		c.metrics.corrupt("read")
		c.removeIfUnchanged(ctx, cur)
		return []Summary{}
	}
	if list == nil {
		return []Summary{}
	}
	return list
}

// Clear drops the whole list, as on logout.
func (c *Cache) Clear(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.store.Remove(ctx, c.key); err != nil {
		c.metrics.storeError("remove")
		return err
	}
	return nil
}

// removeIfUnchanged deletes the key only if it still holds stale, so a list
// written by a concurrent RecordView is kept.
func (c *Cache) removeIfUnchanged(ctx context.Context, stale string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.removeStale(ctx, stale)
}

// removeStale is removeIfUnchanged for callers already holding c.lock.
func (c *Cache) removeStale(ctx context.Context, stale string) {
	cur, ok, err := c.store.Get(ctx, c.key)
	if err != nil {
		c.metrics.storeError("get")
		return
	}
	if !ok || cur != stale {
		return
	}
	if err := c.store.Remove(ctx, c.key); err != nil {
		log.Errorf("recent: remove corrupt list: %v", err)
		c.metrics.storeError("remove")
	}
}

// push returns list with s at the front, any older entry with the same id
// dropped, and the result cut to the cache bound.
func (c *Cache) push(list []Summary, s Summary) []Summary {
	out := make([]Summary, 0, len(list)+1)
	out = append(out, s)
	for _, item := range list {
		if item.ID == s.ID {
			continue
		}
		out = append(out, item)
	}
	if len(out) > c.maxItems {
		out = out[:c.maxItems]
	}
	return out
}

func decodeList(raw string, ok bool) ([]Summary, error) {
	if !ok || raw == "" {
		return nil, nil
	}
	var list []Summary
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, err
	}
	return list, nil
}

func encodeList(list []Summary) (string, error) {
	b, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
