package kvstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"
)

type fakeEntry struct {
	key      string
	value    []byte
	revision uint64
}

func (e fakeEntry) Bucket() string                  { return "test" }
func (e fakeEntry) Key() string                     { return e.key }
func (e fakeEntry) Value() []byte                   { return e.value }
func (e fakeEntry) Revision() uint64                { return e.revision }
func (e fakeEntry) Created() time.Time              { return time.Time{} }
func (e fakeEntry) Delta() uint64                   { return 0 }
func (e fakeEntry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }

// fakeBucket mimics the revision semantics of a JetStream KV bucket.
type fakeBucket struct {
	mu      sync.Mutex
	entries map[string]fakeEntry
	seq     uint64

	// interfere runs before a CAS write; used to simulate a concurrent writer
	interfere func(b *fakeBucket, key string)
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{entries: make(map[string]fakeEntry)}
}

func (b *fakeBucket) put(key string, value []byte) uint64 {
	b.seq++
	b.entries[key] = fakeEntry{key: key, value: append([]byte(nil), value...), revision: b.seq}
	return b.seq
}

func (b *fakeBucket) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return e, nil
}

func (b *fakeBucket) Put(_ context.Context, key string, value []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.put(key, value), nil
}

func (b *fakeBucket) Create(_ context.Context, key string, value []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.interfere != nil {
		b.interfere(b, key)
	}
	if _, ok := b.entries[key]; ok {
		return 0, jetstream.ErrKeyExists
	}
	return b.put(key, value), nil
}

func (b *fakeBucket) Update(_ context.Context, key string, value []byte, revision uint64) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.interfere != nil {
		b.interfere(b, key)
	}
	if e, ok := b.entries[key]; !ok || e.revision != revision {
		return 0, errors.New("nats: wrong last sequence: 10071")
	}
	return b.put(key, value), nil
}

func (b *fakeBucket) Delete(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

func TestNATSStore(t *testing.T) {
	exerciseStore(t, NewNATSStore(newFakeBucket(), NATSOptions{MaxRetries: 3, RetryDelay: time.Millisecond}))
}

func TestNATSStore_UpdateRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	s := NewNATSStore(bucket, NATSOptions{MaxRetries: 3, RetryDelay: time.Millisecond})
	require.NoError(t, s.Set(ctx, "k", "a"))

	interfered := false
	bucket.interfere = func(b *fakeBucket, key string) {
		if !interfered {
			interfered = true
			b.put(key, []byte("a,b"))
		}
	}

	calls := 0
	require.NoError(t, s.Update(ctx, "k", func(cur string, ok bool) (string, error) {
		calls++
		return cur + ",c", nil
	}))
	require.Equal(t, 2, calls, "conflicting write must be retried against the fresh value")

	v, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "a,b,c", v)
}

func TestNATSStore_UpdateCreateConflict(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	s := NewNATSStore(bucket, NATSOptions{MaxRetries: 3, RetryDelay: time.Millisecond})

	interfered := false
	bucket.interfere = func(b *fakeBucket, key string) {
		if !interfered {
			interfered = true
			b.put(key, []byte("other"))
		}
	}

	require.NoError(t, s.Update(ctx, "k", func(cur string, ok bool) (string, error) {
		if !ok {
			return "mine", nil
		}
		return cur + "+mine", nil
	}))
	v, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "other+mine", v)
}

func TestNATSStore_UpdateGivesUp(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	s := NewNATSStore(bucket, NATSOptions{MaxRetries: 2, RetryDelay: time.Millisecond})
	require.NoError(t, s.Set(ctx, "k", "a"))

	bucket.interfere = func(b *fakeBucket, key string) { b.put(key, []byte("x")) }

	err := s.Update(ctx, "k", func(cur string, ok bool) (string, error) { return "y", nil })
	require.Error(t, err)
}

func TestNATSStore_PrefixedKeysUseKVAlphabet(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	s := WithPrefix(NewNATSStore(bucket, DefaultNATSOptions()), "device:6f1c2b1e-6b7e-4a53-9f0e-3a3f7d1c2b10:")

	require.NoError(t, s.Set(ctx, "recentlyViewed", "[]"))
	_, ok := bucket.entries["device.6f1c2b1e-6b7e-4a53-9f0e-3a3f7d1c2b10.recentlyViewed"]
	require.True(t, ok, "colons must be mapped to dots")

	v, ok, err := s.Get(ctx, "recentlyViewed")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "[]", v)
}
