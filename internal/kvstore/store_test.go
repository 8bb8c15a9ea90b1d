package kvstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// exerciseStore checks the contract every backend shares.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	raw := `[{"id":1,"name":"Cat Sweater","price":"260.00"}]` + "\n\t"
	require.NoError(t, s.Set(ctx, "recentlyViewed", raw))
	got, ok, err := s.Get(ctx, "recentlyViewed")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, raw, got, "values must round-trip byte for byte")

	require.NoError(t, s.Set(ctx, "recentlyViewed", "[]"))
	got, _, err = s.Get(ctx, "recentlyViewed")
	require.NoError(t, err)
	require.Equal(t, "[]", got)

	require.NoError(t, s.Remove(ctx, "recentlyViewed"))
	_, ok, err = s.Get(ctx, "recentlyViewed")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Remove(ctx, "recentlyViewed"), "removing an absent key is not an error")

	if u, isUpdater := s.(Updater); isUpdater {
		require.NoError(t, u.Update(ctx, "counter", func(cur string, ok bool) (string, error) {
			require.False(t, ok)
			return "1", nil
		}))
		require.NoError(t, u.Update(ctx, "counter", func(cur string, ok bool) (string, error) {
			require.True(t, ok)
			require.Equal(t, "1", cur)
			return "2", nil
		}))
		require.NoError(t, u.Update(ctx, "counter", func(string, bool) (string, error) {
			return "", ErrSkip
		}))
		boom := errors.New("boom")
		require.ErrorIs(t, u.Update(ctx, "counter", func(string, bool) (string, error) {
			return "", boom
		}), boom)
		got, _, err := s.Get(ctx, "counter")
		require.NoError(t, err)
		require.Equal(t, "2", got)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(nil))
}

func TestMemoryStore_Seed(t *testing.T) {
	s := NewMemoryStore(map[string]string{"a": "1"})
	v, ok, err := s.Get(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", v)
	require.Equal(t, 1, s.Len())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "kv.json")
	s, err := OpenFileStore(path)
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.json")

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "recentlyViewed", `[{"id":7}]`))
	require.NoError(t, s.Close())

	_, _, err = s.Get(ctx, "recentlyViewed")
	require.ErrorIs(t, err, ErrClosed)

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get(ctx, "recentlyViewed")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `[{"id":7}]`, v)
}

func TestFileStore_CorruptSnapshotStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	_, ok, err := s.Get(context.Background(), "recentlyViewed")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWithPrefix(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore(nil)
	alice := WithPrefix(base, "user:1:")
	bob := WithPrefix(base, "user:2:")

	exerciseStore(t, alice)

	require.NoError(t, alice.Set(ctx, "recentlyViewed", "a"))
	require.NoError(t, bob.Set(ctx, "recentlyViewed", "b"))

	v, _, err := base.Get(ctx, "user:1:recentlyViewed")
	require.NoError(t, err)
	require.Equal(t, "a", v)
	v, _, err = bob.Get(ctx, "recentlyViewed")
	require.NoError(t, err)
	require.Equal(t, "b", v)

	_, isUpdater := alice.(Updater)
	require.True(t, isUpdater, "prefix view over an Updater must stay an Updater")
}

// plainStore hides the Updater method of the memory store.
type plainStore struct{ s *MemoryStore }

func (p plainStore) Get(ctx context.Context, k string) (string, bool, error) { return p.s.Get(ctx, k) }
func (p plainStore) Set(ctx context.Context, k, v string) error               { return p.s.Set(ctx, k, v) }
func (p plainStore) Remove(ctx context.Context, k string) error               { return p.s.Remove(ctx, k) }

func TestWrappers_DoNotInventUpdater(t *testing.T) {
	base := plainStore{s: NewMemoryStore(nil)}
	_, isUpdater := WithPrefix(base, "x:").(Updater)
	require.False(t, isUpdater)

	c, err := NewCached(base, 4)
	require.NoError(t, err)
	_, isUpdater = c.(Updater)
	require.False(t, isUpdater)
}

func TestCached(t *testing.T) {
	c, err := NewCached(NewMemoryStore(nil), 8)
	require.NoError(t, err)
	exerciseStore(t, c)
}

func TestCached_ServesFromFront(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore(nil)
	c, err := NewCached(base, 8)
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "k", "v1"))
	// bypass the front; the cached copy is still served
	require.NoError(t, base.Set(ctx, "k", "v2"))
	v, _, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v1", v)

	// Update invalidates the front
	require.NoError(t, c.(Updater).Update(ctx, "k", func(cur string, ok bool) (string, error) {
		require.Equal(t, "v2", cur)
		return "v3", nil
	}))
	v, _, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v3", v)
}

// slowReadStore runs onGet after reading the value and before returning it,
// like a write that lands while a read is in flight.
type slowReadStore struct {
	*MemoryStore
	onGet func()
}

func (s *slowReadStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.MemoryStore.Get(ctx, key)
	if s.onGet != nil {
		hook := s.onGet
		s.onGet = nil
		hook()
	}
	return v, ok, err
}

func TestCached_ReadRacingWriteIsNotCached(t *testing.T) {
	ctx := context.Background()

	for name, write := range map[string]func(c Store) error{
		"update": func(c Store) error {
			return c.(Updater).Update(ctx, "k", func(string, bool) (string, error) { return "new", nil })
		},
		"set": func(c Store) error { return c.Set(ctx, "k", "new") },
	} {
		t.Run(name, func(t *testing.T) {
			base := &slowReadStore{MemoryStore: NewMemoryStore(map[string]string{"k": "old"})}
			c, err := NewCached(base, 8)
			require.NoError(t, err)

			base.onGet = func() { require.NoError(t, write(c)) }
			v, _, err := c.Get(ctx, "k")
			require.NoError(t, err)
			require.Equal(t, "old", v, "the in-flight read returns what it saw")

			v, _, err = c.Get(ctx, "k")
			require.NoError(t, err)
			require.Equal(t, "new", v, "a value read before a write must not be cached after it")
		})
	}
}
