package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, opts...), mr
}

func TestStores_Contract(t *testing.T) {
	redisStore, _ := setupRedisStore(t)
	memory := NewMemoryStore()
	cached, err := NewCachedStore(NewMemoryStore(), 8)
	require.NoError(t, err)

	stores := map[string]Store{
		"memory": memory,
		"redis":  redisStore,
		"cached": cached,
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			key := ConversationKey("conv-1", "dialogState")

			_, err := store.Get(ctx, key)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Set(ctx, key, []byte(`{"a":1}`)))
			got, err := store.Get(ctx, key)
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":1}`, string(got))

			require.NoError(t, store.Set(ctx, key, []byte(`{"a":2}`)))
			got, err = store.Get(ctx, key)
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":2}`, string(got))

			require.NoError(t, store.Delete(ctx, key))
			_, err = store.Get(ctx, key)
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = store.Get(ctx, Key{Scope: ScopeUser, Property: "profile"})
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	key := UserKey("u1", "profile")
	value := []byte("abc")

	require.NoError(t, store.Set(ctx, key, value))
	value[0] = 'x'

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[1] = 'y'
	again, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestRedisStore_PrefixAndTTL(t *testing.T) {
	store, mr := setupRedisStore(t, WithPrefix("test"), WithTTL(time.Hour))
	ctx := t.Context()

	require.NoError(t, store.Set(ctx, ConversationKey("c1", "dialogState"), []byte("x")))
	assert.True(t, mr.Exists("test:conversation:c1:dialogState"))
	assert.Greater(t, mr.TTL("test:conversation:c1:dialogState").Seconds(), 0.0)
}

func TestRedisStore_ConnectionError(t *testing.T) {
	store, mr := setupRedisStore(t)
	mr.Close()

	_, err := store.Get(t.Context(), ConversationKey("c1", "dialogState"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

type countingStore struct {
	*MemoryStore
	gets int
}

func (s *countingStore) Get(ctx context.Context, key Key) ([]byte, error) {
	s.gets++
	return s.MemoryStore.Get(ctx, key)
}

func TestCachedStore_ServesFromCache(t *testing.T) {
	ctx := t.Context()
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	key := UserKey("u1", "profile")
	require.NoError(t, backing.MemoryStore.Set(ctx, key, []byte("v")))

	cached, err := NewCachedStore(backing, 2)
	require.NoError(t, err)

	for range 3 {
		got, err := cached.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "v", string(got))
	}
	assert.Equal(t, 1, backing.gets)

	require.NoError(t, cached.Delete(ctx, key))
	_, err = cached.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, backing.gets)
}

func TestObjectName_EscapesSegments(t *testing.T) {
	assert.Equal(t, "user/a%2Fb/profile", objectName(UserKey("a/b", "profile")))
}
