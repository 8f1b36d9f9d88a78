package timeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T, maxItems int) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, maxItems), mr
}

func TestPushIdempotent(t *testing.T) {
	store, _ := setupStore(t, 10)
	ctx := context.Background()
	key := HomeKey("alice")

	require.NoError(t, store.Push(ctx, key, "post1", 100))
	require.NoError(t, store.Push(ctx, key, "post1", 200))

	n, err := store.Card(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// most recent score retained
	ids, err := store.Range(ctx, key, 300, 150, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"post1"}, ids)
}

func TestPushTrimsToCeiling(t *testing.T) {
	const cap = 5
	store, _ := setupStore(t, cap)
	ctx := context.Background()
	key := HomeKey("bob")

	for i := 0; i < 20; i++ {
		require.NoError(t, store.Push(ctx, key, fmt.Sprintf("post%02d", i), float64(i)))
	}

	n, err := store.Card(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(cap), n)

	// survivors are the highest-scored members
	ids, err := store.Latest(ctx, key, cap)
	require.NoError(t, err)
	assert.Equal(t, []string{"post19", "post18", "post17", "post16", "post15"}, ids)
}

func TestRemove(t *testing.T) {
	store, _ := setupStore(t, 10)
	ctx := context.Background()
	key := MentionsKey("carol")

	require.NoError(t, store.Push(ctx, key, "post1", 1))
	require.NoError(t, store.Remove(ctx, key, "post1"))
	// removing an absent member is a no-op
	require.NoError(t, store.Remove(ctx, key, "post1"))

	n, err := store.Card(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRemoveBulk(t *testing.T) {
	store, _ := setupStore(t, 10)
	ctx := context.Background()
	keys := []string{HomeKey("a"), HomeKey("b"), PublicKey(false, false)}

	for _, k := range keys {
		require.NoError(t, store.Push(ctx, k, "post1", 1))
	}
	require.NoError(t, store.RemoveBulk(ctx, keys, "post1"))
	for _, k := range keys {
		ok, err := store.Contains(ctx, k, "post1")
		require.NoError(t, err)
		assert.False(t, ok, k)
	}
}

func TestRangeDescending(t *testing.T) {
	store, _ := setupStore(t, 10)
	ctx := context.Background()
	key := TagKey("test", false)

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.Push(ctx, key, fmt.Sprintf("post%d", i), float64(i*10)))
	}

	ids, err := store.Range(ctx, key, 40, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"post4", "post3", "post2"}, ids)

	ids, err = store.Range(ctx, key, 50, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"post5", "post4"}, ids)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "feed:home:x", HomeKey("x"))
	assert.Equal(t, "feed:public", PublicKey(false, false))
	assert.Equal(t, "feed:public:local", PublicKey(true, false))
	assert.Equal(t, "feed:public:local:media", PublicKey(true, true))
	assert.Equal(t, "feed:hashtag:test:local", TagKey("test", true))
}
