package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockMutualExclusion(t *testing.T) {
	l := NewLock(newTestRedis(t), time.Minute)
	ctx := context.Background()

	token, ok, err := l.Acquire(ctx, "bob@remote.example")
	require.NoError(t, err)
	require.True(t, ok)

	// held: a second acquire fails without error
	_, ok, err = l.Acquire(ctx, "bob@remote.example")
	require.NoError(t, err)
	assert.False(t, ok)

	// other handles are independent
	_, ok, err = l.Acquire(ctx, "carol@remote.example")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Release(ctx, "bob@remote.example", token))
	_, ok, err = l.Acquire(ctx, "bob@remote.example")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockReleaseRequiresOwnership(t *testing.T) {
	l := NewLock(newTestRedis(t), time.Minute)
	ctx := context.Background()

	token, ok, err := l.Acquire(ctx, "bob@remote.example")
	require.NoError(t, err)
	require.True(t, ok)

	// a stranger's token must not free the lock
	require.NoError(t, l.Release(ctx, "bob@remote.example", "not-the-token"))
	_, ok, err = l.Acquire(ctx, "bob@remote.example")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "bob@remote.example", token))
}
