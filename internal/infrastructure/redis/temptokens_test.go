package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/newsinsight/api/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*TempTokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTempTokenStore(client), mr
}

func TestIssueAndResolve(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, "u1", 10*time.Minute)
	require.NoError(t, err)
	assert.Len(t, token, 64) // 32 random bytes, hex encoded

	// Resolve does not consume; a second resolve still works.
	for i := 0; i < 2; i++ {
		userID, err := store.Resolve(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "u1", userID)
	}
}

func TestResolve_UnknownToken(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.Resolve(context.Background(), "deadbeef")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestConsume_SingleUse(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, "u1", 10*time.Minute)
	require.NoError(t, err)

	userID, err := store.Consume(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	_, err = store.Consume(ctx, token)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = store.Resolve(ctx, token)
	require.Error(t, err)
}

func TestIssue_TokensExpire(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, "u1", 10*time.Minute)
	require.NoError(t, err)

	mr.FastForward(10*time.Minute + time.Second)

	_, err = store.Resolve(ctx, token)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestIssue_TokensAreUnique(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	a, err := store.Issue(ctx, "u1", time.Minute)
	require.NoError(t, err)
	b, err := store.Issue(ctx, "u1", time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
