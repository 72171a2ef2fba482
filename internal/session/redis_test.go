package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisWithClient(client, ttl)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisRoundTrip(t *testing.T) {
	store, _ := newRedisStore(t, 0)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	history, err := store.History(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, history)

	ts := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.Append(ctx, "s1",
		Message{Role: RoleUser, Content: "hi", Timestamp: ts},
		Message{Role: RoleAssistant, Content: "hello", Timestamp: ts},
	))

	history, err = store.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, RoleUser, history[0].Role)
	require.Equal(t, "hi", history[0].Content)
	require.True(t, ts.Equal(history[0].Timestamp))
}

func TestRedisReplaceAndEvict(t *testing.T) {
	store, _ := newRedisStore(t, 0)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", Message{Role: RoleUser, Content: "old"}))
	require.NoError(t, store.Replace(ctx, "s1", []Message{{Role: RoleUser, Content: "new"}}))

	history, err := store.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "new", history[0].Content)

	require.NoError(t, store.Evict(ctx, "s1"))
	history, err = store.History(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestRedisReplaceWithEmptyHistoryClears(t *testing.T) {
	store, _ := newRedisStore(t, 0)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", Message{Role: RoleUser, Content: "old"}))
	require.NoError(t, store.Replace(ctx, "s1", nil))

	history, err := store.History(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestRedisAppendRefreshesTTL(t *testing.T) {
	store, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", Message{Role: RoleUser, Content: "hi"}))
	require.Greater(t, mr.TTL(keyPrefix+"s1"), time.Duration(0))

	mr.FastForward(2 * time.Minute)
	history, err := store.History(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, history)
}
