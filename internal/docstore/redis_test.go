package docstore

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/lepinkainen/backlogsync/internal/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedis(client, "backlogsync:test")
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedis_Contract(t *testing.T) {
	store, _ := newTestRedis(t)
	testStoreContract(t, store)
}

func TestRedis_HistoryIsCapped(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedis(t)

	rev, err := store.Write(ctx, nil, "", "Create backlog")
	require.NoError(t, err)
	for range historyLimit + 5 {
		rev, err = store.Write(ctx, nil, rev, "Touch")
		require.NoError(t, err)
	}

	entries, err := store.History(ctx, historyLimit*2)
	require.NoError(t, err)
	assert.Len(t, entries, historyLimit)
	assert.True(t, strings.HasPrefix(entries[0], string(rev)))
}

func TestRedis_ServerDownIsTransient(t *testing.T) {
	store, mr := newTestRedis(t)
	mr.Close()

	_, err := store.Read(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransientError(err))
}
