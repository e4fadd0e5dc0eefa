package redis_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/blackcoderx/hive/pkg/storage"
	"github.com/blackcoderx/hive/pkg/storage/redis"
	"github.com/blackcoderx/hive/pkg/storage/storetest"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, opts ...redis.Option) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return redis.NewFromClient(client, opts...), mr
}

func TestRedisStore_Contract(t *testing.T) {
	store, _ := newStore(t)
	storetest.RunVariableStoreContract(t, store)
}

func TestRedisStore_UpdatesAreFieldLevel(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t, redis.WithPrefix("team:"))

	require.NoError(t, store.SaveEnvironment(ctx, &storage.Environment{
		ID:     "dev",
		Name:   "Development",
		Values: storage.Values{"a": {Value: "1", Enabled: true}},
	}))

	// Two senders persisting different keys must not lose each other's writes.
	require.NoError(t, store.PersistEnvironmentUpdates(ctx, "dev", map[string]string{"b": "2"}))
	require.NoError(t, store.PersistEnvironmentUpdates(ctx, "dev", map[string]string{"c": "3"}))

	values, err := store.EnvironmentValues(ctx, "dev")
	require.NoError(t, err)
	assert.Len(t, values, 3)
	assert.Equal(t, "2", values["b"].Value)
	assert.Equal(t, "3", values["c"].Value)

	assert.True(t, mr.Exists("team:env:dev"))
	assert.Equal(t, `{"value":"2","enabled":true}`, mr.HGet("team:env:dev", "b"))
}

func TestRedisStore_ListEnvironments(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)

	for _, id := range []string{"prod", "dev"} {
		require.NoError(t, store.SaveEnvironment(ctx, &storage.Environment{ID: id, Name: id}))
	}

	envs, err := store.ListEnvironments(ctx)
	require.NoError(t, err)
	require.Len(t, envs, 2)
	assert.Equal(t, "dev", envs[0].ID)
	assert.Equal(t, "prod", envs[1].ID)
	assert.False(t, envs[0].UpdatedAt.IsZero())
}
