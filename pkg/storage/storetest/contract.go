// Package storetest holds a reusable contract suite for variable stores.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blackcoderx/hive/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// VariableStore is the surface every environment/global backend provides.
type VariableStore interface {
	SaveEnvironment(ctx context.Context, env *storage.Environment) error
	EnvironmentValues(ctx context.Context, id string) (storage.Values, error)
	PersistEnvironmentUpdates(ctx context.Context, id string, updates map[string]string) error
	GlobalValues(ctx context.Context) (storage.Values, error)
	SetGlobal(ctx context.Context, key string, v storage.Variable) error
}

// RunVariableStoreContract verifies that store behaves like the other backends.
func RunVariableStoreContract(t *testing.T, store VariableStore) {
	ctx := context.Background()
	envID := "contract-" + time.Now().Format("20060102150405")

	t.Run("No active environment", func(t *testing.T) {
		values, err := store.EnvironmentValues(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, values)
	})

	t.Run("Missing environment", func(t *testing.T) {
		_, err := store.EnvironmentValues(ctx, "does-not-exist")
		require.Error(t, err)
		assert.True(t, errors.Is(err, storage.ErrNotFound), "want ErrNotFound, got %v", err)
	})

	t.Run("Save and read values", func(t *testing.T) {
		err := store.SaveEnvironment(ctx, &storage.Environment{
			ID:   envID,
			Name: "Contract",
			Values: storage.Values{
				"base_url": {Value: "https://x.test", Enabled: true},
				"secret":   {Value: "hidden", Enabled: false},
			},
		})
		require.NoError(t, err)

		values, err := store.EnvironmentValues(ctx, envID)
		require.NoError(t, err)
		assert.Equal(t, storage.Variable{Value: "https://x.test", Enabled: true}, values["base_url"])
		assert.Equal(t, storage.Variable{Value: "hidden", Enabled: false}, values["secret"])
	})

	t.Run("Snapshots are isolated", func(t *testing.T) {
		values, err := store.EnvironmentValues(ctx, envID)
		require.NoError(t, err)
		values["base_url"] = storage.Variable{Value: "mutated", Enabled: true}

		again, err := store.EnvironmentValues(ctx, envID)
		require.NoError(t, err)
		assert.Equal(t, "https://x.test", again["base_url"].Value)
	})

	t.Run("Persist merges per key", func(t *testing.T) {
		err := store.PersistEnvironmentUpdates(ctx, envID, map[string]string{
			"token":  "abc",
			"secret": "revealed",
		})
		require.NoError(t, err)

		values, err := store.EnvironmentValues(ctx, envID)
		require.NoError(t, err)
		assert.Equal(t, storage.Variable{Value: "https://x.test", Enabled: true}, values["base_url"])
		assert.Equal(t, storage.Variable{Value: "abc", Enabled: true}, values["token"])
		assert.Equal(t, storage.Variable{Value: "revealed", Enabled: true}, values["secret"])
	})

	t.Run("Last write wins", func(t *testing.T) {
		require.NoError(t, store.PersistEnvironmentUpdates(ctx, envID, map[string]string{"token": "first"}))
		require.NoError(t, store.PersistEnvironmentUpdates(ctx, envID, map[string]string{"token": "second"}))

		values, err := store.EnvironmentValues(ctx, envID)
		require.NoError(t, err)
		assert.Equal(t, "second", values["token"].Value)
	})

	t.Run("Persist to missing environment", func(t *testing.T) {
		err := store.PersistEnvironmentUpdates(ctx, "does-not-exist", map[string]string{"k": "v"})
		assert.Error(t, err)
	})

	t.Run("Globals created on first access", func(t *testing.T) {
		values, err := store.GlobalValues(ctx)
		require.NoError(t, err)
		assert.NotNil(t, values)

		require.NoError(t, store.SetGlobal(ctx, "region", storage.Variable{Value: "eu", Enabled: true}))

		values, err = store.GlobalValues(ctx)
		require.NoError(t, err)
		assert.Equal(t, storage.Variable{Value: "eu", Enabled: true}, values["region"])
	})
}
