package ports

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunResponseStoreContract runs a suite of tests to verify that a ResponseStore implementation
// adheres to the defined interface contract.
func RunResponseStoreContract(t *testing.T, store ResponseStore) {
	ctx := context.Background()
	key := "contract-test-" + time.Now().Format("20060102150405.000000000")

	t.Run("Write and Read", func(t *testing.T) {
		entry, err := store.Write(ctx, key, json.RawMessage(`{"email":"owner@firm.com","n":1}`))
		require.NoError(t, err, "Write should not return error")
		assert.NotEmpty(t, entry.ID)
		assert.Equal(t, key, entry.Key)
		assert.False(t, entry.CreatedAt.IsZero())

		entries, err := store.Read(ctx, key)
		require.NoError(t, err, "Read should not return error")
		require.Len(t, entries, 1)
		assert.Equal(t, entry.ID, entries[0].ID)
		assert.JSONEq(t, `{"email":"owner@firm.com","n":1}`, string(entries[0].Value))
	})

	t.Run("Newest First", func(t *testing.T) {
		time.Sleep(2 * time.Millisecond)
		_, err := store.Write(ctx, key, json.RawMessage(`{"n":2}`))
		require.NoError(t, err)

		entries, err := store.Read(ctx, key)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.JSONEq(t, `{"n":2}`, string(entries[0].Value))
		assert.False(t, entries[0].CreatedAt.Before(entries[1].CreatedAt))
	})

	t.Run("Read Missing", func(t *testing.T) {
		entries, err := store.Read(ctx, "missing-"+key)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("Delete", func(t *testing.T) {
		n, err := store.Delete(ctx, key)
		require.NoError(t, err, "Delete should not return error")
		assert.Equal(t, 2, n)

		entries, err := store.Read(ctx, key)
		require.NoError(t, err)
		assert.Empty(t, entries, "Read after Delete should be empty")

		n, err = store.Delete(ctx, key)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Keys Isolated", func(t *testing.T) {
		a, b := key+"-a", key+"-b"
		defer func() {
			_, _ = store.Delete(ctx, a)
			_, _ = store.Delete(ctx, b)
		}()
		_, err := store.Write(ctx, a, json.RawMessage(`"a"`))
		require.NoError(t, err)
		_, err = store.Write(ctx, b, json.RawMessage(`"b"`))
		require.NoError(t, err)

		entries, err := store.Read(ctx, a)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.JSONEq(t, `"a"`, string(entries[0].Value))

		if lister, ok := store.(Lister); ok {
			keys, err := lister.Keys(ctx, 0)
			require.NoError(t, err)
			assert.Contains(t, keys, a)
			assert.Contains(t, keys, b)
		}
	})
}
