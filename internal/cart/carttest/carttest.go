// Package carttest holds behaviour checks shared by every cart.Store implementation.
package carttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"finitefield.org/storefront/internal/cart"
)

// RunStoreTests exercises the cart.Store contract against stores produced by open.
func RunStoreTests(t *testing.T, open func(t *testing.T) cart.Store) {
	t.Helper()

	t.Run("missing slot", func(t *testing.T) {
		store := open(t)
		_, found, err := store.Get(context.Background(), "visitor-a", cart.SlotKey)
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("update then get", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		err := store.Update(ctx, "visitor-a", cart.SlotKey, func(current []byte, found bool) ([]byte, error) {
			require.False(t, found)
			require.Empty(t, current)
			return []byte(`[1]`), nil
		})
		require.NoError(t, err)

		err = store.Update(ctx, "visitor-a", cart.SlotKey, func(current []byte, found bool) ([]byte, error) {
			require.True(t, found)
			require.Equal(t, `[1]`, string(current))
			return []byte(`[1,2]`), nil
		})
		require.NoError(t, err)

		got, found, err := store.Get(ctx, "visitor-a", cart.SlotKey)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, `[1,2]`, string(got))
	})

	t.Run("scopes are isolated", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		require.NoError(t, store.Update(ctx, "visitor-a", cart.SlotKey, func([]byte, bool) ([]byte, error) {
			return []byte(`["a"]`), nil
		}))
		_, found, err := store.Get(ctx, "visitor-b", cart.SlotKey)
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("failed update writes nothing", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		boom := errors.New("boom")
		err := store.Update(ctx, "visitor-a", cart.SlotKey, func([]byte, bool) ([]byte, error) {
			return nil, boom
		})
		require.ErrorIs(t, err, boom)
		_, found, err := store.Get(ctx, "visitor-a", cart.SlotKey)
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("concurrent updates keep every append", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		const writers = 16
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- store.Update(ctx, "visitor-a", "counter", func(current []byte, found bool) ([]byte, error) {
					return append(current, fmt.Sprintf("%d;", i)...), nil
				})
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		got, _, err := store.Get(ctx, "visitor-a", "counter")
		require.NoError(t, err)
		require.Equal(t, writers, countByte(got, ';'))
	})

	t.Run("closed store", func(t *testing.T) {
		store := open(t)
		require.NoError(t, store.Close())
		_, _, err := store.Get(context.Background(), "visitor-a", cart.SlotKey)
		require.Error(t, err)
	})
}

func countByte(b []byte, c byte) int {
	n := 0
	for _, x := range b {
		if x == c {
			n++
		}
	}
	return n
}
