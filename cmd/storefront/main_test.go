package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"finitefield.org/storefront/internal/cart"
	"finitefield.org/storefront/internal/config"
)

func TestOpenCartStoreBackends(t *testing.T) {
	for _, backend := range []string{config.CartBackendBolt, config.CartBackendSQLite, config.CartBackendMemory, " BOLT "} {
		t.Run(backend, func(t *testing.T) {
			store, err := openCartStore(config.CartConfig{
				Backend: backend,
				Path:    filepath.Join(t.TempDir(), "cart.db"),
			})
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })

			items, err := cart.NewManager(store, nil).Items(t.Context(), "visitor")
			require.NoError(t, err)
			require.Empty(t, items)
		})
	}
}

func TestOpenCartStoreRejectsUnknownBackend(t *testing.T) {
	_, err := openCartStore(config.CartConfig{Backend: "redis"})
	require.ErrorContains(t, err, "unsupported cart backend")
}

func TestCatalogLabel(t *testing.T) {
	require.Equal(t, "embedded", catalogLabel(""))
	require.Equal(t, "https://example.com/stock.json", catalogLabel("https://example.com/stock.json"))
}
