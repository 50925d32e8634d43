// Package cart appends catalog products to a visitor's persisted cart slot.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"finitefield.org/storefront/internal/catalog"
)

// SlotKey names the storage slot holding the serialized cart.
const SlotKey = "carrito"

var (
	// ErrUnknownProduct is returned when the product id does not resolve in the catalog.
	ErrUnknownProduct = errors.New("cart: unknown product")
	// ErrStorage wraps failures reading, decoding or writing the cart slot.
	ErrStorage = errors.New("cart: storage unavailable")
	// ErrMissingScope is returned when no storage scope identifies the visitor.
	ErrMissingScope = errors.New("cart: storage scope is required")
	// ErrStoreClosed is returned by stores used after Close.
	ErrStoreClosed = errors.New("cart: store is closed")
)

// Store is a durable key-value store partitioned by visitor scope.
type Store interface {
	// Get returns the raw value stored under key, and whether it exists.
	Get(ctx context.Context, scope, key string) ([]byte, bool, error)
	// Update atomically replaces the value under key with the result of fn.
	// If fn returns an error nothing is written.
	Update(ctx context.Context, scope, key string, fn func(current []byte, found bool) ([]byte, error)) error
	Close() error
}

// Lookup resolves products by id.
type Lookup interface {
	Lookup(id int) (catalog.Product, bool)
}

// Manager appends products to the persisted cart. The lookup is the
// catalog the add controls were rendered from.
type Manager struct {
	store  Store
	lookup Lookup
}

// NewManager constructs a Manager over store resolving ids with lookup.
func NewManager(store Store, lookup Lookup) *Manager {
	return &Manager{store: store, lookup: lookup}
}

// AddToCart resolves productID and appends it to the cart in scope. Unknown
// ids leave storage untouched and return ErrUnknownProduct.
func (m *Manager) AddToCart(ctx context.Context, scope string, productID int) (catalog.Product, error) {
	if m.lookup == nil {
		return catalog.Product{}, fmt.Errorf("%w: %d", ErrUnknownProduct, productID)
	}
	product, ok := m.lookup.Lookup(productID)
	if !ok {
		return catalog.Product{}, fmt.Errorf("%w: %d", ErrUnknownProduct, productID)
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return catalog.Product{}, ErrMissingScope
	}
	err := m.store.Update(ctx, scope, SlotKey, func(current []byte, found bool) ([]byte, error) {
		items, err := decodeItems(current, found)
		if err != nil {
			return nil, err
		}
		items = append(items, product)
		return json.Marshal(items)
	})
	if err != nil {
		if errors.Is(err, ErrStorage) {
			return product, err
		}
		return product, fmt.Errorf("%w: write %s: %w", ErrStorage, SlotKey, err)
	}
	return product, nil
}

// Items returns the persisted cart in scope, empty when nothing was added yet.
func (m *Manager) Items(ctx context.Context, scope string) ([]catalog.Product, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, ErrMissingScope
	}
	raw, found, err := m.store.Get(ctx, scope, SlotKey)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrStorage, SlotKey, err)
	}
	return decodeItems(raw, found)
}

func decodeItems(raw []byte, found bool) ([]catalog.Product, error) {
	if !found || len(raw) == 0 {
		return []catalog.Product{}, nil
	}
	var items []catalog.Product
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrStorage, SlotKey, err)
	}
	if items == nil {
		items = []catalog.Product{}
	}
	return items, nil
}
