// Package boltstore persists cart slots in a bbolt database, one bucket per visitor scope.
package boltstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"finitefield.org/storefront/internal/cart"
)

var scopesBucket = []byte("scopes")

// Store implements cart.Store on top of bbolt.
type Store struct {
	mu     sync.RWMutex
	db     *bolt.DB
	path   string
	closed bool
}

var _ cart.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("cart db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure cart db dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cart db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(scopesBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure cart schema: %w", err)
	}
	return &Store{db: db, path: trimmed}, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Get implements cart.Store.
func (s *Store) Get(ctx context.Context, scope, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var (
		value []byte
		found bool
	)
	err := s.view(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(scopesBucket).Bucket([]byte(scope))
		if bucket == nil {
			return nil
		}
		if v := bucket.Get([]byte(key)); v != nil {
			// values are only valid for the life of the transaction
			value = append([]byte(nil), v...)
			found = true
		}
		return nil
	})
	return value, found, err
}

// Update implements cart.Store. The read and write share one bolt transaction.
func (s *Store) Update(ctx context.Context, scope, key string, fn func([]byte, bool) ([]byte, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		bucket, err := tx.Bucket(scopesBucket).CreateBucketIfNotExists([]byte(scope))
		if err != nil {
			return fmt.Errorf("ensure scope bucket: %w", err)
		}
		var current []byte
		v := bucket.Get([]byte(key))
		if v != nil {
			current = append([]byte(nil), v...)
		}
		next, err := fn(current, v != nil)
		if err != nil {
			return err
		}
		if err := bucket.Put([]byte(key), next); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
		return nil
	})
}

// Close implements cart.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) view(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return cart.ErrStoreClosed
	}
	return s.db.View(fn)
}

func (s *Store) update(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return cart.ErrStoreClosed
	}
	return s.db.Update(fn)
}
