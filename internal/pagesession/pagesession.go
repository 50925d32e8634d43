// Package pagesession tracks per page-load state: the add-to-cart counter and
// the catalog snapshot the page's cards were rendered from.
package pagesession

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"finitefield.org/storefront/internal/catalog"
)

// DefaultTTL bounds how long an idle page keeps its state.
const DefaultTTL = 2 * time.Hour

// ErrNotFound is returned for unknown or expired page ids, and for pages
// owned by another visitor.
var ErrNotFound = errors.New("pagesession: page not found or expired")

// Session is the state of one page load. The counter starts at zero and only
// grows; it is never reconciled with the persisted cart.
type Session struct {
	ID string
	// Owner is the visitor session id the page was served to.
	Owner     string
	CreatedAt time.Time

	mu       sync.Mutex
	counter  int
	catalog  *catalog.Catalog
	lastSeen time.Time
}

// Increment records a successful add interaction and returns the new count.
func (s *Session) Increment() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return s.counter
}

// Counter returns the number of add interactions on this page.
func (s *Session) Counter() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

// SetCatalog stores the catalog the page was rendered from.
func (s *Session) SetCatalog(c *catalog.Catalog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = c
}

// Catalog returns the rendered catalog, nil until it has loaded.
func (s *Session) Catalog() *catalog.Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog
}

// Lookup resolves a product against the rendered catalog.
func (s *Session) Lookup(id int) (catalog.Product, bool) {
	if s == nil {
		return catalog.Product{}, false
	}
	return s.Catalog().Lookup(id)
}

// Option customises a Registry.
type Option func(*Registry)

// WithClock overrides the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// Registry holds live page sessions keyed by id.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewRegistry constructs a registry whose sessions expire after ttl of inactivity.
func NewRegistry(ttl time.Duration, opts ...Option) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create starts a new page session with a zero counter for the visitor
// owner. Ids are ULIDs, so they sort by creation time in logs.
func (r *Registry) Create(owner string) *Session {
	now := r.now()
	s := &Session{
		ID:        ulid.Make().String(),
		Owner:     owner,
		CreatedAt: now,
		lastSeen:  now,
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get returns a live session owned by owner and refreshes its expiry.
func (r *Registry) Get(id, owner string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Owner != owner {
		return nil, ErrNotFound
	}
	if r.expired(s, now) {
		delete(r.sessions, id)
		return nil, ErrNotFound
	}
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
	return s, nil
}

// Len reports the number of tracked sessions, expired ones included until swept.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops expired sessions and returns how many were removed.
func (r *Registry) Sweep() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.sessions {
		if r.expired(s, now) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration, onSweep func(removed, remaining int)) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := r.Sweep()
			if onSweep != nil {
				onSweep(removed, r.Len())
			}
		}
	}
}

func (r *Registry) expired(s *Session, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen) > r.ttl
}
