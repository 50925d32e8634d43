package pagesession

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"finitefield.org/storefront/internal/catalog"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCounterStartsAtZeroAndIncrements(t *testing.T) {
	t.Parallel()

	r := NewRegistry(time.Hour)
	s := r.Create("visitor")
	require.NotEmpty(t, s.ID)
	require.Zero(t, s.Counter())

	for i := 1; i <= 3; i++ {
		require.Equal(t, i, s.Increment())
	}
	require.Equal(t, 3, s.Counter())
}

func TestNewPageStartsFresh(t *testing.T) {
	t.Parallel()

	r := NewRegistry(time.Hour)
	first := r.Create("visitor")
	first.Increment()
	first.Increment()

	reload := r.Create("visitor")
	require.NotEqual(t, first.ID, reload.ID)
	require.Zero(t, reload.Counter())

	_, err := ulid.ParseStrict(reload.ID)
	require.NoError(t, err)
}

func TestConcurrentIncrements(t *testing.T) {
	t.Parallel()

	s := NewRegistry(time.Hour).Create("visitor")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Increment()
		}()
	}
	wg.Wait()
	require.Equal(t, 50, s.Counter())
}

func TestLookupUsesRenderedCatalog(t *testing.T) {
	t.Parallel()

	s := NewRegistry(time.Hour).Create("visitor")
	_, ok := s.Lookup(1)
	require.False(t, ok, "nothing resolves before the catalog loads")

	c, err := catalog.New([]catalog.Product{{ID: 1, Description: "A"}})
	require.NoError(t, err)
	s.SetCatalog(c)

	p, ok := s.Lookup(1)
	require.True(t, ok)
	require.Equal(t, "A", p.Description)
	require.Same(t, c, s.Catalog())
}

func TestGetUnknownAndExpired(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry(time.Minute, WithClock(clock.Now))

	_, err := r.Get("", "visitor")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get("missing", "visitor")
	require.ErrorIs(t, err, ErrNotFound)

	s := r.Create("visitor")
	clock.Advance(30 * time.Second)
	got, err := r.Get(s.ID, "visitor")
	require.NoError(t, err)
	require.Same(t, s, got)

	// access refreshed the expiry
	clock.Advance(45 * time.Second)
	_, err = r.Get(s.ID, "visitor")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = r.Get(s.ID, "visitor")
	require.ErrorIs(t, err, ErrNotFound)
	require.Zero(t, r.Len())
}

func TestGetRejectsOtherVisitor(t *testing.T) {
	t.Parallel()

	r := NewRegistry(time.Hour)
	s := r.Create("visitor-a")
	require.Equal(t, "visitor-a", s.Owner)

	_, err := r.Get(s.ID, "visitor-b")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get(s.ID, "")
	require.ErrorIs(t, err, ErrNotFound)

	got, err := r.Get(s.ID, "visitor-a")
	require.NoError(t, err)
	require.Same(t, s, got)
	require.Equal(t, 1, r.Len(), "a rejected lookup does not drop the page")
}

func TestSweepRemovesExpired(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry(time.Minute, WithClock(clock.Now))
	r.Create("visitor")
	clock.Advance(2 * time.Minute)
	keep := r.Create("visitor")

	require.Equal(t, 1, r.Sweep())
	require.Equal(t, 1, r.Len())
	_, err := r.Get(keep.ID, "visitor")
	require.NoError(t, err)
}

func TestRunStopsWithContext(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry(time.Minute, WithClock(clock.Now))
	r.Create("visitor")
	clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	swept := make(chan int, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx, 5*time.Millisecond, func(removed, _ int) {
			if removed > 0 {
				select {
				case swept <- removed:
				default:
				}
			}
		})
	}()

	select {
	case n := <-swept:
		require.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not sweep")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}
