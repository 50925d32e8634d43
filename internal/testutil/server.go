package testutil

import (
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"finitefield.org/storefront/internal/cart"
	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/httpserver"
	"finitefield.org/storefront/internal/i18n"
	"finitefield.org/storefront/internal/middleware"
	"finitefield.org/storefront/internal/pagesession"
	"finitefield.org/storefront/internal/telemetry"
	"finitefield.org/storefront/locales"
)

// ServerOption customises the HTTP server configuration for tests.
type ServerOption func(*httpserver.Config)

// WithCatalog overrides the catalog source.
func WithCatalog(src catalog.Source) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Catalog = src
	}
}

// WithCartStore wires a custom cart store implementation.
func WithCartStore(store cart.Store) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.CartStore = store
	}
}

// WithPages shares a page registry with the test.
func WithPages(pages *pagesession.Registry) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Pages = pages
	}
}

// NewServer constructs an httptest server running the storefront stack with
// the bundled catalog, an in-memory cart store and its own metrics registry.
func NewServer(t testing.TB, opts ...ServerOption) *httptest.Server {
	t.Helper()

	bundle, err := i18n.Load(locales.FS, "es", []string{"es", "en"})
	if err != nil {
		t.Fatalf("load locales: %v", err)
	}
	reg := prometheus.NewRegistry()
	cfg := httpserver.Config{
		Address:   ":0",
		Catalog:   catalog.Embedded(),
		CartStore: cart.NewMemoryStore(),
		Pages:     pagesession.NewRegistry(pagesession.DefaultTTL),
		Locales:   bundle,
		Session:   middleware.SessionConfig{SigningKey: []byte("0123456789abcdef0123456789abcdef")},
		Metrics:   telemetry.NewMetrics(reg),
		Gatherer:  reg,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	handler, err := httpserver.NewHandler(cfg)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

// NewClient returns a client with a cookie jar, standing in for one browser.
func NewClient(t testing.TB) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}
