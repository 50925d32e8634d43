package httpserver

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"finitefield.org/storefront/internal/cart"
	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/content"
	"finitefield.org/storefront/internal/i18n"
	custommw "finitefield.org/storefront/internal/middleware"
	"finitefield.org/storefront/internal/observability"
	"finitefield.org/storefront/internal/pagesession"
	"finitefield.org/storefront/internal/telemetry"
	"finitefield.org/storefront/public"
)

const defaultToastDuration = 1500 * time.Millisecond

// Config holds runtime options and collaborators for the storefront HTTP server.
type Config struct {
	Address        string
	Logger         *zap.Logger
	Catalog        catalog.Source
	CatalogTimeout time.Duration
	CartStore      cart.Store
	Pages          *pagesession.Registry
	Locales        *i18n.Bundle
	Session        custommw.SessionConfig
	SecureCookies  bool
	ToastDuration  time.Duration
	// TemplatesDir reparses templates from disk on each request when set (dev).
	TemplatesDir string
	Metrics      *telemetry.Metrics
	Gatherer     prometheus.Gatherer

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// New constructs the HTTP server with middleware stack and embedded assets.
func New(cfg Config) (*http.Server, error) {
	handler, err := NewHandler(cfg)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       durationOr(cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      durationOr(cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       durationOr(cfg.IdleTimeout, 60*time.Second),
	}, nil
}

// NewHandler builds the router without binding a listener.
func NewHandler(cfg Config) (http.Handler, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("httpserver: catalog source is required")
	}
	if cfg.CartStore == nil {
		return nil, errors.New("httpserver: cart store is required")
	}
	if cfg.Locales == nil {
		return nil, errors.New("httpserver: locale bundle is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Pages == nil {
		cfg.Pages = pagesession.NewRegistry(pagesession.DefaultTTL)
	}

	h := &handlers{
		logger:         cfg.Logger,
		catalog:        cfg.Catalog,
		catalogTimeout: durationOr(cfg.CatalogTimeout, 10*time.Second),
		store:          cfg.CartStore,
		pages:          cfg.Pages,
		locales:        cfg.Locales,
		descriptions:   content.NewRenderer(),
		toastDuration:  durationOr(cfg.ToastDuration, defaultToastDuration),
		metrics:        cfg.Metrics,
	}
	r, err := newRenderer(cfg.TemplatesDir, h.funcs())
	if err != nil {
		return nil, err
	}
	h.render = r

	staticContent, err := public.StaticFS()
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	// If deployed behind a trusted reverse proxy/load balancer, RealIP will use
	// X-Forwarded-For to determine the client IP.
	router.Use(chimw.RealIP)
	router.Use(observability.TraceMiddleware())
	router.Use(custommw.Logger(cfg.Logger))
	router.Use(chimw.Recoverer)
	router.Use(chimw.Compress(5))
	router.Use(chimw.Timeout(30 * time.Second))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
	if cfg.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	router.Handle("/assets/*", http.StripPrefix("/assets", custommw.AssetsWithCache(staticContent)))

	router.Group(func(r chi.Router) {
		r.Use(custommw.HTMX)
		r.Use(custommw.Session(cfg.Session))
		r.Use(custommw.Locale(cfg.Locales))
		r.Use(custommw.CSRF(cfg.SecureCookies))

		r.Get("/", h.HomeHandler)
		r.Get("/cart", h.CartHandler)
		r.With(custommw.RequireHTMX).Get("/catalog", h.CatalogFrag)
		r.Post("/cart/items", h.CartAddHandler)
	})

	return router, nil
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
