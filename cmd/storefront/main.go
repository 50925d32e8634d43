package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"finitefield.org/storefront/internal/cart"
	"finitefield.org/storefront/internal/cart/boltstore"
	"finitefield.org/storefront/internal/cart/sqlitestore"
	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/config"
	"finitefield.org/storefront/internal/httpserver"
	"finitefield.org/storefront/internal/i18n"
	"finitefield.org/storefront/internal/middleware"
	"finitefield.org/storefront/internal/observability"
	"finitefield.org/storefront/internal/pagesession"
	"finitefield.org/storefront/internal/telemetry"
	"finitefield.org/storefront/locales"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	flag.StringVar(&cfg.Server.Addr, "addr", cfg.Server.Addr, "HTTP listen address")
	flag.StringVar(&cfg.Catalog.Source, "catalog", cfg.Catalog.Source, "catalog file path or URL (empty uses the bundled stock)")
	flag.StringVar(&cfg.Server.TemplatesDir, "templates", cfg.Server.TemplatesDir, "reparse templates from this directory on each request")
	flag.Parse()

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("storefront stopped", zap.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	bundle, err := i18n.Load(locales.FS, cfg.Locale.Fallback, cfg.Locale.Supported)
	if err != nil {
		return fmt.Errorf("load locales: %w", err)
	}

	store, err := openCartStore(cfg.Cart)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close cart store", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)

	pages := pagesession.NewRegistry(cfg.Session.PageTTL)
	go pages.Run(ctx, cfg.Session.SweepInterval, func(removed, remaining int) {
		metrics.SetActivePages(remaining)
		if removed > 0 {
			logger.Debug("expired page sessions swept", zap.Int("removed", removed), zap.Int("remaining", remaining))
		}
	})

	secure := cfg.Production()
	srv, err := httpserver.New(httpserver.Config{
		Address:        cfg.Server.Addr,
		Logger:         logger,
		Catalog:        catalog.Open(cfg.Catalog.Source, &http.Client{Timeout: cfg.Catalog.Timeout}),
		CatalogTimeout: cfg.Catalog.Timeout,
		CartStore:      store,
		Pages:          pages,
		Locales:        bundle,
		Session:        middleware.NewSessionConfig(cfg.Session.SigningKey, secure, logger),
		SecureCookies:  secure,
		ToastDuration:  cfg.Cart.ToastDuration,
		TemplatesDir:   cfg.Server.TemplatesDir,
		Metrics:        metrics,
		Gatherer:       registry,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	logger.Info("storefront listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("env", cfg.Server.Environment),
		zap.String("cart_backend", cfg.Cart.Backend),
		zap.String("catalog", catalogLabel(cfg.Catalog.Source)),
	)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), durationOr(cfg.Server.ShutdownTimeout, 10*time.Second))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("storefront stopped")
	return nil
}

// openCartStore opens the configured durable store for cart slots.
func openCartStore(cfg config.CartConfig) (cart.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case config.CartBackendBolt:
		store, err := boltstore.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open bolt cart store: %w", err)
		}
		return store, nil
	case config.CartBackendSQLite:
		store, err := sqlitestore.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite cart store: %w", err)
		}
		return store, nil
	case config.CartBackendMemory:
		return cart.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported cart backend %q", cfg.Backend)
	}
}

func catalogLabel(src string) string {
	if strings.TrimSpace(src) == "" {
		return "embedded"
	}
	return src
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
