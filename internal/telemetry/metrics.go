package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"finitefield.org/storefront/internal/cart"
	"finitefield.org/storefront/internal/catalog"
)

// Cart add outcomes used as the "result" label.
const (
	AddResultAdded        = "added"
	AddResultUnknown      = "unknown_product"
	AddResultStorageError = "storage_error"
)

// Metrics exposes storefront counters. A nil *Metrics is a no-op.
type Metrics struct {
	catalogLoads    *prometheus.CounterVec
	catalogProducts prometheus.Gauge
	cartAdds        *prometheus.CounterVec
	activePages     prometheus.Gauge
}

// NewMetrics registers the storefront collectors on registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		catalogLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_catalog_loads_total",
				Help: "Catalog fetches by result",
			},
			[]string{"result"},
		),
		catalogProducts: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "storefront_catalog_products",
				Help: "Products in the most recently loaded catalog",
			},
		),
		cartAdds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_cart_adds_total",
				Help: "Add-to-cart interactions by result",
			},
			[]string{"result"},
		),
		activePages: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "storefront_active_pages",
				Help: "Page sessions currently tracked",
			},
		),
	}
}

// ObserveCatalogLoad records a catalog fetch.
func (m *Metrics) ObserveCatalogLoad(c *catalog.Catalog, err error) {
	if m == nil {
		return
	}
	switch {
	case err == nil:
		m.catalogLoads.WithLabelValues("ok").Inc()
		m.catalogProducts.Set(float64(c.Len()))
	case errors.Is(err, catalog.ErrMalformed):
		m.catalogLoads.WithLabelValues("malformed").Inc()
	default:
		m.catalogLoads.WithLabelValues("unavailable").Inc()
	}
}

// ObserveCartAdd records the outcome of an add-to-cart call.
func (m *Metrics) ObserveCartAdd(err error) {
	if m == nil {
		return
	}
	m.cartAdds.WithLabelValues(AddResult(err)).Inc()
}

// SetActivePages records the number of tracked page sessions.
func (m *Metrics) SetActivePages(n int) {
	if m == nil {
		return
	}
	m.activePages.Set(float64(n))
}

// AddResult maps an AddToCart error onto its metric label.
func AddResult(err error) string {
	switch {
	case err == nil:
		return AddResultAdded
	case errors.Is(err, cart.ErrUnknownProduct):
		return AddResultUnknown
	default:
		return AddResultStorageError
	}
}
