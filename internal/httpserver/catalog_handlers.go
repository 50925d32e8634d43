package httpserver

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"finitefield.org/storefront/internal/cart"
	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/content"
	"finitefield.org/storefront/internal/i18n"
	mw "finitefield.org/storefront/internal/middleware"
	"finitefield.org/storefront/internal/observability"
	"finitefield.org/storefront/internal/pagesession"
	"finitefield.org/storefront/internal/telemetry"
)

type handlers struct {
	logger         *zap.Logger
	catalog        catalog.Source
	catalogTimeout time.Duration
	store          cart.Store
	pages          *pagesession.Registry
	locales        *i18n.Bundle
	descriptions   *content.Renderer
	toastDuration  time.Duration
	metrics        *telemetry.Metrics
	render         *renderer
}

func (h *handlers) layout(r *http.Request, titleKey, descKey string, counter int) LayoutView {
	lang := mw.Lang(r)
	return LayoutView{
		Lang:        lang,
		Title:       h.locales.T(lang, titleKey),
		Description: h.locales.T(lang, descKey),
		CSRFToken:   mw.GetSession(r).CSRFToken,
		Counter:     counter,
	}
}

// HomeHandler starts a page session and renders the shell; the card
// container fetches the catalog once the page has loaded.
func (h *handlers) HomeHandler(w http.ResponseWriter, r *http.Request) {
	page := h.pages.Create(mw.GetSession(r).ID)
	h.metrics.SetActivePages(h.pages.Len())

	vm := HomeView{
		LayoutView: h.layout(r, "home.title", "home.description", page.Counter()),
		PageID:     page.ID,
	}
	// each load is a fresh page session, so never serve it from cache
	w.Header().Set("Cache-Control", "no-store")
	h.render.page(w, r, "home", vm)
}

// CatalogFrag loads the catalog for a page and renders its cards in order.
// Load failures render an error state instead of failing the page.
func (h *handlers) CatalogFrag(w http.ResponseWriter, r *http.Request) {
	lang := mw.Lang(r)
	logger := observability.FromContext(r.Context())

	page, err := h.pages.Get(r.URL.Query().Get("page"), mw.GetSession(r).ID)
	if err != nil {
		mw.WriteError(w, r, http.StatusGone, h.locales.T(lang, "page.expired"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.catalogTimeout)
	defer cancel()
	ctx, span := observability.Tracer().Start(ctx, "catalog.load")
	c, err := h.catalog.Load(ctx)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
	h.metrics.ObserveCatalogLoad(c, err)
	if err != nil {
		logger.Error("catalog load failed", zap.String("page_id", page.ID), zap.Error(err))
		h.render.fragment(w, r, "frag_catalog", CatalogView{Lang: lang, State: catalogStateError})
		return
	}
	page.SetCatalog(c)
	logger.Debug("catalog loaded", zap.String("page_id", page.ID), zap.Int("products", c.Len()))

	h.render.fragment(w, r, "frag_catalog", buildCatalogView(lang, page.ID, c, h.locales, h.descriptions))
}
