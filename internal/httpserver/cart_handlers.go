package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"finitefield.org/storefront/internal/cart"
	mw "finitefield.org/storefront/internal/middleware"
	"finitefield.org/storefront/internal/observability"
)

// Toast tones and the htmx events announcing them.
const (
	toneSuccess = "success"
	toneWarning = "warning"

	eventCartAdded   = "cart:added"
	eventCartWarning = "cart:warning"
)

// CartAddHandler appends the clicked product to the visitor's persisted cart,
// bumps the page counter and answers with the counter swap plus a toast.
// Storage failures still count as an add interaction; unknown products do not.
func (h *handlers) CartAddHandler(w http.ResponseWriter, r *http.Request) {
	lang := mw.Lang(r)
	logger := observability.FromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		mw.WriteError(w, r, http.StatusBadRequest, "invalid form")
		return
	}

	page, err := h.pages.Get(r.FormValue("page"), mw.GetSession(r).ID)
	if err != nil {
		mw.WriteError(w, r, http.StatusGone, h.locales.T(lang, "page.expired"))
		return
	}
	productID, err := strconv.Atoi(strings.TrimSpace(r.FormValue("product_id")))
	if err != nil {
		mw.WriteError(w, r, http.StatusBadRequest, "invalid product id")
		return
	}

	ctx, span := observability.Tracer().Start(r.Context(), "cart.add")
	product, err := cart.NewManager(h.store, page).AddToCart(ctx, mw.GetSession(r).ID, productID)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
	h.metrics.ObserveCartAdd(err)

	toast := ToastView{
		Message:   h.locales.T(lang, "cart.toast.added"),
		Tone:      toneSuccess,
		TimeoutMs: h.toastDuration.Milliseconds(),
	}
	event := eventCartAdded
	switch {
	case errors.Is(err, cart.ErrUnknownProduct):
		logger.Info("add to cart ignored unknown product", zap.String("page_id", page.ID), zap.Int("product_id", productID))
		mw.WriteError(w, r, http.StatusNotFound, "unknown product")
		return
	case err != nil:
		logger.Warn("cart not persisted", zap.String("page_id", page.ID), zap.Int("product_id", product.ID), zap.Error(err))
		toast.Message = h.locales.T(lang, "cart.toast.storage_failed")
		toast.Tone = toneWarning
		event = eventCartWarning
	}

	counter := page.Increment()

	payload := map[string]any{
		event: map[string]any{
			"message":    toast.Message,
			"tone":       toast.Tone,
			"timeout":    toast.TimeoutMs,
			"product_id": productID,
			"counter":    counter,
		},
	}
	if raw, err := json.Marshal(payload); err == nil {
		w.Header().Set("HX-Trigger", string(raw))
	}
	h.render.fragment(w, r, "frag_cart_added", CartAddedView{Counter: counter, Toast: toast})
}

// CartHandler lists the products persisted for this visitor. The page counter
// is not derived from it; a new page always starts at zero.
func (h *handlers) CartHandler(w http.ResponseWriter, r *http.Request) {
	vm := CartPageView{LayoutView: h.layout(r, "cart.title", "home.description", 0)}

	items, err := cart.NewManager(h.store, nil).Items(r.Context(), mw.GetSession(r).ID)
	if err != nil {
		observability.FromContext(r.Context()).Warn("cart read failed", zap.Error(err))
		vm.Cart.Unavailable = true
	} else {
		vm.Cart = buildCartList(items, h.descriptions)
	}
	w.Header().Set("Cache-Control", "no-store")
	h.render.page(w, r, "cart", vm)
}
