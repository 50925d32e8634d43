package httpserver

import (
	"html/template"

	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/content"
	"finitefield.org/storefront/internal/format"
	"finitefield.org/storefront/internal/i18n"
)

// Catalog fragment states, exposed as data-catalog-state.
const (
	catalogStateReady = "ready"
	catalogStateEmpty = "empty"
	catalogStateError = "error"
)

// LayoutView carries the fields every page in the base layout needs.
type LayoutView struct {
	Lang        string
	Title       string
	Description string
	CSRFToken   string
	Counter     int
}

// HomeView is the shell page; cards arrive later through the catalog fragment.
type HomeView struct {
	LayoutView
	PageID string
}

// CatalogView renders the card container.
type CatalogView struct {
	Lang  string
	State string
	Cards []CardView
}

// CardView is one product card.
type CardView struct {
	ID          int
	PageID      string
	Image       string
	Price       string
	Description template.HTML
	AddLabel    string
}

// CartPageView lists the persisted cart.
type CartPageView struct {
	LayoutView
	Cart CartListView
}

// CartListView is the persisted cart as shown on /cart.
type CartListView struct {
	Items       []CartItemView
	Unavailable bool
}

// CartItemView is one persisted entry.
type CartItemView struct {
	ID          int
	Image       string
	Price       string
	Description template.HTML
}

// CartAddedView is swapped in after an add interaction.
type CartAddedView struct {
	Counter int
	Toast   ToastView
}

// ToastView is a transient notification.
type ToastView struct {
	Message   string
	Tone      string
	TimeoutMs int64
}

func buildCatalogView(lang, pageID string, c *catalog.Catalog, bundle *i18n.Bundle, desc *content.Renderer) CatalogView {
	view := CatalogView{Lang: lang, State: catalogStateReady}
	products := c.Products()
	if len(products) == 0 {
		view.State = catalogStateEmpty
		return view
	}
	addLabel := bundle.T(lang, "catalog.add")
	view.Cards = make([]CardView, 0, len(products))
	for _, p := range products {
		view.Cards = append(view.Cards, CardView{
			ID:          p.ID,
			PageID:      pageID,
			Image:       p.Image,
			Price:       format.Price(p.Price),
			Description: desc.Description(p.Description),
			AddLabel:    addLabel,
		})
	}
	return view
}

func buildCartList(items []catalog.Product, desc *content.Renderer) CartListView {
	view := CartListView{Items: make([]CartItemView, 0, len(items))}
	for _, p := range items {
		view.Items = append(view.Items, CartItemView{
			ID:          p.ID,
			Image:       p.Image,
			Price:       format.Price(p.Price),
			Description: desc.Description(p.Description),
		})
	}
	return view
}
