// Package catalog loads the product catalog and exposes lookups by product id.
package catalog

import (
	"fmt"
)

// Product is a purchasable record as served by the catalog resource.
// The JSON field names match the stock resource and the persisted cart slot.
type Product struct {
	ID          int     `json:"id" yaml:"id"`
	Image       string  `json:"img" yaml:"img"`
	Price       float64 `json:"precio" yaml:"precio"`
	Description string  `json:"descripcion" yaml:"descripcion"`
}

// Catalog is an immutable, ordered list of products indexed by id.
type Catalog struct {
	products []Product
	index    map[int]int
}

// New builds a catalog preserving the order of products. Product ids must be unique.
func New(products []Product) (*Catalog, error) {
	c := &Catalog{
		products: make([]Product, len(products)),
		index:    make(map[int]int, len(products)),
	}
	copy(c.products, products)
	for i, p := range c.products {
		if prev, ok := c.index[p.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate product id %d at positions %d and %d", ErrMalformed, p.ID, prev, i)
		}
		c.index[p.ID] = i
	}
	return c, nil
}

// Products returns a copy of the products in catalog order.
func (c *Catalog) Products() []Product {
	if c == nil {
		return nil
	}
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// Len reports the number of products.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.products)
}

// Lookup resolves a product by id.
func (c *Catalog) Lookup(id int) (Product, bool) {
	if c == nil {
		return Product{}, false
	}
	i, ok := c.index[id]
	if !ok {
		return Product{}, false
	}
	return c.products[i], true
}
