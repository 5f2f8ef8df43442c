package shop

import (
	"sort"
	"sync"

	"github.com/abilian/taler-go/internal/taler"
)

// Product is a purchasable item in the demo storefront.
type Product struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Price       taler.Amount `json:"price"`
}

// Catalog is an in-memory product listing. Products are loaded at startup;
// lookups may happen concurrently.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]Product
}

// NewCatalog builds a catalog from the given products.
func NewCatalog(products ...Product) *Catalog {
	c := &Catalog{products: make(map[string]Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// DefaultCatalog seeds the storefront with sample articles priced in the
// given currency.
func DefaultCatalog(currency string) *Catalog {
	return NewCatalog(
		Product{ID: "article-1", Name: "Article one", Description: "First demo article", Price: taler.NewAmount(currency, "0.5")},
		Product{ID: "article-2", Name: "Article two", Description: "Second demo article", Price: taler.NewAmount(currency, "1.5")},
		Product{ID: "article-3", Name: "Article three", Description: "Third demo article", Price: taler.NewAmount(currency, "10.0")},
	)
}

// Get returns the product and whether it exists.
func (c *Catalog) Get(id string) (Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	return p, ok
}

// List returns all products ordered by id.
func (c *Catalog) List() []Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
