// Package catalog owns the product list for the lifetime of a
// simulation run: the immutable product identities, their mutable
// price/cost/demand/supply state, and a productID to slot index.
package catalog

import (
	"errors"
	"fmt"

	"agora/internal/common"
)

var ErrUnknownProduct = errors.New("unknown product")

// Catalog is the single owner of all Product records. Callers address
// products by ProductID only; slot positions are an internal detail.
type Catalog struct {
	products []*Product
	index    map[common.ProductID]int
}

// New builds a catalog from already-constructed products, for
// programmatic catalogs. Unlike Load it accepts forward
// bill-of-materials references, so the graph may contain cycles;
// detecting them is the pricing engine's concern. Duplicate product
// IDs are rejected.
func New(products ...*Product) (*Catalog, error) {
	c := &Catalog{index: make(map[common.ProductID]int, len(products))}
	for _, product := range products {
		if _, exists := c.index[product.ProductID]; exists {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateProduct, product.ProductID)
		}
		c.add(product)
	}
	return c, nil
}

// Get returns the product with the given ID.
func (c *Catalog) Get(id common.ProductID) (*Product, error) {
	slot, ok := c.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownProduct, id)
	}
	return c.products[slot], nil
}

// SetDemandAndSupply overwrites the current-tick aggregates of one
// product.
func (c *Catalog) SetDemandAndSupply(id common.ProductID, demand, supply common.Quantity) error {
	product, err := c.Get(id)
	if err != nil {
		return err
	}
	product.Demand = demand
	product.Supply = supply
	return nil
}

// Products returns all products in declaration order. The slice is
// shared, not copied; callers mutate product state through it during
// the tick.
func (c *Catalog) Products() []*Product {
	return c.products
}

func (c *Catalog) Len() int {
	return len(c.products)
}

func (c *Catalog) add(product *Product) {
	c.index[product.ProductID] = len(c.products)
	c.products = append(c.products, product)
}
