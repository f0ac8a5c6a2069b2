// Package pricing maintains each product's cost and equilibrium price.
// Cost derives from the bill of materials at current component prices;
// price tracks the demand/supply imbalance through an asymmetric
// sigmoid and converges toward its target with exponential smoothing.
package pricing

import (
	"fmt"
	"math"

	"agora/internal/catalog"
	"agora/internal/common"
)

const (
	// MaxElasticity is a model calibration constant: with
	// importance 1, a 1% supply deficit raises the target price by
	// about 10%.
	MaxElasticity = 12.305019857643899

	// Asymmetric sigmoid bounds on the price multiplier.
	minY = 0.4
	maxY = 4.0

	// supplyBias keeps the balance ratio finite at zero supply.
	supplyBias = 0.001

	// DefaultTicksToAdjust sets the smoothing factor so the price
	// closes 1/7 of the gap to its target each tick.
	DefaultTicksToAdjust = 7
)

// OrderMode selects the product evaluation order for a pricing pass.
type OrderMode int

const (
	// CatalogOrder evaluates products in declaration order. A
	// product priced before one of its components reads the
	// component's previous-tick price, accepting one tick of lag.
	CatalogOrder OrderMode = iota
	// TopologicalOrder evaluates components before their consumers.
	// Products on a bill-of-materials cycle fail with ErrCycle and
	// keep their previous cost and price.
	TopologicalOrder
)

type Engine struct {
	mode  OrderMode
	alpha float64 // smoothing factor, 1/ticksToAdjust
	diff  float64 // maxY - minY
	v     float64 // sigmoid asymmetry exponent, log2(diff/(1-minY))
}

// NewEngine builds a pricing engine. ticksToAdjust values below one
// fall back to the default.
func NewEngine(ticksToAdjust int, mode OrderMode) *Engine {
	if ticksToAdjust < 1 {
		ticksToAdjust = DefaultTicksToAdjust
	}
	diff := maxY - minY
	return &Engine{
		mode:  mode,
		alpha: 1.0 / float64(ticksToAdjust),
		diff:  diff,
		v:     math.Log2(diff / (1 - minY)),
	}
}

// EvaluateCost rewrites the product's cost as the sum over its bill of
// materials of component price times per-unit quantity, at current
// component prices. Products without materials keep their configured
// cost: for raw goods and services the cost is an input, not a derived
// value. On an unknown component the cost is left untouched.
func (e *Engine) EvaluateCost(c *catalog.Catalog, product *catalog.Product) error {
	if len(product.Materials) == 0 {
		return nil
	}
	cost := common.Money(0)
	for _, item := range product.Materials {
		component, err := c.Get(item.ProductID)
		if err != nil {
			return fmt.Errorf("cost of %q: %w", product.Name, err)
		}
		cost += component.Price * item.Quantity
	}
	product.Cost = cost
	return nil
}

// EvaluateTargetPrice computes the target price from the current
// demand/supply aggregates and moves the product price toward it by
// the smoothing factor.
func (e *Engine) EvaluateTargetPrice(product *catalog.Product) {
	demand := float64(product.Demand)
	supply := float64(product.Supply)

	// Disbalance sensitivity.
	k := product.Importance * MaxElasticity

	// Measure disbalance ratio, with the supply floor bias.
	balanceRatio := (demand - supply) / (supply + supplyBias)

	// Evaluate asymmetric sigmoid, clamped to [minY, maxY].
	exp := math.Exp(-balanceRatio * k)
	sigmoid := minY + e.diff/math.Pow(1+exp, e.v)
	sigmoid = min(max(sigmoid, minY), maxY)

	basePrice := product.Cost * (1 + product.FloorMargin)
	targetPrice := basePrice * sigmoid

	// Price inertia: converge geometrically instead of jumping.
	product.Price += e.alpha * (targetPrice - product.Price)
}

// TickError records one product whose cost or price update failed
// during a pricing pass.
type TickError struct {
	ProductID common.ProductID
	Err       error
}

// Tick evaluates cost then target price for every product, in the
// engine's evaluation order. Per-product failures are collected and
// leave that product's cost and price at their previous values; they
// never abort the pass.
func (e *Engine) Tick(c *catalog.Catalog) []TickError {
	var failures []TickError

	products := c.Products()
	if e.mode == TopologicalOrder {
		ordered, cyclic := SortProducts(c)
		for _, product := range cyclic {
			failures = append(failures, TickError{
				ProductID: product.ProductID,
				Err:       fmt.Errorf("%w: %q", ErrCycle, product.Name),
			})
		}
		products = ordered
	}

	for _, product := range products {
		if err := e.EvaluateCost(c, product); err != nil {
			failures = append(failures, TickError{ProductID: product.ProductID, Err: err})
			continue
		}
		e.EvaluateTargetPrice(product)
	}
	return failures
}
