package main

import (
	"math/rand"

	"github.com/google/uuid"

	"agora/internal/catalog"
	"agora/internal/common"
)

// noiseTrader is a synthetic agent for demo runs: each tick it submits
// a handful of buy and sell orders with limit prices scattered around
// the current market price. It exists only to feed the engine; it is
// not a behavioral model.
type noiseTrader struct {
	id      common.AgentID
	catalog *catalog.Catalog
	rng     *rand.Rand
}

func newNoiseTrader(c *catalog.Catalog, rng *rand.Rand) *noiseTrader {
	return &noiseTrader{
		id:      common.AgentID(uuid.NewString()),
		catalog: c,
		rng:     rng,
	}
}

func (t *noiseTrader) SubmitOrders(tick uint64) []common.Order {
	var orders []common.Order
	for _, product := range t.catalog.Products() {
		reference := product.Price
		if reference <= 0 {
			reference = 1
		}
		for _, side := range []common.Side{common.Buy, common.Sell} {
			// Scatter limits within ±10% of the market price.
			limit := reference * (0.9 + 0.2*t.rng.Float64())
			orders = append(orders, common.Order{
				ProductID:  product.ProductID,
				Side:       side,
				LimitPrice: limit,
				Quantity:   common.Quantity(1 + t.rng.Intn(20)),
				AgentID:    t.id,
			})
		}
	}
	return orders
}
