// Package book collects the orders submitted by agents within one
// tick, grouped per product into bid and ask price levels, and tracks
// the per-product demand/supply aggregates.
package book

import (
	"time"

	"github.com/tidwall/btree"

	"agora/internal/common"
)

// priceLevel holds the FIFO queue of orders resting at one price.
type priceLevel struct {
	price  common.Money
	orders []*common.Order
}

type priceLevels = btree.BTreeG[*priceLevel]

// productBook holds one product's outstanding orders for the current
// tick: bid levels sorted best (highest) first, ask levels sorted best
// (lowest) first, and the running demand/supply aggregates.
type productBook struct {
	bids *priceLevels
	asks *priceLevels

	demand common.Quantity
	supply common.Quantity
}

func newProductBook() *productBook {
	// Bids sorted greatest first.
	bids := btree.NewBTreeG(func(a, b *priceLevel) bool {
		return a.price > b.price
	})
	// Asks sorted least first.
	asks := btree.NewBTreeG(func(a, b *priceLevel) bool {
		return a.price < b.price
	})
	return &productBook{bids: bids, asks: asks}
}

func (pb *productBook) levels(side common.Side) *priceLevels {
	if side == common.Buy {
		return pb.bids
	}
	return pb.asks
}

// Book is the per-tick order store across all products. It is rebuilt
// from fresh submissions every tick; orders do not persist across
// ticks unless agents resubmit them.
type Book struct {
	products map[common.ProductID]*productBook

	// Arrival counter, monotonic across ticks. It is the
	// deterministic tie-break key everywhere downstream.
	seq uint64
}

func New() *Book {
	return &Book{products: make(map[common.ProductID]*productBook)}
}

// Submit appends an order to its product's bid or ask side and bumps
// the product's demand or supply aggregate. Orders with non-positive
// quantity are discarded, not errors. Returns whether the order was
// accepted.
func (b *Book) Submit(order common.Order) bool {
	if order.Quantity <= 0 {
		return false
	}

	b.seq++
	order.Seq = b.seq
	order.TotalQuantity = order.Quantity
	order.Timestamp = time.Now()

	pb, ok := b.products[order.ProductID]
	if !ok {
		pb = newProductBook()
		b.products[order.ProductID] = pb
	}

	levels := pb.levels(order.Side)
	if level, ok := levels.GetMut(&priceLevel{price: order.LimitPrice}); ok {
		level.orders = append(level.orders, &order)
	} else {
		levels.Set(&priceLevel{
			price:  order.LimitPrice,
			orders: []*common.Order{&order},
		})
	}

	switch order.Side {
	case common.Buy:
		pb.demand += order.Quantity
	case common.Sell:
		pb.supply += order.Quantity
	}
	return true
}

// Clear empties all per-product order lists and zeroes the aggregates.
// Called at the tick boundary before agents resubmit.
func (b *Book) Clear() {
	b.products = make(map[common.ProductID]*productBook)
}

// Snapshot is a stable copy of one product's book state. Bids come in
// price-descending order, asks price-ascending, FIFO within a level.
type Snapshot struct {
	ProductID common.ProductID
	Bids      []common.Order
	Asks      []common.Order
	Demand    common.Quantity
	Supply    common.Quantity
}

// Snapshot copies one product's current orders and aggregates. The
// copy is detached: mutating it does not touch the book.
func (b *Book) Snapshot(id common.ProductID) Snapshot {
	snapshot := Snapshot{ProductID: id}
	pb, ok := b.products[id]
	if !ok {
		return snapshot
	}
	snapshot.Bids = flatten(pb.bids)
	snapshot.Asks = flatten(pb.asks)
	snapshot.Demand = pb.demand
	snapshot.Supply = pb.supply
	return snapshot
}

// Demand returns the running demand aggregate for a product.
func (b *Book) Demand(id common.ProductID) common.Quantity {
	if pb, ok := b.products[id]; ok {
		return pb.demand
	}
	return 0
}

// Supply returns the running supply aggregate for a product.
func (b *Book) Supply(id common.ProductID) common.Quantity {
	if pb, ok := b.products[id]; ok {
		return pb.supply
	}
	return 0
}

// Reduce consumes executed quantity from a resting order, identified
// by its side, limit price and arrival sequence. Fully consumed orders
// are removed, and emptied price levels deleted. Returns whether the
// order was found.
func (b *Book) Reduce(id common.ProductID, side common.Side, price common.Money, seq uint64, quantity common.Quantity) bool {
	pb, ok := b.products[id]
	if !ok {
		return false
	}
	levels := pb.levels(side)
	level, ok := levels.GetMut(&priceLevel{price: price})
	if !ok {
		return false
	}
	for i, order := range level.orders {
		if order.Seq != seq {
			continue
		}
		order.Quantity -= min(quantity, order.Quantity)
		if order.Quantity == 0 {
			level.orders = append(level.orders[:i], level.orders[i+1:]...)
			if len(level.orders) == 0 {
				levels.Delete(level)
			}
		}
		return true
	}
	return false
}

func flatten(levels *priceLevels) []common.Order {
	var orders []common.Order
	levels.Scan(func(level *priceLevel) bool {
		for _, order := range level.orders {
			orders = append(orders, *order)
		}
		return true
	})
	return orders
}
