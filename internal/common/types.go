package common

// Core market vocabulary shared by the catalog, the order book, the
// pricing engine and the clearing engine.

type (
	// ProductID is the stable, externally assigned product identifier.
	ProductID uint32
	// AgentID is an opaque reference to the owner of an order.
	AgentID string
	// Money is a price or monetary amount.
	Money = float64
	// Quantity is a whole number of lots.
	Quantity = int64
)

// Item is one bill-of-materials entry: a component product and the
// quantity of it consumed per unit of output. Input quantities may be
// fractional.
type Item struct {
	ProductID ProductID
	Quantity  float64
}

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "Buy"
	case Sell:
		return "Sell"
	}
	return "Unknown"
}
