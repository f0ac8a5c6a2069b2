package catalog

import (
	"agora/internal/common"
)

type ProductType int

const (
	Good ProductType = iota
	Service
)

func (t ProductType) String() string {
	switch t {
	case Good:
		return "Good"
	case Service:
		return "Service"
	}
	return "Unknown"
}

type ProductUnit int

const (
	Piece ProductUnit = iota
	Kg
	Liter
	Hour
)

func (u ProductUnit) String() string {
	switch u {
	case Piece:
		return "Piece"
	case Kg:
		return "Kg"
	case Liter:
		return "Liter"
	case Hour:
		return "Hour"
	}
	return "Unknown"
}

// Product is one catalog entry. The identity fields and the bill of
// materials are fixed at load time; price, cost, demand and supply are
// rewritten every tick by the pricing pass and the order aggregation.
type Product struct {
	ProductID   common.ProductID // Product ID
	Type        ProductType      // Good or Service
	Unit        ProductUnit      // Measurement unit
	Price       common.Money     // Market price, smoothed
	Cost        common.Money     // Product cost based on bill of materials
	Demand      common.Quantity  // Aggregate demand quantity for the current tick
	Supply      common.Quantity  // Aggregate supply quantity for the current tick
	Importance  float64          // Aggregate consumer importance (0,1]
	FloorMargin float64          // Minimal industry margin [0,1]
	Turnover    float64          // Average turnover duration in days
	Name        string           // Product name
	Materials   []common.Item    // Bill of materials
}
