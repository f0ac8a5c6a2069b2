package common

import (
	"fmt"
	"time"
)

type Order struct {
	ProductID     ProductID // Product being traded
	Side          Side      // Order side
	LimitPrice    Money     // Limiting price
	Quantity      Quantity  // Remaining quantity
	TotalQuantity Quantity  // Total volume requested
	AgentID       AgentID   // Who owns this order
	Seq           uint64    // Arrival sequence, stamped by the book
	Timestamp     time.Time // Time of arrival of order into the book
}

func (order Order) String() string {
	return fmt.Sprintf(
		`ProductID:  %d
Side:       %v
LimitPrice: %f
Quantity:   %d (Total: %d)
AgentID:    %s
Seq:        %d
Timestamp:  %v`,
		order.ProductID,
		order.Side,
		order.LimitPrice,
		order.Quantity,
		order.TotalQuantity,
		order.AgentID,
		order.Seq,
		order.Timestamp.Format(time.RFC3339),
	)
}
