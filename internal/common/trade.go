package common

import (
	"fmt"
	"time"
)

// Trade accounts for the two parties who matched. Every trade of one
// product within a tick executes at that product's single clearing
// price. Trades are immutable once created.
type Trade struct {
	ID        string // Trade tracked uuid
	ProductID ProductID
	Price     Money
	Quantity  Quantity
	BuyerID   AgentID
	SellerID  AgentID
	Timestamp time.Time
}

func (t Trade) String() string {
	return fmt.Sprintf(
		`ID:        %s
ProductID: %d
Price:     %f
Quantity:  %d
BuyerID:   %s
SellerID:  %s
Timestamp: %v`,
		t.ID,
		t.ProductID,
		t.Price,
		t.Quantity,
		t.BuyerID,
		t.SellerID,
		t.Timestamp.Format(time.RFC3339),
	)
}
