package clearing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agora/internal/book"
	"agora/internal/common"
)

// --- Setup & Helpers --------------------------------------------------------

const productID = common.ProductID(1)

type testOrder struct {
	side     common.Side
	price    common.Money
	quantity common.Quantity
}

func bid(price common.Money, quantity common.Quantity) testOrder {
	return testOrder{common.Buy, price, quantity}
}

func ask(price common.Money, quantity common.Quantity) testOrder {
	return testOrder{common.Sell, price, quantity}
}

// buildSnapshot submits the orders to a fresh book in the given
// arrival order and returns the product snapshot. Agent IDs encode the
// arrival position for readable assertions.
func buildSnapshot(t *testing.T, orders ...testOrder) book.Snapshot {
	t.Helper()
	b := book.New()
	for i, o := range orders {
		require.True(t, b.Submit(common.Order{
			ProductID:  productID,
			Side:       o.side,
			LimitPrice: o.price,
			Quantity:   o.quantity,
			AgentID:    common.AgentID(fmt.Sprintf("agent-%d", i+1)),
		}))
	}
	return b.Snapshot(productID)
}

type tradeView struct {
	quantity common.Quantity
	buyer    common.AgentID
	seller   common.AgentID
}

func viewTrades(trades []common.Trade) []tradeView {
	views := make([]tradeView, len(trades))
	for i, trade := range trades {
		views[i] = tradeView{trade.Quantity, trade.BuyerID, trade.SellerID}
	}
	return views
}

func totalQuantity(fills []Fill, side common.Side) common.Quantity {
	total := common.Quantity(0)
	for _, f := range fills {
		if f.Side == side {
			total += f.Quantity
		}
	}
	return total
}

// --- Tests ------------------------------------------------------------------

func TestClearProduct_EmptySides(t *testing.T) {
	engine := NewEngine(nil)

	result, err := engine.ClearProduct(buildSnapshot(t))
	require.NoError(t, err)
	assert.Zero(t, result.Volume)
	assert.Empty(t, result.Trades)

	result, err = engine.ClearProduct(buildSnapshot(t, bid(10.0, 5)))
	require.NoError(t, err)
	assert.Zero(t, result.Volume)
}

func TestClearProduct_NoOverlap(t *testing.T) {
	snapshot := buildSnapshot(t, bid(10.0, 5), ask(12.0, 5))

	result, err := NewEngine(nil).ClearProduct(snapshot)
	require.NoError(t, err)
	assert.Zero(t, result.Volume)
	assert.Empty(t, result.Trades)
	assert.Empty(t, result.Fills)
}

func TestClearProduct_SinglePrice(t *testing.T) {
	snapshot := buildSnapshot(t,
		bid(10.0, 7),
		bid(10.0, 3),
		ask(10.0, 10),
	)

	result, err := NewEngine(nil).ClearProduct(snapshot)
	require.NoError(t, err)
	assert.Equal(t, 10.0, result.Price)
	assert.Equal(t, common.Quantity(10), result.Volume)

	// Both bids fully filled, the ask fully filled.
	assert.Equal(t, []tradeView{
		{7, "agent-1", "agent-3"},
		{3, "agent-2", "agent-3"},
	}, viewTrades(result.Trades))
}

func TestClearProduct_MultiLevel(t *testing.T) {
	snapshot := buildSnapshot(t,
		bid(10.5, 30), // agent-1, filled in full
		bid(10.0, 20), // agent-2, marginal, filled 5
		bid(9.5, 10),  // agent-3, priced out
		ask(9.0, 10),  // agent-4, filled in full
		ask(10.0, 25), // agent-5, marginal, filled in full
		ask(11.0, 40), // agent-6, priced out
	)

	result, err := NewEngine(nil).ClearProduct(snapshot)
	require.NoError(t, err)
	assert.Equal(t, 10.0, result.Price)
	assert.Equal(t, common.Quantity(35), result.Volume)
	assert.Equal(t, common.Quantity(15), result.Imbalance)

	assert.Equal(t, []tradeView{
		{10, "agent-1", "agent-4"},
		{20, "agent-1", "agent-5"},
		{5, "agent-2", "agent-5"},
	}, viewTrades(result.Trades))

	// Conservation: both sides match the executable volume.
	assert.Equal(t, common.Quantity(35), totalQuantity(result.Fills, common.Buy))
	assert.Equal(t, common.Quantity(35), totalQuantity(result.Fills, common.Sell))
}

func TestClearProduct_ProRataAtMarginalPrice(t *testing.T) {
	snapshot := buildSnapshot(t,
		bid(10.0, 5),
		bid(10.0, 5),
		bid(10.0, 5),
		ask(10.0, 7),
	)

	result, err := NewEngine(nil).ClearProduct(snapshot)
	require.NoError(t, err)
	assert.Equal(t, common.Quantity(7), result.Volume)

	// Equal remainders: the extra lot goes to the earliest arrival.
	assert.Equal(t, []tradeView{
		{3, "agent-1", "agent-4"},
		{2, "agent-2", "agent-4"},
		{2, "agent-3", "agent-4"},
	}, viewTrades(result.Trades))
}

func TestClearProduct_PressureTieBreak(t *testing.T) {
	// Demand exceeds supply: the higher candidate price wins.
	result, err := NewEngine(nil).ClearProduct(buildSnapshot(t,
		bid(12.0, 10),
		ask(8.0, 5),
	))
	require.NoError(t, err)
	assert.Equal(t, 12.0, result.Price)
	assert.Equal(t, common.Quantity(5), result.Volume)

	// Supply exceeds demand: the lower candidate price wins.
	result, err = NewEngine(nil).ClearProduct(buildSnapshot(t,
		bid(12.0, 5),
		ask(8.0, 10),
	))
	require.NoError(t, err)
	assert.Equal(t, 8.0, result.Price)
	assert.Equal(t, common.Quantity(5), result.Volume)
}

func TestClearProduct_MidpointTieBreak(t *testing.T) {
	// Both candidate prices clear volume 10 with zero imbalance;
	// 10.0 sits closer to the 9.5 midpoint than 11.0 does.
	result, err := NewEngine(nil).ClearProduct(buildSnapshot(t,
		bid(11.0, 10),
		ask(8.0, 4),
		ask(10.0, 6),
	))
	require.NoError(t, err)
	assert.Equal(t, 10.0, result.Price)
	assert.Equal(t, common.Quantity(10), result.Volume)
}

func TestClearProduct_Collar(t *testing.T) {
	// The balanced crossing book would clear at 8; the collar clamps
	// the price up and the whole volume still executes.
	result, err := NewEngine(&Collar{Low: 9.0, High: 9.0}).ClearProduct(buildSnapshot(t,
		bid(12.0, 10),
		ask(8.0, 10),
	))
	require.NoError(t, err)
	assert.Equal(t, 9.0, result.Price)
	assert.Equal(t, common.Quantity(10), result.Volume)
	assert.Equal(t, []tradeView{{10, "agent-1", "agent-2"}}, viewTrades(result.Trades))
}

func TestClearProduct_CollarKillsVolume(t *testing.T) {
	// Clamping above every bid leaves nothing executable.
	result, err := NewEngine(&Collar{Low: 13.0, High: 14.0}).ClearProduct(buildSnapshot(t,
		bid(12.0, 10),
		ask(8.0, 10),
	))
	require.NoError(t, err)
	assert.Zero(t, result.Volume)
	assert.Empty(t, result.Trades)
}

func TestClearProduct_Deterministic(t *testing.T) {
	build := func() book.Snapshot {
		return buildSnapshot(t,
			bid(10.5, 30), bid(10.0, 20), bid(10.0, 7), bid(9.5, 10),
			ask(9.0, 10), ask(10.0, 25), ask(11.0, 40),
		)
	}

	first, err := NewEngine(nil).ClearProduct(build())
	require.NoError(t, err)
	second, err := NewEngine(nil).ClearProduct(build())
	require.NoError(t, err)

	assert.Equal(t, first.Price, second.Price)
	assert.Equal(t, first.Volume, second.Volume)
	assert.Equal(t, first.Fills, second.Fills)
	assert.Equal(t, viewTrades(first.Trades), viewTrades(second.Trades))
}

func TestProRata_LargestRemainder(t *testing.T) {
	tests := []struct {
		name       string
		quantities []common.Quantity
		residual   common.Quantity
		want       []common.Quantity
	}{
		{"exact thirds", []common.Quantity{5, 5, 5}, 7, []common.Quantity{3, 2, 2}},
		{"uneven remainders", []common.Quantity{3, 1, 1}, 4, []common.Quantity{2, 1, 1}},
		{"whole residual", []common.Quantity{4, 6}, 10, []common.Quantity{4, 6}},
		{"single order", []common.Quantity{9}, 5, []common.Quantity{5}},
		{"zero residual round", []common.Quantity{2, 3}, 1, []common.Quantity{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := make([]common.Order, len(tt.quantities))
			for i, q := range tt.quantities {
				orders[i] = common.Order{
					Quantity: q,
					Seq:      uint64(i + 1),
					AgentID:  common.AgentID(fmt.Sprintf("agent-%d", i+1)),
				}
			}

			shares, err := proRata(orders, tt.residual)
			require.NoError(t, err)
			assert.Equal(t, tt.want, shares)

			total := common.Quantity(0)
			for i, share := range shares {
				total += share
				assert.LessOrEqual(t, share, tt.quantities[i])
			}
			assert.Equal(t, tt.residual, total)
		})
	}
}

func TestProRata_ResidualExceedsMarginal(t *testing.T) {
	orders := []common.Order{{Quantity: 3, Seq: 1}}
	_, err := proRata(orders, 5)
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestVerifyConservation(t *testing.T) {
	buy := []Fill{{Quantity: 4}, {Quantity: 6}}
	sell := []Fill{{Quantity: 10}}
	assert.NoError(t, verifyConservation(buy, sell, 10))
	assert.ErrorIs(t, verifyConservation(buy, sell, 9), ErrInvariant)
	assert.ErrorIs(t, verifyConservation(buy[:1], sell, 10), ErrInvariant)
}
