// Package clearing settles one product's order book for a tick with a
// uniform-price double auction: it discovers the single price that
// maximizes executable volume, fills all orders priced better than it,
// distributes the residual at the marginal price pro rata with
// exact-sum rounding, and pairs the fills into trades.
package clearing

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"agora/internal/book"
	"agora/internal/common"
)

var ErrInvariant = errors.New("clearing invariant violation")

// Collar bounds the clearing price. When price discovery lands outside
// [Low, High], the price is clamped to the nearest bound and the fill
// partition is recomputed at the clamped price.
type Collar struct {
	Low  common.Money
	High common.Money
}

type Engine struct {
	collar *Collar
}

// NewEngine builds a clearing engine. A nil collar disables price
// limits.
func NewEngine(collar *Collar) *Engine {
	return &Engine{collar: collar}
}

// Fill records the executed quantity of one order, addressed by the
// keys the book needs to locate it.
type Fill struct {
	Seq        uint64
	AgentID    common.AgentID
	Side       common.Side
	LimitPrice common.Money
	Quantity   common.Quantity
}

// Result is the audit record of one product's clearing pass.
type Result struct {
	ProductID common.ProductID
	Price     common.Money    // clearing price, zero when no trades
	Volume    common.Quantity // total quantity executed on each side
	Imbalance common.Quantity // CumBid - CumAsk at the clearing price
	Trades    []common.Trade
	Fills     []Fill
}

// ClearProduct runs the auction over one product's book snapshot. A
// book with an empty side or no price overlap clears zero volume with
// no error. Any internal-consistency violation in the allocation
// returns ErrInvariant and no fills: the caller must leave the
// product's book untouched.
func (e *Engine) ClearProduct(snapshot book.Snapshot) (*Result, error) {
	result := &Result{ProductID: snapshot.ProductID}

	// Defensive: the book already refuses non-positive quantities.
	bids := filterPositive(snapshot.Bids)
	asks := filterPositive(snapshot.Asks)
	if len(bids) == 0 || len(asks) == 0 {
		return result, nil
	}

	// Snapshot bids are price-descending, asks ascending.
	bestBid := bids[0].LimitPrice
	bestAsk := asks[0].LimitPrice
	if bestBid < bestAsk {
		return result, nil
	}

	price, volume := e.discoverPrice(bids, asks, bestBid, bestAsk, snapshot.Demand, snapshot.Supply)
	if volume == 0 {
		return result, nil
	}

	if e.collar != nil {
		clamped := min(max(price, e.collar.Low), e.collar.High)
		if clamped != price {
			price = clamped
			// The executable volume at the clamped price is not
			// the discovered maximum; the partition below must
			// work with the volume the clamped price supports.
			volume = min(cumBidAt(bids, price), cumAskAt(asks, price))
			if volume == 0 {
				return result, nil
			}
		}
	}

	buyFills, err := allocateSide(bids, common.Buy, price, volume)
	if err != nil {
		return nil, err
	}
	sellFills, err := allocateSide(asks, common.Sell, price, volume)
	if err != nil {
		return nil, err
	}
	if err := verifyConservation(buyFills, sellFills, volume); err != nil {
		return nil, err
	}

	result.Price = price
	result.Volume = volume
	result.Imbalance = cumBidAt(bids, price) - cumAskAt(asks, price)
	result.Trades = pairTrades(snapshot.ProductID, price, buyFills, sellFills)
	result.Fills = append(buyFills, sellFills...)
	return result, nil
}

// discoverPrice selects the clearing price: the candidate maximizing
// executable volume, with deterministic tie-breaks applied in order
// until a unique price remains.
func (e *Engine) discoverPrice(bids, asks []common.Order, bestBid, bestAsk common.Money, demand, supply common.Quantity) (common.Money, common.Quantity) {
	prices := priceGrid(bids, asks)

	maxVolume := common.Quantity(0)
	var candidates []common.Money
	imbalances := make(map[common.Money]common.Quantity, len(prices))
	for _, p := range prices {
		cumBid := cumBidAt(bids, p)
		cumAsk := cumAskAt(asks, p)
		volume := min(cumBid, cumAsk)
		imbalances[p] = cumBid - cumAsk
		if volume > maxVolume {
			maxVolume = volume
			candidates = candidates[:0]
		}
		if volume == maxVolume && volume > 0 {
			candidates = append(candidates, p)
		}
	}
	if maxVolume == 0 {
		return 0, 0
	}

	// Tie-break: minimal absolute imbalance.
	if len(candidates) > 1 {
		best := int64(math.MaxInt64)
		for _, p := range candidates {
			if d := abs(imbalances[p]); d < best {
				best = d
			}
		}
		candidates = keep(candidates, func(p common.Money) bool {
			return abs(imbalances[p]) == best
		})
	}

	// Tie-break: closest to the bid/ask midpoint.
	if len(candidates) > 1 {
		mid := (bestBid + bestAsk) / 2
		best := math.Inf(1)
		for _, p := range candidates {
			if d := math.Abs(p - mid); d < best {
				best = d
			}
		}
		candidates = keep(candidates, func(p common.Money) bool {
			return math.Abs(p-mid) == best
		})
	}

	// Tie-break: pressure rule, then the fixed lowest-price fallback.
	// Candidates are ascending, so these are the slice ends.
	if len(candidates) > 1 {
		if demand > supply {
			candidates = candidates[len(candidates)-1:]
		} else {
			candidates = candidates[:1]
		}
	}
	return candidates[0], maxVolume
}

// allocateSide partitions one side's orders at the clearing price:
// orders priced strictly better fill in price-time priority up to the
// executable volume, and the residual is shared pro rata among orders
// resting exactly at the price, rounded with the largest-remainder
// method so the rounded shares sum exactly to the residual.
func allocateSide(orders []common.Order, side common.Side, price common.Money, volume common.Quantity) ([]Fill, error) {
	var marginal []common.Order
	fills := make([]Fill, 0, len(orders))

	remaining := volume
	for _, order := range orders {
		better := order.LimitPrice > price
		if side == common.Sell {
			better = order.LimitPrice < price
		}
		switch {
		case better:
			quantity := min(order.Quantity, remaining)
			remaining -= quantity
			if quantity > 0 {
				fills = append(fills, fill(order, quantity))
			}
		case order.LimitPrice == price:
			marginal = append(marginal, order)
		}
	}

	if remaining > 0 && len(marginal) > 0 {
		shares, err := proRata(marginal, remaining)
		if err != nil {
			return nil, err
		}
		for i, order := range marginal {
			if shares[i] > 0 {
				fills = append(fills, fill(order, shares[i]))
			}
		}
	}
	return fills, nil
}

// proRata splits residual among same-price orders proportionally to
// their quantity, rounding with the largest-remainder method: floor
// every share, then hand out the shortfall one lot at a time to the
// largest fractional remainders, ties broken by arrival sequence and
// finally by agent ID. The returned shares sum exactly to residual.
func proRata(orders []common.Order, residual common.Quantity) ([]common.Quantity, error) {
	total := common.Quantity(0)
	for _, order := range orders {
		total += order.Quantity
	}
	if residual > total {
		return nil, fmt.Errorf("%w: residual %d exceeds marginal quantity %d", ErrInvariant, residual, total)
	}

	shares := make([]common.Quantity, len(orders))
	remainders := make([]common.Quantity, len(orders))
	distributed := common.Quantity(0)
	for i, order := range orders {
		exact := residual * order.Quantity
		shares[i] = exact / total
		remainders[i] = exact % total
		distributed += shares[i]
	}

	shortfall := residual - distributed
	if shortfall > 0 {
		byRemainder := make([]int, len(orders))
		for i := range byRemainder {
			byRemainder[i] = i
		}
		sort.SliceStable(byRemainder, func(a, b int) bool {
			i, j := byRemainder[a], byRemainder[b]
			if remainders[i] != remainders[j] {
				return remainders[i] > remainders[j]
			}
			if orders[i].Seq != orders[j].Seq {
				return orders[i].Seq < orders[j].Seq
			}
			return orders[i].AgentID < orders[j].AgentID
		})
		for _, i := range byRemainder[:shortfall] {
			shares[i]++
		}
	}

	for i, share := range shares {
		if share < 0 || share > orders[i].Quantity {
			return nil, fmt.Errorf("%w: share %d outside [0,%d] for order %d",
				ErrInvariant, share, orders[i].Quantity, orders[i].Seq)
		}
	}
	return shares, nil
}

// pairTrades walks the buyer and seller fill pools in their
// deterministic order, splitting a pool member across counter-trades
// when sizes do not align, until both pools are exhausted.
func pairTrades(id common.ProductID, price common.Money, buyFills, sellFills []Fill) []common.Trade {
	now := time.Now()
	var trades []common.Trade

	bi, si := 0, 0
	buyRest, sellRest := common.Quantity(0), common.Quantity(0)
	if bi < len(buyFills) {
		buyRest = buyFills[bi].Quantity
	}
	if si < len(sellFills) {
		sellRest = sellFills[si].Quantity
	}
	for bi < len(buyFills) && si < len(sellFills) {
		quantity := min(buyRest, sellRest)
		trades = append(trades, common.Trade{
			ID:        uuid.NewString(),
			ProductID: id,
			Price:     price,
			Quantity:  quantity,
			BuyerID:   buyFills[bi].AgentID,
			SellerID:  sellFills[si].AgentID,
			Timestamp: now,
		})
		buyRest -= quantity
		sellRest -= quantity
		if buyRest == 0 {
			bi++
			if bi < len(buyFills) {
				buyRest = buyFills[bi].Quantity
			}
		}
		if sellRest == 0 {
			si++
			if si < len(sellFills) {
				sellRest = sellFills[si].Quantity
			}
		}
	}
	return trades
}

// verifyConservation checks that both sides matched exactly the
// executable volume. A mismatch means the allocator misfired and the
// whole clearing pass for this product must be discarded.
func verifyConservation(buyFills, sellFills []Fill, volume common.Quantity) error {
	bought, sold := common.Quantity(0), common.Quantity(0)
	for _, f := range buyFills {
		bought += f.Quantity
	}
	for _, f := range sellFills {
		sold += f.Quantity
	}
	if bought != volume || sold != volume {
		return fmt.Errorf("%w: bought %d, sold %d, volume %d", ErrInvariant, bought, sold, volume)
	}
	return nil
}

func fill(order common.Order, quantity common.Quantity) Fill {
	return Fill{
		Seq:        order.Seq,
		AgentID:    order.AgentID,
		Side:       order.Side,
		LimitPrice: order.LimitPrice,
		Quantity:   quantity,
	}
}

// priceGrid returns the ascending set of distinct limit prices across
// both sides. Candidate collection never iterates a map, so price
// selection is independent of hashing.
func priceGrid(bids, asks []common.Order) []common.Money {
	prices := make([]common.Money, 0, len(bids)+len(asks))
	for _, order := range bids {
		prices = append(prices, order.LimitPrice)
	}
	for _, order := range asks {
		prices = append(prices, order.LimitPrice)
	}
	sort.Float64s(prices)
	distinct := prices[:0]
	for i, p := range prices {
		if i == 0 || p != distinct[len(distinct)-1] {
			distinct = append(distinct, p)
		}
	}
	return distinct
}

func cumBidAt(bids []common.Order, price common.Money) common.Quantity {
	total := common.Quantity(0)
	for _, order := range bids {
		if order.LimitPrice >= price {
			total += order.Quantity
		}
	}
	return total
}

func cumAskAt(asks []common.Order, price common.Money) common.Quantity {
	total := common.Quantity(0)
	for _, order := range asks {
		if order.LimitPrice <= price {
			total += order.Quantity
		}
	}
	return total
}

func filterPositive(orders []common.Order) []common.Order {
	filtered := make([]common.Order, 0, len(orders))
	for _, order := range orders {
		if order.Quantity > 0 {
			filtered = append(filtered, order)
		}
	}
	return filtered
}

func keep(prices []common.Money, pred func(common.Money) bool) []common.Money {
	kept := prices[:0]
	for _, p := range prices {
		if pred(p) {
			kept = append(kept, p)
		}
	}
	return kept
}

func abs(q common.Quantity) int64 {
	if q < 0 {
		return -q
	}
	return q
}
