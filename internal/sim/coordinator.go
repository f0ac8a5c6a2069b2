// Package sim orchestrates one simulation step: collect agent orders,
// aggregate demand and supply, run the pricing pass, clear every
// product's auction, and publish the tick report.
package sim

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"agora/internal/book"
	"agora/internal/catalog"
	"agora/internal/clearing"
	"agora/internal/common"
	"agora/internal/config"
	"agora/internal/pricing"
)

// AgentSource is the narrow capability the coordinator consumes from
// an agent once per tick. Agent decision policy lives entirely behind
// it; the pricing and clearing core never sees agent types.
type AgentSource interface {
	SubmitOrders(tick uint64) []common.Order
}

// AgentFunc adapts a plain function to an AgentSource.
type AgentFunc func(tick uint64) []common.Order

func (f AgentFunc) SubmitOrders(tick uint64) []common.Order {
	return f(tick)
}

// ProductReport is the per-product outcome of one tick.
type ProductReport struct {
	ProductID     common.ProductID
	PricingErr    error // nil when the pricing pass succeeded
	ClearingErr   error // nil when the clearing pass succeeded
	ClearingPrice common.Money
	Volume        common.Quantity
	Imbalance     common.Quantity
	Trades        []common.Trade
}

// TickReport enumerates which products priced and cleared and which
// failed, with all trades of the tick. Trade records are read-only to
// everything downstream.
type TickReport struct {
	Tick     uint64
	Products []ProductReport
	Trades   []common.Trade
}

type Coordinator struct {
	catalog *catalog.Catalog
	pricer  *pricing.Engine
	clearer *clearing.Engine
	book    *book.Book
	agents  []AgentSource
	workers int
	tick    uint64
}

// New wires a coordinator over a loaded catalog with the configured
// pricing order, collar and parallelism.
func New(c *catalog.Catalog, cfg config.Config) *Coordinator {
	mode := pricing.CatalogOrder
	if cfg.EvaluationOrder == "topological" {
		mode = pricing.TopologicalOrder
	}
	var collar *clearing.Collar
	if cfg.PriceCollar.Enabled {
		collar = &clearing.Collar{Low: cfg.PriceCollar.Low, High: cfg.PriceCollar.High}
	}
	return &Coordinator{
		catalog: c,
		pricer:  pricing.NewEngine(cfg.TicksToAdjust, mode),
		clearer: clearing.NewEngine(collar),
		book:    book.New(),
		workers: cfg.ClearingWorkers,
	}
}

func (c *Coordinator) AddAgent(agent AgentSource) {
	c.agents = append(c.agents, agent)
}

// Book exposes the order book so collaborators outside the agent
// interface can submit orders before RunTick.
func (c *Coordinator) Book() *book.Book {
	return c.book
}

// RunTick executes one simulation step in the strict order: clear the
// book, collect orders, aggregate, price, clear per product, publish.
// Per-product failures are isolated; the tick itself always completes.
func (c *Coordinator) RunTick() *TickReport {
	c.tick++
	report := &TickReport{Tick: c.tick}

	// Tick boundary: the book is rebuilt from fresh submissions.
	c.book.Clear()
	for _, agent := range c.agents {
		for _, order := range agent.SubmitOrders(c.tick) {
			c.book.Submit(order)
		}
	}

	c.aggregate()

	pricingErrs := make(map[common.ProductID]error)
	for _, failure := range c.pricer.Tick(c.catalog) {
		pricingErrs[failure.ProductID] = failure.Err
		log.Warn().
			Err(failure.Err).
			Uint32("product", uint32(failure.ProductID)).
			Uint64("tick", c.tick).
			Msg("pricing pass failed")
	}

	results, clearingErrs := c.clearAll()

	products := c.catalog.Products()
	for i, product := range products {
		pr := ProductReport{
			ProductID:   product.ProductID,
			PricingErr:  pricingErrs[product.ProductID],
			ClearingErr: clearingErrs[i],
		}
		if result := results[i]; result != nil {
			pr.ClearingPrice = result.Price
			pr.Volume = result.Volume
			pr.Imbalance = result.Imbalance
			pr.Trades = result.Trades
			report.Trades = append(report.Trades, result.Trades...)
			for _, f := range result.Fills {
				c.book.Reduce(product.ProductID, f.Side, f.LimitPrice, f.Seq, f.Quantity)
			}
		}
		report.Products = append(report.Products, pr)
	}

	log.Info().
		Uint64("tick", c.tick).
		Int("products", len(products)).
		Int("trades", len(report.Trades)).
		Msg("tick complete")
	return report
}

// aggregate writes each product's demand/supply totals from the book
// into the catalog. Products without orders this tick reset to zero.
func (c *Coordinator) aggregate() {
	for _, product := range c.catalog.Products() {
		c.catalog.SetDemandAndSupply(product.ProductID,
			c.book.Demand(product.ProductID),
			c.book.Supply(product.ProductID))
	}
}

// clearAll runs the clearing engine over every product. Products are
// independent during clearing, so the pass is a parallel map: workers
// pull product slots from a channel and write into preallocated result
// slots, keeping the output identical regardless of scheduling. A
// failed product aborts only its own pass; its resting orders stay in
// the book until the next tick boundary.
func (c *Coordinator) clearAll() ([]*clearing.Result, []error) {
	products := c.catalog.Products()
	results := make([]*clearing.Result, len(products))
	errs := make([]error, len(products))

	slots := make(chan int)
	var t tomb.Tomb
	for w := 0; w < c.workers; w++ {
		t.Go(func() error {
			for i := range slots {
				snapshot := c.book.Snapshot(products[i].ProductID)
				results[i], errs[i] = c.clearer.ClearProduct(snapshot)
			}
			return nil
		})
	}
	t.Go(func() error {
		defer close(slots)
		for i := range products {
			select {
			case slots <- i:
			case <-t.Dying():
				return nil
			}
		}
		return nil
	})
	if err := t.Wait(); err != nil {
		// Workers only report through the error slots; a tomb
		// error here would be a runtime failure worth surfacing.
		log.Error().Err(err).Uint64("tick", c.tick).Msg("clearing pass aborted")
	}

	for i, err := range errs {
		if err != nil {
			log.Warn().
				Err(err).
				Uint32("product", uint32(products[i].ProductID)).
				Uint64("tick", c.tick).
				Msg("clearing pass failed")
			results[i] = nil
		}
	}
	return results, errs
}
