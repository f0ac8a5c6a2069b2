package pricing

import (
	"errors"

	"agora/internal/catalog"
	"agora/internal/common"
)

var ErrCycle = errors.New("bill-of-materials cycle")

// SortProducts orders products so that every component precedes the
// products consuming it (Kahn's algorithm over the bill-of-materials
// graph). Products on a cycle, or downstream of one, are returned
// separately: they have no valid evaluation order. Both result slices
// are deterministic, resolving ties by declaration order. Materials
// referencing products missing from the catalog are ignored here; the
// cost evaluator reports them.
func SortProducts(c *catalog.Catalog) (ordered, cyclic []*catalog.Product) {
	products := c.Products()

	slot := make(map[common.ProductID]int, len(products))
	for i, product := range products {
		slot[product.ProductID] = i
	}

	// consumers[i] lists slots of products that use product i as a
	// component; indegree[i] counts unevaluated components of i.
	consumers := make([][]int, len(products))
	indegree := make([]int, len(products))
	for i, product := range products {
		for _, item := range product.Materials {
			component, ok := slot[item.ProductID]
			if !ok {
				continue
			}
			consumers[component] = append(consumers[component], i)
			indegree[i]++
		}
	}

	queue := make([]int, 0, len(products))
	for i := range products {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	ordered = make([]*catalog.Product, 0, len(products))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		ordered = append(ordered, products[i])
		for _, consumer := range consumers[i] {
			indegree[consumer]--
			if indegree[consumer] == 0 {
				queue = append(queue, consumer)
			}
		}
	}

	if len(ordered) < len(products) {
		for i, product := range products {
			if indegree[i] > 0 {
				cyclic = append(cyclic, product)
			}
		}
	}
	return ordered, cyclic
}
