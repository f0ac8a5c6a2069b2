package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"agora/internal/common"
)

var (
	ErrSchema           = errors.New("catalog schema violation")
	ErrDuplicateProduct = errors.New("duplicate product id")
)

// productRecord mirrors one JSON product description. Pointer fields
// distinguish a missing key from a zero value.
type productRecord struct {
	ProductID   *int64           `json:"productID"`
	Name        *string          `json:"name"`
	Type        *string          `json:"type"`
	Unit        *string          `json:"unit"`
	Price       *float64         `json:"price"`
	Cost        *float64         `json:"cost"`
	Demand      *int64           `json:"demand"`
	Supply      *int64           `json:"supply"`
	Importance  *float64         `json:"importance"`
	FloorMargin *float64         `json:"floorMargin"`
	Turnover    *float64         `json:"turnover"`
	Materials   []materialRecord `json:"materials"`
}

type materialRecord struct {
	Input    *int64   `json:"input"`
	Quantity *float64 `json:"quantity"`
}

// Load builds a Catalog from a JSON array of product descriptions.
// Loading is atomic: any schema violation, duplicate productID or
// bill-of-materials reference to an unknown product returns a nil
// catalog and zero products. A materials entry may only reference a
// product declared earlier in the array, which also keeps the
// bill-of-materials graph acyclic across declaration order.
func Load(r io.Reader) (*Catalog, error) {
	var records []productRecord
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty product list", ErrSchema)
	}

	c := &Catalog{index: make(map[common.ProductID]int, len(records))}
	for i, record := range records {
		product, err := loadProduct(&record, c)
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", i, err)
		}
		c.add(product)
	}
	return c, nil
}

// LoadFile reads and loads a catalog description file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func loadProduct(record *productRecord, c *Catalog) (*Product, error) {
	if err := validateRecord(record); err != nil {
		return nil, err
	}

	id := common.ProductID(*record.ProductID)
	if _, exists := c.index[id]; exists {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateProduct, id)
	}

	productType := Good
	if *record.Type == "Service" {
		productType = Service
	}
	var unit ProductUnit
	switch *record.Unit {
	case "Piece":
		unit = Piece
	case "Kg":
		unit = Kg
	case "Liter":
		unit = Liter
	case "Hour":
		unit = Hour
	}

	product := &Product{
		ProductID:   id,
		Type:        productType,
		Unit:        unit,
		Price:       *record.Price,
		Cost:        *record.Cost,
		Demand:      *record.Demand,
		Supply:      *record.Supply,
		Importance:  clampImportance(*record.Importance),
		FloorMargin: *record.FloorMargin,
		Turnover:    *record.Turnover,
		Name:        *record.Name,
		Materials:   make([]common.Item, 0, len(record.Materials)),
	}

	for _, material := range record.Materials {
		input := common.ProductID(*material.Input)
		// A component must already be declared: forward and self
		// references are rejected.
		if _, exists := c.index[input]; !exists {
			return nil, fmt.Errorf("%w: material input %d", ErrUnknownProduct, input)
		}
		product.Materials = append(product.Materials, common.Item{
			ProductID: input,
			Quantity:  *material.Quantity,
		})
	}
	return product, nil
}

func validateRecord(record *productRecord) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrSchema, fmt.Sprintf(format, args...))
	}

	if record.ProductID == nil || *record.ProductID < 0 {
		return fail("productID must be a non-negative integer")
	}
	if record.Name == nil || *record.Name == "" {
		return fail("name must be a non-empty string")
	}
	if record.Type == nil || (*record.Type != "Good" && *record.Type != "Service") {
		return fail("type must be Good or Service")
	}
	if record.Unit == nil {
		return fail("unit is required")
	}
	switch *record.Unit {
	case "Piece", "Kg", "Liter", "Hour":
	default:
		return fail("unit must be one of Piece, Kg, Liter, Hour")
	}
	if record.Price == nil || *record.Price < 0 {
		return fail("price must be a non-negative number")
	}
	if record.Cost == nil || *record.Cost < 0 {
		return fail("cost must be a non-negative number")
	}
	if record.Demand == nil || *record.Demand < 0 {
		return fail("demand must be a non-negative integer")
	}
	if record.Supply == nil || *record.Supply < 0 {
		return fail("supply must be a non-negative integer")
	}
	if record.Importance == nil || *record.Importance < 0 || *record.Importance > 1 {
		return fail("importance must be within [0,1]")
	}
	if record.FloorMargin == nil || *record.FloorMargin < 0 || *record.FloorMargin > 1 {
		return fail("floorMargin must be within [0,1]")
	}
	if record.Turnover == nil || *record.Turnover < 0 {
		return fail("turnover must be a non-negative number")
	}
	if record.Materials == nil {
		return fail("materials array is required")
	}
	for i, material := range record.Materials {
		if material.Input == nil || *material.Input < 0 {
			return fail("materials[%d].input must be a non-negative integer", i)
		}
		if material.Quantity == nil || *material.Quantity < 0 {
			return fail("materials[%d].quantity must be a non-negative number", i)
		}
	}
	return nil
}

// clampImportance keeps importance within (0,1] so the elasticity term
// never collapses to zero.
func clampImportance(importance float64) float64 {
	return min(max(importance, 1e-6), 1.0)
}
