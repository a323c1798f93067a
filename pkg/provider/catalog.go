package provider

import (
	"context"
	"strings"
	"sync"

	"github.com/ghostcart/ghostcart/pkg/mandate"
)

// MockCatalog serves a fixed product list with mutable price and stock
// state. Price and stock changes are how tests and demos simulate
// market movement for deferred purchases.
type MockCatalog struct {
	mu       sync.Mutex
	products []Product
}

// NewMockCatalog creates a catalog seeded with the default inventory.
func NewMockCatalog() *MockCatalog {
	return &MockCatalog{products: defaultInventory()}
}

func defaultInventory() []Product {
	return []Product{
		{ProductID: "prod_001", Name: "Breville Barista Express Espresso Machine", Description: "Semi-automatic espresso machine with built-in grinder", Category: "kitchen", PriceCents: 6900, InStock: true, DeliveryEstimateDays: 3},
		{ProductID: "prod_002", Name: "Sony WH-1000XM5 Wireless Headphones", Description: "Noise cancelling over-ear headphones", Category: "electronics", PriceCents: 34800, InStock: true, DeliveryEstimateDays: 2},
		{ProductID: "prod_003", Name: "Nintendo Switch OLED Console", Description: "Handheld gaming console with OLED screen", Category: "gaming", PriceCents: 34999, InStock: false, DeliveryEstimateDays: 5},
		{ProductID: "prod_004", Name: "Levoit Air Purifier Core 300", Description: "HEPA air purifier for home", Category: "home", PriceCents: 9999, InStock: true, DeliveryEstimateDays: 4},
		{ProductID: "prod_005", Name: "Kindle Paperwhite E-Reader", Description: "Waterproof e-reader with adjustable warm light", Category: "electronics", PriceCents: 14999, InStock: true, DeliveryEstimateDays: 2},
		{ProductID: "prod_006", Name: "Lego Star Wars Millennium Falcon", Description: "Collector series building set", Category: "toys", PriceCents: 84999, InStock: true, DeliveryEstimateDays: 7},
		{ProductID: "prod_007", Name: "Patagonia Down Sweater Jacket", Description: "Lightweight insulated jacket", Category: "apparel", PriceCents: 27900, InStock: false, DeliveryEstimateDays: 6},
		{ProductID: "prod_008", Name: "Instant Pot Duo 7-in-1 Pressure Cooker", Description: "Multi-use programmable pressure cooker", Category: "kitchen", PriceCents: 8900, InStock: true, DeliveryEstimateDays: 3},
	}
}

// Lookup returns the first product whose name, description, or
// category contains the query, case-insensitively. Empty queries match
// nothing.
func (c *MockCatalog) Lookup(ctx context.Context, query string) (Product, bool, error) {
	select {
	case <-ctx.Done():
		return Product{}, false, ctx.Err()
	default:
	}

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Product{}, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.products {
		hay := strings.ToLower(p.Name + " " + p.Description + " " + p.Category)
		if strings.Contains(hay, q) {
			return p, true, nil
		}
	}
	return Product{}, false, nil
}

// SetPrice overrides a product's price. Returns false if the product
// does not exist.
func (c *MockCatalog) SetPrice(productID string, price mandate.Cents) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.products {
		if c.products[i].ProductID == productID {
			c.products[i].PriceCents = price
			return true
		}
	}
	return false
}

// SetStock flips a product's availability. Returns false if the
// product does not exist.
func (c *MockCatalog) SetStock(productID string, inStock bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.products {
		if c.products[i].ProductID == productID {
			c.products[i].InStock = inStock
			return true
		}
	}
	return false
}

// SetDelivery overrides a product's delivery estimate in days.
func (c *MockCatalog) SetDelivery(productID string, days int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.products {
		if c.products[i].ProductID == productID {
			c.products[i].DeliveryEstimateDays = days
			return true
		}
	}
	return false
}
