// Package catalog exposes read-only product, customer and seller lookups.
// Catalog CRUD lives in a separate service; the transactional core only
// needs the handful of attributes that gate money and stock mutations.
package catalog

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/balcao-pos/balcao/internal/shared"
)

// ProductInfo carries the product attributes the core validates against.
type ProductInfo struct {
	ID              uuid.UUID
	Name            string
	Active          bool
	StockControlled bool
	StockQty        decimal.Decimal
	UnitCost        decimal.Decimal
	UnitPrice       decimal.Decimal
}

// CustomerInfo identifies a customer eligible for deferred settlement.
type CustomerInfo struct {
	ID     uuid.UUID
	Name   string
	Active bool
}

// SellerInfo carries the commission configuration for a selling user.
type SellerInfo struct {
	ID             uuid.UUID
	CommissionRate decimal.Decimal
}

// ErrProductNotFound indicates the product is absent or not visible to the tenant.
var ErrProductNotFound = fmt.Errorf("catalog: product %w", shared.ErrNotFound)

// ErrCustomerNotFound indicates the customer is absent or not visible to the tenant.
var ErrCustomerNotFound = fmt.Errorf("catalog: customer %w", shared.ErrNotFound)
