// Package sales orchestrates sale creation, quote conversion and
// cancellation. A sale's full side-effect set (header, items, stock
// decrement, payments, ledger postings, commission) commits as one
// database transaction or not at all.
package sales

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/balcao-pos/balcao/internal/shared"
)

// Status enumerates sale states.
type Status string

const (
	// StatusCompleted is a committed sale.
	StatusCompleted Status = "COMPLETED"
	// StatusCanceled is a reversed sale. Its ledger entries survive;
	// refunds post compensating movements.
	StatusCanceled Status = "CANCELED"
)

// Sale is the header of one point-of-sale transaction.
type Sale struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	LocationID   uuid.UUID
	CustomerID   *uuid.UUID
	SellerID     uuid.UUID
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
	Status       Status
	Notes        string
	QuoteID      *uuid.UUID
	CreatedAt    time.Time
	CanceledAt   *time.Time
	CanceledBy   *uuid.UUID
	CancelReason string
	Items        []Item
	Payments     []Payment
}

// Item is one sale line, owned exclusively by its sale.
type Item struct {
	ID        uuid.UUID
	SaleID    uuid.UUID
	ProductID uuid.UUID
	Qty       decimal.Decimal
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
	LineTotal decimal.Decimal
}

// Payment is one split-payment leg. Immediate-settlement methods get
// exactly one cash movement once the sale commits; deferred methods get
// none until installments settle.
type Payment struct {
	ID           uuid.UUID
	SaleID       uuid.UUID
	Method       shared.PaymentMethod
	Amount       decimal.Decimal
	Installments int
}

// Commission is the accrual recorded for the seller in the sale transaction.
type Commission struct {
	ID       uuid.UUID
	SaleID   uuid.UUID
	SellerID uuid.UUID
	Rate     decimal.Decimal
	Amount   decimal.Decimal
}

var (
	// ErrSaleNotFound indicates the sale is absent or not visible to the tenant.
	ErrSaleNotFound = fmt.Errorf("sales: sale %w", shared.ErrNotFound)
	// ErrNoItems indicates an empty item list.
	ErrNoItems = fmt.Errorf("sales: at least one item required: %w", shared.ErrValidation)
	// ErrNoPayments indicates an empty payment list.
	ErrNoPayments = fmt.Errorf("sales: at least one payment required: %w", shared.ErrValidation)
	// ErrPaymentMismatch indicates the payments do not cover the total.
	ErrPaymentMismatch = fmt.Errorf("sales: payments do not cover sale total: %w", shared.ErrConflict)
	// ErrProductInactive indicates a line references an inactive product.
	ErrProductInactive = fmt.Errorf("sales: product is inactive: %w", shared.ErrValidation)
	// ErrDeferredNeedsCustomer indicates store credit without an identified customer.
	ErrDeferredNeedsCustomer = fmt.Errorf("sales: deferred settlement requires a customer and installment schedule: %w", shared.ErrValidation)
	// ErrSaleNotCompleted indicates cancellation of a sale that is not COMPLETED.
	ErrSaleNotCompleted = fmt.Errorf("sales: sale is not completed: %w", shared.ErrPrecondition)
	// ErrWindowExpired indicates cancellation outside the allowed window.
	ErrWindowExpired = fmt.Errorf("sales: cancellation window expired: %w", shared.ErrPrecondition)
	// ErrApprovalRequired indicates cancellation above the limit without manager approval.
	ErrApprovalRequired = fmt.Errorf("sales: manager approval required to cancel: %w", shared.ErrPrecondition)
)
