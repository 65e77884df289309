// Package stock records every stock-quantity change and gates sensitive
// manual adjustments behind an approval threshold. All mutations of
// product.stock_qty in the system go through this engine so the cached
// quantity and the movement log never diverge.
package stock

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/balcao-pos/balcao/internal/shared"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementPurchase is an inbound receipt from a supplier.
	MovementPurchase MovementType = "PURCHASE"
	// MovementSaleConsumption is the decrement committed with a sale.
	MovementSaleConsumption MovementType = "SALE_CONSUMPTION"
	// MovementTransferIn is the receiving half of a transfer.
	MovementTransferIn MovementType = "TRANSFER_IN"
	// MovementTransferOut is the sending half of a transfer.
	MovementTransferOut MovementType = "TRANSFER_OUT"
	// MovementAdjustment is an approved or auto-approved manual correction.
	MovementAdjustment MovementType = "ADJUSTMENT"
	// MovementLoss records shrinkage.
	MovementLoss MovementType = "LOSS"
)

// Movement is one signed quantity delta in the stock log.
// Stock is tracked company-wide: a transfer's OUT and IN halves cancel,
// so transfers change location attribution, not the quantity pool.
type Movement struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	ProductID        uuid.UUID
	Type             MovementType
	Qty              decimal.Decimal
	SourceLocationID *uuid.UUID
	TargetLocationID *uuid.UUID
	RefModule        string
	RefID            uuid.UUID
	CreatedBy        uuid.UUID
	CreatedAt        time.Time
	Note             string
}

// AdjustmentStatus enumerates the approval state machine.
// PENDING → {APPROVED, REJECTED}; AUTO_APPROVED is terminal and only
// reachable at creation.
type AdjustmentStatus string

const (
	// AdjustmentPending awaits a human decision.
	AdjustmentPending AdjustmentStatus = "PENDING"
	// AdjustmentApproved was accepted by an approver.
	AdjustmentApproved AdjustmentStatus = "APPROVED"
	// AdjustmentAutoApproved cleared the policy threshold at creation.
	AdjustmentAutoApproved AdjustmentStatus = "AUTO_APPROVED"
	// AdjustmentRejected was declined; stock is untouched.
	AdjustmentRejected AdjustmentStatus = "REJECTED"
)

// Adjustment is a manual stock correction request. Only APPROVED and
// AUTO_APPROVED adjustments produce a Movement.
type Adjustment struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	ProductID     uuid.UUID
	Qty           decimal.Decimal
	ReasonCode    string
	Justification string
	Status        AdjustmentStatus
	Value         decimal.Decimal
	ApproverID    *uuid.UUID
	DecidedAt     *time.Time
	RejectReason  string
	CreatedBy     uuid.UUID
	CreatedAt     time.Time
}

var (
	// ErrInsufficientStock indicates the decrement would overdraw the product.
	ErrInsufficientStock = fmt.Errorf("stock: insufficient quantity: %w", shared.ErrConflict)
	// ErrInvalidQuantity indicates a zero quantity delta.
	ErrInvalidQuantity = fmt.Errorf("stock: quantity must be non zero: %w", shared.ErrValidation)
	// ErrJustificationTooShort indicates the adjustment justification misses the policy minimum.
	ErrJustificationTooShort = fmt.Errorf("stock: justification below minimum length: %w", shared.ErrValidation)
	// ErrSameLocation indicates a transfer onto itself.
	ErrSameLocation = fmt.Errorf("stock: source and target location must differ: %w", shared.ErrValidation)
	// ErrAdjustmentNotFound indicates the adjustment is absent or not visible to the tenant.
	ErrAdjustmentNotFound = fmt.Errorf("stock: adjustment %w", shared.ErrNotFound)
	// ErrNotPending indicates a decision on an already-decided adjustment.
	ErrNotPending = fmt.Errorf("stock: adjustment is not pending: %w", shared.ErrPrecondition)
	// ErrProductNotFound indicates the product is absent or not visible to the tenant.
	ErrProductNotFound = fmt.Errorf("stock: product %w", shared.ErrNotFound)
)
