// Package cashshift owns the cash-drawer lifecycle for a store location
// and the append-only ledger of cash-affecting events. Every place money
// enters or leaves a drawer goes through here.
package cashshift

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/balcao-pos/balcao/internal/shared"
)

// ShiftStatus enumerates shift lifecycle states.
type ShiftStatus string

const (
	// ShiftOpen marks an active drawer session.
	ShiftOpen ShiftStatus = "OPEN"
	// ShiftClosed marks a reconciled, finished session.
	ShiftClosed ShiftStatus = "CLOSED"
)

// Shift is one open-to-close session of a physical cash drawer.
// Shifts are never deleted; closing is the only mutation.
type Shift struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	LocationID    uuid.UUID
	OpenedBy      uuid.UUID
	OpenedAt      time.Time
	OpeningFloat  decimal.Decimal
	Status        ShiftStatus
	ClosedBy      *uuid.UUID
	ClosedAt      *time.Time
	DeclaredCash  *decimal.Decimal
	ExpectedCash  *decimal.Decimal
	CashDiff      *decimal.Decimal
	Justification string
	Notes         string
}

// MovementType enumerates ledger entry kinds.
type MovementType string

const (
	// MovementOpeningFloat is the float placed in the drawer at open.
	MovementOpeningFloat MovementType = "OPENING_FLOAT"
	// MovementSalePayment is an immediate-settlement sale payment.
	MovementSalePayment MovementType = "SALE_PAYMENT"
	// MovementSupply is a manual cash supply into the drawer.
	MovementSupply MovementType = "SUPPLY"
	// MovementWithdrawal is a manual cash withdrawal from the drawer.
	MovementWithdrawal MovementType = "WITHDRAWAL"
	// MovementRefund is a compensating entry posted when a canceled sale
	// returns cash to the customer.
	MovementRefund MovementType = "REFUND"
	// MovementClosing is the sweep of the counted drawer cash at close.
	// Closing sweeps are excluded from the expected-cash fold.
	MovementClosing MovementType = "CLOSING"
)

// Direction tells whether cash flowed into or out of the drawer.
type Direction string

const (
	// DirectionIn flows into the drawer.
	DirectionIn Direction = "IN"
	// DirectionOut flows out of the drawer.
	DirectionOut Direction = "OUT"
)

// OriginKind tags what produced a movement.
type OriginKind string

const (
	// OriginSalePayment links to a sale payment row.
	OriginSalePayment OriginKind = "SALE_PAYMENT"
	// OriginShift links to the shift lifecycle itself (float, closing).
	OriginShift OriginKind = "SHIFT"
	// OriginManual marks an operator-entered supply or withdrawal.
	OriginManual OriginKind = "MANUAL"
)

// OriginRef is a tagged reference to whatever produced a movement.
// Keeping the kind explicit lets new movement sources fail loudly
// instead of smuggling through an untyped (type, id) pair.
type OriginRef struct {
	Kind OriginKind
	ID   uuid.UUID
}

// SalePaymentOrigin references the sale payment that produced a movement.
func SalePaymentOrigin(paymentID uuid.UUID) OriginRef {
	return OriginRef{Kind: OriginSalePayment, ID: paymentID}
}

// ShiftOrigin references the shift lifecycle event that produced a movement.
func ShiftOrigin(shiftID uuid.UUID) OriginRef {
	return OriginRef{Kind: OriginShift, ID: shiftID}
}

// ManualOrigin marks an operator-entered movement.
func ManualOrigin() OriginRef {
	return OriginRef{Kind: OriginManual}
}

// Movement is one immutable entry in the cash ledger. Corrections are
// made by posting an offsetting movement, never by update or delete.
type Movement struct {
	ID         uuid.UUID
	ShiftID    uuid.UUID
	TenantID   uuid.UUID
	LocationID uuid.UUID
	Type       MovementType
	Direction  Direction
	Method     shared.PaymentMethod
	Amount     decimal.Decimal
	Origin     OriginRef
	CreatedBy  uuid.UUID
	CreatedAt  time.Time
	Note       string
}

var (
	// ErrShiftAlreadyOpen indicates a second open attempt for the location.
	ErrShiftAlreadyOpen = fmt.Errorf("cashshift: a shift is already open for this location: %w", shared.ErrConflict)
	// ErrShiftNotFound indicates no shift with that id is visible to the tenant.
	ErrShiftNotFound = fmt.Errorf("cashshift: shift %w", shared.ErrNotFound)
	// ErrShiftNotOpen indicates the target shift has already been closed.
	ErrShiftNotOpen = fmt.Errorf("cashshift: shift is not open: %w", shared.ErrPrecondition)
	// ErrNoOpenShift indicates no open shift exists for the location.
	ErrNoOpenShift = fmt.Errorf("cashshift: no open shift for location: %w", shared.ErrPrecondition)
	// ErrReconciliationRequired indicates an unexplained cash difference at close.
	ErrReconciliationRequired = fmt.Errorf("cashshift: declared cash differs from expected and no justification was supplied: %w", shared.ErrPrecondition)
	// ErrInvalidAmount indicates a non-positive movement amount.
	ErrInvalidAmount = fmt.Errorf("cashshift: amount must be positive: %w", shared.ErrValidation)
	// ErrInvalidMovementType indicates an unsupported manual movement type.
	ErrInvalidMovementType = fmt.Errorf("cashshift: unsupported movement type: %w", shared.ErrValidation)
)

// directionFor derives the direction from the movement type for entries
// whose polarity is fixed by their kind.
func directionFor(t MovementType) (Direction, bool) {
	switch t {
	case MovementOpeningFloat, MovementSupply:
		return DirectionIn, true
	case MovementWithdrawal, MovementClosing, MovementRefund:
		return DirectionOut, true
	default:
		return "", false
	}
}
