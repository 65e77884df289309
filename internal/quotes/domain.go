// Package quotes holds the approved-quote store the sale orchestrator
// converts from. Quote authoring lives elsewhere; conversion is the only
// transition this core performs.
package quotes

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/balcao-pos/balcao/internal/shared"
)

// Status enumerates quote lifecycle states.
type Status string

const (
	// StatusDraft is still being edited.
	StatusDraft Status = "DRAFT"
	// StatusApproved may be converted into a sale.
	StatusApproved Status = "APPROVED"
	// StatusConverted has produced a sale.
	StatusConverted Status = "CONVERTED"
	// StatusExpired can no longer be converted.
	StatusExpired Status = "EXPIRED"
)

// Quote is a priced offer that may become a sale.
type Quote struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	CustomerID *uuid.UUID
	Status     Status
	Discount   decimal.Decimal
	Items      []Item
	CreatedAt  time.Time
}

// Item is one quoted line.
type Item struct {
	ProductID uuid.UUID
	Qty       decimal.Decimal
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
}

var (
	// ErrQuoteNotFound indicates the quote is absent or not visible to the tenant.
	ErrQuoteNotFound = fmt.Errorf("quotes: quote %w", shared.ErrNotFound)
	// ErrQuoteNotApproved indicates conversion of a quote that is not APPROVED.
	ErrQuoteNotApproved = fmt.Errorf("quotes: quote is not approved: %w", shared.ErrPrecondition)
)
