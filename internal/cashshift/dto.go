package cashshift

import "time"

// OpenShiftRequest is the payload for POST /shifts/open.
// Monetary amounts travel as decimal strings to avoid binary floating point.
type OpenShiftRequest struct {
	OpeningFloat string `json:"opening_float" validate:"required"`
	Notes        string `json:"notes" validate:"max=500"`
}

// CloseShiftRequest is the payload for POST /shifts/{id}/close.
type CloseShiftRequest struct {
	DeclaredCash  string `json:"declared_cash" validate:"required"`
	Justification string `json:"justification" validate:"max=500"`
	Notes         string `json:"notes" validate:"max=500"`
}

// ManualMovementRequest is the payload for POST /movements.
type ManualMovementRequest struct {
	Type   string `json:"type" validate:"required,oneof=SUPPLY WITHDRAWAL"`
	Method string `json:"method" validate:"omitempty,oneof=CASH DEBIT CREDIT PIX"`
	Amount string `json:"amount" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

// ShiftResponse mirrors a Shift for JSON output.
type ShiftResponse struct {
	ID            string     `json:"id"`
	LocationID    string     `json:"location_id"`
	OpenedBy      string     `json:"opened_by"`
	OpenedAt      time.Time  `json:"opened_at"`
	OpeningFloat  string     `json:"opening_float"`
	Status        string     `json:"status"`
	ClosedBy      *string    `json:"closed_by,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	DeclaredCash  *string    `json:"declared_cash,omitempty"`
	ExpectedCash  *string    `json:"expected_cash,omitempty"`
	CashDiff      *string    `json:"cash_diff,omitempty"`
	Justification string     `json:"justification,omitempty"`
	Notes         string     `json:"notes,omitempty"`
}

// MovementResponse mirrors a Movement for JSON output.
type MovementResponse struct {
	ID         string    `json:"id"`
	ShiftID    string    `json:"shift_id"`
	Type       string    `json:"type"`
	Direction  string    `json:"direction"`
	Method     string    `json:"method"`
	Amount     string    `json:"amount"`
	OriginKind string    `json:"origin_kind"`
	OriginID   *string   `json:"origin_id,omitempty"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	Note       string    `json:"note,omitempty"`
}

func toShiftResponse(s Shift) ShiftResponse {
	resp := ShiftResponse{
		ID:            s.ID.String(),
		LocationID:    s.LocationID.String(),
		OpenedBy:      s.OpenedBy.String(),
		OpenedAt:      s.OpenedAt,
		OpeningFloat:  s.OpeningFloat.StringFixed(2),
		Status:        string(s.Status),
		ClosedAt:      s.ClosedAt,
		Justification: s.Justification,
		Notes:         s.Notes,
	}
	if s.ClosedBy != nil {
		v := s.ClosedBy.String()
		resp.ClosedBy = &v
	}
	if s.DeclaredCash != nil {
		v := s.DeclaredCash.StringFixed(2)
		resp.DeclaredCash = &v
	}
	if s.ExpectedCash != nil {
		v := s.ExpectedCash.StringFixed(2)
		resp.ExpectedCash = &v
	}
	if s.CashDiff != nil {
		v := s.CashDiff.StringFixed(2)
		resp.CashDiff = &v
	}
	return resp
}

func toMovementResponse(m Movement) MovementResponse {
	resp := MovementResponse{
		ID:         m.ID.String(),
		ShiftID:    m.ShiftID.String(),
		Type:       string(m.Type),
		Direction:  string(m.Direction),
		Method:     string(m.Method),
		Amount:     m.Amount.StringFixed(2),
		OriginKind: string(m.Origin.Kind),
		CreatedBy:  m.CreatedBy.String(),
		CreatedAt:  m.CreatedAt,
		Note:       m.Note,
	}
	if m.Origin.Kind != OriginManual {
		v := m.Origin.ID.String()
		resp.OriginID = &v
	}
	return resp
}
