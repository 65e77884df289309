package stock

import (
	"time"

	"github.com/google/uuid"

	"github.com/balcao-pos/balcao/internal/shared"
)

// AdjustmentRequest is the payload for POST /stock/adjustments.
// Quantities travel as decimal strings; sign carries the direction.
type AdjustmentRequest struct {
	ProductID     string `json:"product_id" validate:"required,uuid"`
	Qty           string `json:"qty" validate:"required"`
	ReasonCode    string `json:"reason_code" validate:"required,max=40"`
	Justification string `json:"justification" validate:"required,max=500"`
}

// RejectRequest is the payload for POST /stock/adjustments/{id}/reject.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// TransferRequest is the payload for POST /stock/transfers.
type TransferRequest struct {
	ProductID        string `json:"product_id" validate:"required,uuid"`
	SourceLocationID string `json:"source_location_id" validate:"required,uuid"`
	TargetLocationID string `json:"target_location_id" validate:"required,uuid"`
	Qty              string `json:"qty" validate:"required"`
	Reason           string `json:"reason" validate:"max=500"`
}

// AdjustmentResponse mirrors an Adjustment for JSON output.
type AdjustmentResponse struct {
	ID            string     `json:"id"`
	ProductID     string     `json:"product_id"`
	Qty           string     `json:"qty"`
	ReasonCode    string     `json:"reason_code"`
	Justification string     `json:"justification"`
	Status        string     `json:"status"`
	Value         string     `json:"value"`
	ApproverID    *string    `json:"approver_id,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	RejectReason  string     `json:"reject_reason,omitempty"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ApprovalEntryResponse is one row of an adjustment's approval trail.
type ApprovalEntryResponse struct {
	ActorID string    `json:"actor_id"`
	Action  string    `json:"action"`
	Note    string    `json:"note,omitempty"`
	At      time.Time `json:"at"`
}

// AdjustmentDetailResponse is an adjustment with its approval trail.
type AdjustmentDetailResponse struct {
	AdjustmentResponse
	Approvals []ApprovalEntryResponse `json:"approvals"`
}

// MovementResponse mirrors a stock Movement for JSON output.
type MovementResponse struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"product_id"`
	Type             string    `json:"type"`
	Qty              string    `json:"qty"`
	SourceLocationID *string   `json:"source_location_id,omitempty"`
	TargetLocationID *string   `json:"target_location_id,omitempty"`
	RefModule        string    `json:"ref_module,omitempty"`
	RefID            *string   `json:"ref_id,omitempty"`
	CreatedBy        string    `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	Note             string    `json:"note,omitempty"`
}

func toAdjustmentResponse(a Adjustment) AdjustmentResponse {
	resp := AdjustmentResponse{
		ID:            a.ID.String(),
		ProductID:     a.ProductID.String(),
		Qty:           a.Qty.String(),
		ReasonCode:    a.ReasonCode,
		Justification: a.Justification,
		Status:        string(a.Status),
		Value:         a.Value.StringFixed(2),
		DecidedAt:     a.DecidedAt,
		RejectReason:  a.RejectReason,
		CreatedBy:     a.CreatedBy.String(),
		CreatedAt:     a.CreatedAt,
	}
	if a.ApproverID != nil {
		v := a.ApproverID.String()
		resp.ApproverID = &v
	}
	return resp
}

func toAdjustmentDetailResponse(a Adjustment, trail []shared.ApprovalLog) AdjustmentDetailResponse {
	resp := AdjustmentDetailResponse{
		AdjustmentResponse: toAdjustmentResponse(a),
		Approvals:          make([]ApprovalEntryResponse, 0, len(trail)),
	}
	for _, entry := range trail {
		resp.Approvals = append(resp.Approvals, ApprovalEntryResponse{
			ActorID: entry.ActorID.String(),
			Action:  string(entry.Action),
			Note:    entry.Note,
			At:      entry.At,
		})
	}
	return resp
}

func toMovementResponse(m Movement) MovementResponse {
	resp := MovementResponse{
		ID:        m.ID.String(),
		ProductID: m.ProductID.String(),
		Type:      string(m.Type),
		Qty:       m.Qty.String(),
		RefModule: m.RefModule,
		CreatedBy: m.CreatedBy.String(),
		CreatedAt: m.CreatedAt,
		Note:      m.Note,
	}
	if m.SourceLocationID != nil {
		v := m.SourceLocationID.String()
		resp.SourceLocationID = &v
	}
	if m.TargetLocationID != nil {
		v := m.TargetLocationID.String()
		resp.TargetLocationID = &v
	}
	if m.RefID != uuid.Nil {
		v := m.RefID.String()
		resp.RefID = &v
	}
	return resp
}
