package stock

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/balcao-pos/balcao/internal/observability"
	"github.com/balcao-pos/balcao/internal/shared"
)

// ApprovalPort persists and reads approval history.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

const approvalModule = "stock.adjustment"

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Policy groups the tenant rules the engine enforces.
type Policy struct {
	AllowNegative    bool
	AutoApproveLimit decimal.Decimal
	ReasonWhitelist  []string
	MinJustification int
}

// MovementInput describes a single quantity change.
type MovementInput struct {
	ProductID        uuid.UUID
	Type             MovementType
	Qty              decimal.Decimal
	SourceLocationID *uuid.UUID
	TargetLocationID *uuid.UUID
	RefModule        string
	RefID            uuid.UUID
	Note             string
}

// TransferInput describes a transfer between store locations.
type TransferInput struct {
	ProductID        uuid.UUID
	SourceLocationID uuid.UUID
	TargetLocationID uuid.UUID
	Qty              decimal.Decimal
	Reason           string
}

// AdjustmentInput describes a manual stock correction request.
type AdjustmentInput struct {
	ProductID     uuid.UUID
	Qty           decimal.Decimal
	ReasonCode    string
	Justification string
}

// Engine coordinates stock movements and the adjustment approval gate.
type Engine struct {
	repo      RepositoryPort
	approvals ApprovalPort
	audit     AuditPort
	metrics   *observability.Metrics
	policy    Policy
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine builds Engine.
func NewEngine(repo RepositoryPort, approvals ApprovalPort, audit AuditPort, metrics *observability.Metrics, policy Policy, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.MinJustification <= 0 {
		policy.MinJustification = 10
	}
	return &Engine{
		repo:      repo,
		approvals: approvals,
		audit:     audit,
		metrics:   metrics,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// apply locks the product, enforces availability for decrements, writes
// the movement row and the new cached quantity in the caller's transaction.
func (e *Engine) apply(ctx context.Context, tx TxRepository, actor shared.Actor, in MovementInput) (Movement, error) {
	if in.Qty.IsZero() {
		return Movement{}, ErrInvalidQuantity
	}
	product, err := tx.GetProductForUpdate(ctx, actor.TenantID, in.ProductID)
	if err != nil {
		return Movement{}, err
	}
	if product.StockControlled {
		newQty := product.StockQty.Add(in.Qty)
		if in.Qty.IsNegative() && newQty.IsNegative() && !e.policy.AllowNegative {
			return Movement{}, ErrInsufficientStock
		}
		if err := tx.UpdateProductQty(ctx, actor.TenantID, in.ProductID, newQty); err != nil {
			return Movement{}, err
		}
	}
	return tx.InsertMovement(ctx, Movement{
		ID:               uuid.New(),
		TenantID:         actor.TenantID,
		ProductID:        in.ProductID,
		Type:             in.Type,
		Qty:              in.Qty,
		SourceLocationID: in.SourceLocationID,
		TargetLocationID: in.TargetLocationID,
		RefModule:        in.RefModule,
		RefID:            in.RefID,
		CreatedBy:        actor.UserID,
		CreatedAt:        e.now(),
		Note:             in.Note,
	})
}

// ApplyTx records a movement inside an externally managed transaction.
// The sale orchestrator composes its commit unit through this.
func (e *Engine) ApplyTx(ctx context.Context, tx pgx.Tx, actor shared.Actor, in MovementInput) (Movement, error) {
	return e.apply(ctx, e.repo.Bind(tx), actor, in)
}

// RecordMovement records a standalone movement in its own transaction.
func (e *Engine) RecordMovement(ctx context.Context, actor shared.Actor, in MovementInput) (Movement, error) {
	var mv Movement
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		mv, err = e.apply(ctx, tx, actor, in)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	e.recordAudit(ctx, actor, "stock.movement", mv.ID, map[string]any{
		"type": string(mv.Type), "qty": mv.Qty.String(), "product": mv.ProductID.String(),
	})
	return mv, nil
}

// CreateTransfer writes the paired OUT and IN movements in one
// transaction. Stock is company-wide, so the pair nets to zero against
// the quantity pool; what moves is location attribution. Availability is
// still validated once at the source.
func (e *Engine) CreateTransfer(ctx context.Context, actor shared.Actor, in TransferInput) (Movement, Movement, error) {
	if !in.Qty.IsPositive() {
		return Movement{}, Movement{}, ErrInvalidQuantity
	}
	if in.SourceLocationID == in.TargetLocationID {
		return Movement{}, Movement{}, ErrSameLocation
	}

	var out, inMv Movement
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, actor.TenantID, in.ProductID)
		if err != nil {
			return err
		}
		if product.StockControlled && !e.policy.AllowNegative && product.StockQty.LessThan(in.Qty) {
			return ErrInsufficientStock
		}

		now := e.now()
		pairID := uuid.New()
		out, err = tx.InsertMovement(ctx, Movement{
			ID:               uuid.New(),
			TenantID:         actor.TenantID,
			ProductID:        in.ProductID,
			Type:             MovementTransferOut,
			Qty:              in.Qty.Neg(),
			SourceLocationID: &in.SourceLocationID,
			TargetLocationID: &in.TargetLocationID,
			RefModule:        "transfer",
			RefID:            pairID,
			CreatedBy:        actor.UserID,
			CreatedAt:        now,
			Note:             in.Reason,
		})
		if err != nil {
			return err
		}
		inMv, err = tx.InsertMovement(ctx, Movement{
			ID:               uuid.New(),
			TenantID:         actor.TenantID,
			ProductID:        in.ProductID,
			Type:             MovementTransferIn,
			Qty:              in.Qty,
			SourceLocationID: &in.SourceLocationID,
			TargetLocationID: &in.TargetLocationID,
			RefModule:        "transfer",
			RefID:            pairID,
			CreatedBy:        actor.UserID,
			CreatedAt:        now,
			Note:             in.Reason,
		})
		return err
	})
	if err != nil {
		return Movement{}, Movement{}, err
	}
	e.recordAudit(ctx, actor, "stock.transfer", out.RefID, map[string]any{
		"product": in.ProductID.String(), "qty": in.Qty.String(),
	})
	return out, inMv, nil
}

// CreateAdjustment creates a manual correction. Below the policy
// threshold, or for whitelisted reason codes, it is auto-approved and
// the movement posts immediately; otherwise it stays PENDING and no
// stock changes until a human approves.
func (e *Engine) CreateAdjustment(ctx context.Context, actor shared.Actor, in AdjustmentInput) (Adjustment, error) {
	if in.Qty.IsZero() {
		return Adjustment{}, ErrInvalidQuantity
	}
	if len(strings.TrimSpace(in.Justification)) < e.policy.MinJustification {
		return Adjustment{}, ErrJustificationTooShort
	}
	reason := strings.ToUpper(strings.TrimSpace(in.ReasonCode))
	if reason == "" {
		return Adjustment{}, fmt.Errorf("stock: reason code required: %w", shared.ErrValidation)
	}

	var adj Adjustment
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, actor.TenantID, in.ProductID)
		if err != nil {
			return err
		}

		value := shared.RoundMoney(in.Qty.Abs().Mul(product.UnitCost))
		auto := value.LessThan(e.policy.AutoApproveLimit) || slices.Contains(e.policy.ReasonWhitelist, reason)

		adj = Adjustment{
			ID:            uuid.New(),
			TenantID:      actor.TenantID,
			ProductID:     in.ProductID,
			Qty:           in.Qty,
			ReasonCode:    reason,
			Justification: in.Justification,
			Status:        AdjustmentPending,
			Value:         value,
			CreatedBy:     actor.UserID,
			CreatedAt:     e.now(),
		}
		if auto {
			adj.Status = AdjustmentAutoApproved
		}
		adj, err = tx.InsertAdjustment(ctx, adj)
		if err != nil {
			return err
		}
		if auto {
			_, err = e.apply(ctx, tx, actor, MovementInput{
				ProductID: in.ProductID,
				Type:      MovementAdjustment,
				Qty:       in.Qty,
				RefModule: "adjustment",
				RefID:     adj.ID,
				Note:      in.Justification,
			})
			return err
		}
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}

	if e.metrics != nil {
		e.metrics.AdjustmentsByState.WithLabelValues(string(adj.Status)).Inc()
	}
	e.recordApproval(ctx, actor, adj.ID, shared.ApprovalSubmit, in.Justification)
	e.recordAudit(ctx, actor, "adjustment.create", adj.ID, map[string]any{
		"status": string(adj.Status), "qty": adj.Qty.String(), "value": adj.Value.String(),
	})
	return adj, nil
}

// Approve posts the movement and transitions PENDING → APPROVED
// atomically; the stock change and the status change commit together.
func (e *Engine) Approve(ctx context.Context, actor shared.Actor, adjustmentID uuid.UUID) (Adjustment, error) {
	var adj Adjustment
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		adj, err = tx.GetAdjustmentForUpdate(ctx, actor.TenantID, adjustmentID)
		if err != nil {
			return err
		}
		if adj.Status != AdjustmentPending {
			return ErrNotPending
		}
		if _, err = e.apply(ctx, tx, actor, MovementInput{
			ProductID: adj.ProductID,
			Type:      MovementAdjustment,
			Qty:       adj.Qty,
			RefModule: "adjustment",
			RefID:     adj.ID,
			Note:      adj.Justification,
		}); err != nil {
			return err
		}
		now := e.now()
		adj.Status = AdjustmentApproved
		adj.ApproverID = &actor.UserID
		adj.DecidedAt = &now
		return tx.UpdateAdjustmentDecision(ctx, adj)
	})
	if err != nil {
		return Adjustment{}, err
	}

	if e.metrics != nil {
		e.metrics.AdjustmentsByState.WithLabelValues(string(AdjustmentApproved)).Inc()
	}
	e.recordApproval(ctx, actor, adj.ID, shared.ApprovalApprove, "")
	e.recordAudit(ctx, actor, "adjustment.approve", adj.ID, nil)
	return adj, nil
}

// Reject transitions PENDING → REJECTED. Stock is never touched.
func (e *Engine) Reject(ctx context.Context, actor shared.Actor, adjustmentID uuid.UUID, reason string) (Adjustment, error) {
	var adj Adjustment
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		adj, err = tx.GetAdjustmentForUpdate(ctx, actor.TenantID, adjustmentID)
		if err != nil {
			return err
		}
		if adj.Status != AdjustmentPending {
			return ErrNotPending
		}
		now := e.now()
		adj.Status = AdjustmentRejected
		adj.ApproverID = &actor.UserID
		adj.DecidedAt = &now
		adj.RejectReason = reason
		return tx.UpdateAdjustmentDecision(ctx, adj)
	})
	if err != nil {
		return Adjustment{}, err
	}

	if e.metrics != nil {
		e.metrics.AdjustmentsByState.WithLabelValues(string(AdjustmentRejected)).Inc()
	}
	e.recordApproval(ctx, actor, adj.ID, shared.ApprovalReject, reason)
	e.recordAudit(ctx, actor, "adjustment.reject", adj.ID, map[string]any{"reason": reason})
	return adj, nil
}

// GetAdjustment returns one adjustment.
func (e *Engine) GetAdjustment(ctx context.Context, actor shared.Actor, adjustmentID uuid.UUID) (Adjustment, error) {
	return e.repo.GetAdjustment(ctx, actor.TenantID, adjustmentID)
}

// ApprovalTrail returns the recorded approval history for an adjustment.
func (e *Engine) ApprovalTrail(ctx context.Context, adjustmentID uuid.UUID) ([]shared.ApprovalLog, error) {
	if e.approvals == nil {
		return nil, nil
	}
	return e.approvals.List(ctx, approvalModule, adjustmentID)
}

// ListAdjustments returns adjustments, optionally filtered by status.
func (e *Engine) ListAdjustments(ctx context.Context, actor shared.Actor, status AdjustmentStatus, limit, offset int) ([]Adjustment, error) {
	return e.repo.ListAdjustments(ctx, actor.TenantID, status, limit, offset)
}

// ListMovements returns the movement log, optionally scoped to a product.
func (e *Engine) ListMovements(ctx context.Context, actor shared.Actor, productID uuid.UUID, limit, offset int) ([]Movement, error) {
	return e.repo.ListMovements(ctx, actor.TenantID, productID, limit, offset)
}

func (e *Engine) recordApproval(ctx context.Context, actor shared.Actor, refID uuid.UUID, action shared.ApprovalAction, note string) {
	if e.approvals == nil {
		return
	}
	err := e.approvals.Record(ctx, shared.ApprovalLog{
		Module:  approvalModule,
		RefID:   refID,
		ActorID: actor.UserID,
		Action:  action,
		Note:    note,
	})
	if err != nil {
		e.logger.Warn("record approval", slog.Any("error", err))
	}
}

func (e *Engine) recordAudit(ctx context.Context, actor shared.Actor, action string, entityID uuid.UUID, meta map[string]any) {
	if e.audit == nil {
		return
	}
	err := e.audit.Record(ctx, shared.AuditLog{
		TenantID: actor.TenantID,
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "stock",
		EntityID: entityID.String(),
		Meta:     meta,
	})
	if err != nil {
		e.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
