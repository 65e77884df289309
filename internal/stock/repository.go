package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/balcao-pos/balcao/internal/platform/db"
)

// ProductRow is the slice of the product the engine locks and mutates.
type ProductRow struct {
	ID              uuid.UUID
	StockControlled bool
	StockQty        decimal.Decimal
	UnitCost        decimal.Decimal
}

// TxRepository exposes the writes that must share one transaction.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, tenantID, productID uuid.UUID) (ProductRow, error)
	UpdateProductQty(ctx context.Context, tenantID, productID uuid.UUID, qty decimal.Decimal) error
	InsertMovement(ctx context.Context, mv Movement) (Movement, error)
	InsertAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error)
	GetAdjustmentForUpdate(ctx context.Context, tenantID, adjustmentID uuid.UUID) (Adjustment, error)
	UpdateAdjustmentDecision(ctx context.Context, adj Adjustment) error
}

// RepositoryPort abstracts persistence for the engine.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Bind(tx pgx.Tx) TxRepository
	GetAdjustment(ctx context.Context, tenantID, adjustmentID uuid.UUID) (Adjustment, error)
	ListAdjustments(ctx context.Context, tenantID uuid.UUID, status AdjustmentStatus, limit, offset int) ([]Adjustment, error)
	ListMovements(ctx context.Context, tenantID, productID uuid.UUID, limit, offset int) ([]Movement, error)
}

// Repository persists stock movements and adjustments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepo struct {
	q querier
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

// Bind scopes the repository to an externally managed transaction.
func (r *Repository) Bind(tx pgx.Tx) TxRepository {
	return &txRepo{q: tx}
}

// GetProductForUpdate locks the product row. Concurrent decrements of the
// same product serialise here, so the availability check never runs
// against a stale quantity.
func (t *txRepo) GetProductForUpdate(ctx context.Context, tenantID, productID uuid.UUID) (ProductRow, error) {
	const query = `SELECT id, stock_controlled, stock_qty, unit_cost
FROM products WHERE tenant_id = $1 AND id = $2 FOR UPDATE`
	var p ProductRow
	err := t.q.QueryRow(ctx, query, tenantID, productID).Scan(&p.ID, &p.StockControlled, &p.StockQty, &p.UnitCost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductRow{}, ErrProductNotFound
		}
		return ProductRow{}, fmt.Errorf("stock: get product for update: %w", err)
	}
	return p, nil
}

// UpdateProductQty writes the new cached running total.
func (t *txRepo) UpdateProductQty(ctx context.Context, tenantID, productID uuid.UUID, qty decimal.Decimal) error {
	const query = `UPDATE products SET stock_qty = $3 WHERE tenant_id = $1 AND id = $2`
	tag, err := t.q.Exec(ctx, query, tenantID, productID, qty)
	if err != nil {
		return fmt.Errorf("stock: update product qty: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// InsertMovement appends one stock movement row.
func (t *txRepo) InsertMovement(ctx context.Context, mv Movement) (Movement, error) {
	const query = `
INSERT INTO stock_movements (id, tenant_id, product_id, type, qty, source_location_id, target_location_id,
ref_module, ref_id, created_by, created_at, note)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	var refID *uuid.UUID
	if mv.RefID != uuid.Nil {
		refID = &mv.RefID
	}
	_, err := t.q.Exec(ctx, query, mv.ID, mv.TenantID, mv.ProductID, string(mv.Type), mv.Qty,
		mv.SourceLocationID, mv.TargetLocationID, mv.RefModule, refID, mv.CreatedBy, mv.CreatedAt, mv.Note)
	if err != nil {
		return Movement{}, fmt.Errorf("stock: insert movement: %w", err)
	}
	return mv, nil
}

const adjustmentColumns = `id, tenant_id, product_id, qty, reason_code, justification, status, value,
approver_id, decided_at, reject_reason, created_by, created_at`

func scanAdjustment(row pgx.Row) (Adjustment, error) {
	var a Adjustment
	var status string
	err := row.Scan(&a.ID, &a.TenantID, &a.ProductID, &a.Qty, &a.ReasonCode, &a.Justification, &status,
		&a.Value, &a.ApproverID, &a.DecidedAt, &a.RejectReason, &a.CreatedBy, &a.CreatedAt)
	if err != nil {
		return Adjustment{}, err
	}
	a.Status = AdjustmentStatus(status)
	return a, nil
}

// InsertAdjustment persists a new adjustment in its initial status.
func (t *txRepo) InsertAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error) {
	const query = `
INSERT INTO stock_adjustments (id, tenant_id, product_id, qty, reason_code, justification, status, value,
reject_reason, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', $9, $10)
RETURNING ` + adjustmentColumns
	row := t.q.QueryRow(ctx, query, adj.ID, adj.TenantID, adj.ProductID, adj.Qty, adj.ReasonCode,
		adj.Justification, string(adj.Status), adj.Value, adj.CreatedBy, adj.CreatedAt)
	created, err := scanAdjustment(row)
	if err != nil {
		return Adjustment{}, fmt.Errorf("stock: insert adjustment: %w", err)
	}
	return created, nil
}

// GetAdjustmentForUpdate locks the adjustment row for a decision.
func (t *txRepo) GetAdjustmentForUpdate(ctx context.Context, tenantID, adjustmentID uuid.UUID) (Adjustment, error) {
	const query = `SELECT ` + adjustmentColumns + ` FROM stock_adjustments
WHERE tenant_id = $1 AND id = $2 FOR UPDATE`
	a, err := scanAdjustment(t.q.QueryRow(ctx, query, tenantID, adjustmentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Adjustment{}, ErrAdjustmentNotFound
		}
		return Adjustment{}, fmt.Errorf("stock: get adjustment for update: %w", err)
	}
	return a, nil
}

// UpdateAdjustmentDecision records an approve/reject transition.
func (t *txRepo) UpdateAdjustmentDecision(ctx context.Context, adj Adjustment) error {
	const query = `
UPDATE stock_adjustments SET status = $3, approver_id = $4, decided_at = $5, reject_reason = $6
WHERE tenant_id = $1 AND id = $2 AND status = 'PENDING'`
	tag, err := t.q.Exec(ctx, query, adj.TenantID, adj.ID, string(adj.Status), adj.ApproverID, adj.DecidedAt, adj.RejectReason)
	if err != nil {
		return fmt.Errorf("stock: update adjustment decision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

// GetAdjustment fetches one adjustment visible to the tenant.
func (r *Repository) GetAdjustment(ctx context.Context, tenantID, adjustmentID uuid.UUID) (Adjustment, error) {
	const query = `SELECT ` + adjustmentColumns + ` FROM stock_adjustments WHERE tenant_id = $1 AND id = $2`
	a, err := scanAdjustment(r.pool.QueryRow(ctx, query, tenantID, adjustmentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Adjustment{}, ErrAdjustmentNotFound
		}
		return Adjustment{}, fmt.Errorf("stock: get adjustment: %w", err)
	}
	return a, nil
}

// ListAdjustments returns adjustments, optionally filtered by status.
func (r *Repository) ListAdjustments(ctx context.Context, tenantID uuid.UUID, status AdjustmentStatus, limit, offset int) ([]Adjustment, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT ` + adjustmentColumns + ` FROM stock_adjustments
WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, tenantID, string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("stock: list adjustments: %w", err)
	}
	defer rows.Close()
	var out []Adjustment
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListMovements returns a product's movement log, newest first.
func (r *Repository) ListMovements(ctx context.Context, tenantID, productID uuid.UUID, limit, offset int) ([]Movement, error) {
	if limit <= 0 {
		limit = 200
	}
	const query = `
SELECT id, tenant_id, product_id, type, qty, source_location_id, target_location_id,
ref_module, ref_id, created_by, created_at, note
FROM stock_movements
WHERE tenant_id = $1 AND ($2 = '00000000-0000-0000-0000-000000000000'::uuid OR product_id = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, tenantID, productID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("stock: list movements: %w", err)
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var mv Movement
		var mvType string
		var refID *uuid.UUID
		var createdAt time.Time
		if err := rows.Scan(&mv.ID, &mv.TenantID, &mv.ProductID, &mvType, &mv.Qty,
			&mv.SourceLocationID, &mv.TargetLocationID, &mv.RefModule, &refID, &mv.CreatedBy, &createdAt, &mv.Note); err != nil {
			return nil, err
		}
		mv.Type = MovementType(mvType)
		if refID != nil {
			mv.RefID = *refID
		}
		mv.CreatedAt = createdAt
		out = append(out, mv)
	}
	return out, rows.Err()
}
