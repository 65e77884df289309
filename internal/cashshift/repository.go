package cashshift

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
	"github.com/balcao-pos/balcao/internal/shared"
)

// TxRepository exposes the writes that must share one transaction.
type TxRepository interface {
	InsertShift(ctx context.Context, shift Shift) (Shift, error)
	GetShiftForUpdate(ctx context.Context, tenantID, shiftID uuid.UUID) (Shift, error)
	FindOpenShiftForUpdate(ctx context.Context, tenantID, locationID uuid.UUID) (Shift, error)
	UpdateShiftClose(ctx context.Context, shift Shift) error
	InsertMovement(ctx context.Context, mv Movement) (Movement, error)
	SumCash(ctx context.Context, shiftID uuid.UUID) (in, out decimal.Decimal, err error)
}

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Bind(tx pgx.Tx) TxRepository
	GetShift(ctx context.Context, tenantID, shiftID uuid.UUID) (Shift, error)
	FindOpenShift(ctx context.Context, tenantID, locationID uuid.UUID) (Shift, error)
	ListShifts(ctx context.Context, tenantID, locationID uuid.UUID, limit, offset int) ([]Shift, error)
	ListMovements(ctx context.Context, tenantID, shiftID uuid.UUID, limit, offset int) ([]Movement, error)
}

// Repository persists shifts and movements in PostgreSQL.
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

// Bind scopes the repository to an externally managed transaction, used
// when the sale orchestrator posts payments inside its own commit unit.
func (r *Repository) Bind(tx pgx.Tx) TxRepository {
	return &txRepo{q: tx}
}

const shiftColumns = `id, tenant_id, location_id, opened_by, opened_at, opening_float, status,
closed_by, closed_at, declared_cash, expected_cash, cash_diff, justification, notes`

func scanShift(row pgx.Row) (Shift, error) {
	var s Shift
	var status string
	err := row.Scan(&s.ID, &s.TenantID, &s.LocationID, &s.OpenedBy, &s.OpenedAt, &s.OpeningFloat, &status,
		&s.ClosedBy, &s.ClosedAt, &s.DeclaredCash, &s.ExpectedCash, &s.CashDiff, &s.Justification, &s.Notes)
	if err != nil {
		return Shift{}, err
	}
	s.Status = ShiftStatus(status)
	return s, nil
}

// InsertShift inserts an OPEN shift. The partial unique index on
// (tenant_id, location_id) WHERE status = 'OPEN' is what makes two
// concurrent opens resolve to exactly one winner.
func (t *txRepo) InsertShift(ctx context.Context, shift Shift) (Shift, error) {
	const query = `
INSERT INTO shifts (id, tenant_id, location_id, opened_by, opened_at, opening_float, status, justification, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, '', $8)
RETURNING ` + shiftColumns
	row := t.q.QueryRow(ctx, query,
		shift.ID, shift.TenantID, shift.LocationID, shift.OpenedBy, shift.OpenedAt,
		shift.OpeningFloat, string(shift.Status), shift.Notes)
	created, err := scanShift(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Shift{}, ErrShiftAlreadyOpen
		}
		return Shift{}, fmt.Errorf("cashshift: insert shift: %w", err)
	}
	return created, nil
}

// GetShiftForUpdate locks the shift row for the remainder of the transaction.
func (t *txRepo) GetShiftForUpdate(ctx context.Context, tenantID, shiftID uuid.UUID) (Shift, error) {
	const query = `SELECT ` + shiftColumns + ` FROM shifts WHERE tenant_id = $1 AND id = $2 FOR UPDATE`
	s, err := scanShift(t.q.QueryRow(ctx, query, tenantID, shiftID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shift{}, ErrShiftNotFound
		}
		return Shift{}, fmt.Errorf("cashshift: get shift for update: %w", err)
	}
	return s, nil
}

// FindOpenShiftForUpdate locks the open shift for the location so a
// concurrent close cannot race a payment posting.
func (t *txRepo) FindOpenShiftForUpdate(ctx context.Context, tenantID, locationID uuid.UUID) (Shift, error) {
	const query = `SELECT ` + shiftColumns + ` FROM shifts
WHERE tenant_id = $1 AND location_id = $2 AND status = 'OPEN' FOR UPDATE`
	s, err := scanShift(t.q.QueryRow(ctx, query, tenantID, locationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shift{}, ErrNoOpenShift
		}
		return Shift{}, fmt.Errorf("cashshift: find open shift for update: %w", err)
	}
	return s, nil
}

// UpdateShiftClose transitions the shift to CLOSED with the reconciliation result.
func (t *txRepo) UpdateShiftClose(ctx context.Context, shift Shift) error {
	const query = `
UPDATE shifts SET status = $3, closed_by = $4, closed_at = $5,
declared_cash = $6, expected_cash = $7, cash_diff = $8, justification = $9, notes = $10
WHERE tenant_id = $1 AND id = $2 AND status = 'OPEN'`
	tag, err := t.q.Exec(ctx, query, shift.TenantID, shift.ID, string(ShiftClosed),
		shift.ClosedBy, shift.ClosedAt, shift.DeclaredCash, shift.ExpectedCash, shift.CashDiff, shift.Justification, shift.Notes)
	if err != nil {
		return fmt.Errorf("cashshift: close shift: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrShiftNotOpen
	}
	return nil
}

// InsertMovement appends one immutable ledger entry.
func (t *txRepo) InsertMovement(ctx context.Context, mv Movement) (Movement, error) {
	const query = `
INSERT INTO cash_movements (id, shift_id, tenant_id, location_id, type, direction, method, amount,
origin_kind, origin_id, created_by, created_at, note)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	var originID *uuid.UUID
	if mv.Origin.ID != uuid.Nil {
		originID = &mv.Origin.ID
	}
	_, err := t.q.Exec(ctx, query, mv.ID, mv.ShiftID, mv.TenantID, mv.LocationID,
		string(mv.Type), string(mv.Direction), string(mv.Method), mv.Amount,
		string(mv.Origin.Kind), originID, mv.CreatedBy, mv.CreatedAt, mv.Note)
	if err != nil {
		return Movement{}, fmt.Errorf("cashshift: insert movement: %w", err)
	}
	return mv, nil
}

// SumCash folds the shift's CASH movements by direction. Closing sweeps
// are excluded: they describe the drawer being emptied, not activity.
func (t *txRepo) SumCash(ctx context.Context, shiftID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	const query = `
SELECT
  COALESCE(SUM(amount) FILTER (WHERE direction = 'IN'), 0),
  COALESCE(SUM(amount) FILTER (WHERE direction = 'OUT'), 0)
FROM cash_movements
WHERE shift_id = $1 AND method = $2 AND type <> $3`
	var in, out decimal.Decimal
	if err := t.q.QueryRow(ctx, query, shiftID, string(shared.MethodCash), string(MovementClosing)).Scan(&in, &out); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("cashshift: sum cash: %w", err)
	}
	return in, out, nil
}

// GetShift fetches a shift visible to the tenant.
func (r *Repository) GetShift(ctx context.Context, tenantID, shiftID uuid.UUID) (Shift, error) {
	const query = `SELECT ` + shiftColumns + ` FROM shifts WHERE tenant_id = $1 AND id = $2`
	s, err := scanShift(r.pool.QueryRow(ctx, query, tenantID, shiftID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shift{}, ErrShiftNotFound
		}
		return Shift{}, fmt.Errorf("cashshift: get shift: %w", err)
	}
	return s, nil
}

// FindOpenShift returns the OPEN shift for the location, if any.
func (r *Repository) FindOpenShift(ctx context.Context, tenantID, locationID uuid.UUID) (Shift, error) {
	const query = `SELECT ` + shiftColumns + ` FROM shifts
WHERE tenant_id = $1 AND location_id = $2 AND status = 'OPEN'`
	s, err := scanShift(r.pool.QueryRow(ctx, query, tenantID, locationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shift{}, ErrNoOpenShift
		}
		return Shift{}, fmt.Errorf("cashshift: find open shift: %w", err)
	}
	return s, nil
}

// ListShifts returns recent shifts for the location, newest first.
func (r *Repository) ListShifts(ctx context.Context, tenantID, locationID uuid.UUID, limit, offset int) ([]Shift, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT ` + shiftColumns + ` FROM shifts
WHERE tenant_id = $1 AND location_id = $2
ORDER BY opened_at DESC
LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, tenantID, locationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("cashshift: list shifts: %w", err)
	}
	defer rows.Close()
	var shifts []Shift
	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, s)
	}
	return shifts, rows.Err()
}

// ListMovements returns the shift's ledger in chronological order, the
// order reconciliation displays use. The fold itself is order-independent.
func (r *Repository) ListMovements(ctx context.Context, tenantID, shiftID uuid.UUID, limit, offset int) ([]Movement, error) {
	if limit <= 0 {
		limit = 200
	}
	const query = `
SELECT id, shift_id, tenant_id, location_id, type, direction, method, amount,
origin_kind, origin_id, created_by, created_at, note
FROM cash_movements
WHERE tenant_id = $1 AND shift_id = $2
ORDER BY created_at ASC, id ASC
LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, tenantID, shiftID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("cashshift: list movements: %w", err)
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var mv Movement
		var mvType, direction, method, originKind string
		var originID *uuid.UUID
		var createdAt time.Time
		if err := rows.Scan(&mv.ID, &mv.ShiftID, &mv.TenantID, &mv.LocationID, &mvType, &direction, &method,
			&mv.Amount, &originKind, &originID, &mv.CreatedBy, &createdAt, &mv.Note); err != nil {
			return nil, err
		}
		mv.Type = MovementType(mvType)
		mv.Direction = Direction(direction)
		mv.Method = shared.PaymentMethod(method)
		mv.Origin = OriginRef{Kind: OriginKind(originKind)}
		if originID != nil {
			mv.Origin.ID = *originID
		}
		mv.CreatedAt = createdAt
		movements = append(movements, mv)
	}
	return movements, rows.Err()
}
