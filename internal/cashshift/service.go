package cashshift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/balcao-pos/balcao/internal/observability"
	"github.com/balcao-pos/balcao/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ShiftCachePort abstracts the open-shift pointer cache.
type ShiftCachePort interface {
	Get(ctx context.Context, tenantID, locationID uuid.UUID) (uuid.UUID, error)
	Set(ctx context.Context, tenantID, locationID, shiftID uuid.UUID) error
	Invalidate(ctx context.Context, tenantID, locationID uuid.UUID) error
}

// DigestEnqueuer schedules the post-close reconciliation digest.
type DigestEnqueuer interface {
	EnqueueShiftDigest(ctx context.Context, tenantID, shiftID uuid.UUID) error
}

// OpenShiftInput carries the operator request to open a till.
type OpenShiftInput struct {
	OpeningFloat decimal.Decimal
	Notes        string
}

// CloseShiftInput carries the operator request to close a till.
type CloseShiftInput struct {
	ShiftID       uuid.UUID
	DeclaredCash  decimal.Decimal
	Justification string
	Notes         string
}

// ManualMovementInput carries a supply or withdrawal request.
type ManualMovementInput struct {
	Type   MovementType
	Method shared.PaymentMethod
	Amount decimal.Decimal
	Note   string
}

// Service owns the shift lifecycle and the movement ledger.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	cache     ShiftCachePort
	digest    DigestEnqueuer
	metrics   *observability.Metrics
	logger    *slog.Logger
	tolerance decimal.Decimal
	now       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cache ShiftCachePort, digest DigestEnqueuer, metrics *observability.Metrics, tolerance decimal.Decimal, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if tolerance.IsZero() {
		tolerance = shared.CashTolerance
	}
	return &Service{
		repo:      repo,
		audit:     audit,
		cache:     cache,
		digest:    digest,
		metrics:   metrics,
		logger:    logger,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// OpenShift opens the till for the actor's location. The uniqueness
// constraint on open shifts decides the winner under concurrency; the
// opening float, when positive, is posted as the first ledger entry in
// the same transaction.
func (s *Service) OpenShift(ctx context.Context, actor shared.Actor, in OpenShiftInput) (Shift, error) {
	if in.OpeningFloat.IsNegative() {
		return Shift{}, fmt.Errorf("cashshift: opening float must not be negative: %w", shared.ErrValidation)
	}

	now := s.now()
	shift := Shift{
		ID:           uuid.New(),
		TenantID:     actor.TenantID,
		LocationID:   actor.LocationID,
		OpenedBy:     actor.UserID,
		OpenedAt:     now,
		OpeningFloat: shared.RoundMoney(in.OpeningFloat),
		Status:       ShiftOpen,
		Notes:        in.Notes,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertShift(ctx, shift)
		if err != nil {
			return err
		}
		shift = created
		if shift.OpeningFloat.IsPositive() {
			_, err = tx.InsertMovement(ctx, Movement{
				ID:         uuid.New(),
				ShiftID:    shift.ID,
				TenantID:   actor.TenantID,
				LocationID: actor.LocationID,
				Type:       MovementOpeningFloat,
				Direction:  DirectionIn,
				Method:     shared.MethodCash,
				Amount:     shift.OpeningFloat,
				Origin:     ShiftOrigin(shift.ID),
				CreatedBy:  actor.UserID,
				CreatedAt:  now,
				Note:       "opening float",
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Shift{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, actor.TenantID, actor.LocationID, shift.ID); err != nil {
			s.logger.Warn("cache open shift", slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, actor, "shift.open", shift.ID, map[string]any{"opening_float": shift.OpeningFloat.String()})
	return shift, nil
}

// CloseShift reconciles and closes the till. Expected cash is recomputed
// from the raw movement list under a row lock, never read from a cached
// total, so movements posted out of order cannot cause drift.
func (s *Service) CloseShift(ctx context.Context, actor shared.Actor, in CloseShiftInput) (Shift, error) {
	if in.DeclaredCash.IsNegative() {
		return Shift{}, fmt.Errorf("cashshift: declared cash must not be negative: %w", shared.ErrValidation)
	}

	var closed Shift
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		shift, err := tx.GetShiftForUpdate(ctx, actor.TenantID, in.ShiftID)
		if err != nil {
			return err
		}
		if shift.Status != ShiftOpen {
			return ErrShiftNotOpen
		}

		in.DeclaredCash = shared.RoundMoney(in.DeclaredCash)
		cashIn, cashOut, err := tx.SumCash(ctx, shift.ID)
		if err != nil {
			return err
		}
		expected := cashIn.Sub(cashOut)
		diff := in.DeclaredCash.Sub(expected)
		if !shared.WithinTolerance(in.DeclaredCash, expected, s.tolerance) && in.Justification == "" {
			return ErrReconciliationRequired
		}

		now := s.now()
		if in.DeclaredCash.IsPositive() {
			_, err = tx.InsertMovement(ctx, Movement{
				ID:         uuid.New(),
				ShiftID:    shift.ID,
				TenantID:   actor.TenantID,
				LocationID: shift.LocationID,
				Type:       MovementClosing,
				Direction:  DirectionOut,
				Method:     shared.MethodCash,
				Amount:     in.DeclaredCash,
				Origin:     ShiftOrigin(shift.ID),
				CreatedBy:  actor.UserID,
				CreatedAt:  now,
				Note:       "closing sweep",
			})
			if err != nil {
				return err
			}
		}

		shift.Status = ShiftClosed
		shift.ClosedBy = &actor.UserID
		shift.ClosedAt = &now
		shift.DeclaredCash = &in.DeclaredCash
		shift.ExpectedCash = &expected
		shift.CashDiff = &diff
		shift.Justification = in.Justification
		if in.Notes != "" {
			if shift.Notes != "" {
				shift.Notes = shift.Notes + "\n" + in.Notes
			} else {
				shift.Notes = in.Notes
			}
		}
		if err := tx.UpdateShiftClose(ctx, shift); err != nil {
			return err
		}
		closed = shift
		return nil
	})
	if err != nil {
		return Shift{}, err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, actor.TenantID, closed.LocationID); err != nil {
			s.logger.Warn("invalidate shift cache", slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, actor, "shift.close", closed.ID, map[string]any{
		"declared": closed.DeclaredCash.String(),
		"expected": closed.ExpectedCash.String(),
		"diff":     closed.CashDiff.String(),
	})
	if s.digest != nil {
		if err := s.digest.EnqueueShiftDigest(ctx, actor.TenantID, closed.ID); err != nil {
			s.logger.Warn("enqueue shift digest", slog.Any("error", err))
		}
	}
	return closed, nil
}

// GetCurrentShift returns the OPEN shift for the actor's location,
// reading through the cache.
func (s *Service) GetCurrentShift(ctx context.Context, actor shared.Actor) (Shift, error) {
	if s.cache != nil {
		if id, err := s.cache.Get(ctx, actor.TenantID, actor.LocationID); err == nil {
			shift, err := s.repo.GetShift(ctx, actor.TenantID, id)
			if err == nil && shift.Status == ShiftOpen && shift.LocationID == actor.LocationID {
				return shift, nil
			}
			// Stale pointer: fall back to the database.
			_ = s.cache.Invalidate(ctx, actor.TenantID, actor.LocationID)
		}
	}

	shift, err := s.repo.FindOpenShift(ctx, actor.TenantID, actor.LocationID)
	if err != nil {
		return Shift{}, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, actor.TenantID, actor.LocationID, shift.ID)
	}
	return shift, nil
}

// PostManualMovement appends a supply or withdrawal to the open shift.
func (s *Service) PostManualMovement(ctx context.Context, actor shared.Actor, in ManualMovementInput) (Movement, error) {
	if in.Type != MovementSupply && in.Type != MovementWithdrawal {
		return Movement{}, ErrInvalidMovementType
	}
	if !in.Amount.IsPositive() {
		return Movement{}, ErrInvalidAmount
	}
	if in.Method == "" {
		in.Method = shared.MethodCash
	}
	if !in.Method.Known() || !in.Method.Immediate() {
		return Movement{}, fmt.Errorf("cashshift: manual movements require an immediate method: %w", shared.ErrValidation)
	}
	direction, ok := directionFor(in.Type)
	if !ok {
		return Movement{}, ErrInvalidMovementType
	}

	var mv Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		shift, err := tx.FindOpenShiftForUpdate(ctx, actor.TenantID, actor.LocationID)
		if err != nil {
			return err
		}
		mv, err = tx.InsertMovement(ctx, Movement{
			ID:         uuid.New(),
			ShiftID:    shift.ID,
			TenantID:   actor.TenantID,
			LocationID: actor.LocationID,
			Type:       in.Type,
			Direction:  direction,
			Method:     in.Method,
			Amount:     shared.RoundMoney(in.Amount),
			Origin:     ManualOrigin(),
			CreatedBy:  actor.UserID,
			CreatedAt:  s.now(),
			Note:       in.Note,
		})
		return err
	})
	if err != nil {
		return Movement{}, err
	}

	if s.metrics != nil {
		s.metrics.MovementsPosted.Inc()
	}
	s.recordAudit(ctx, actor, "movement.manual", mv.ID, map[string]any{
		"type": string(mv.Type), "amount": mv.Amount.String(),
	})
	return mv, nil
}

// PostSalePaymentTx posts the ledger entry for one immediate-settlement
// sale payment inside the caller's transaction. The open shift is locked
// so a concurrent close cannot slip between the check and the insert;
// cash sales cannot be recorded without a till.
func (s *Service) PostSalePaymentTx(ctx context.Context, tx pgx.Tx, actor shared.Actor, paymentID uuid.UUID, method shared.PaymentMethod, amount decimal.Decimal) (Movement, error) {
	if !amount.IsPositive() {
		return Movement{}, ErrInvalidAmount
	}
	bound := s.repo.Bind(tx)
	shift, err := bound.FindOpenShiftForUpdate(ctx, actor.TenantID, actor.LocationID)
	if err != nil {
		return Movement{}, err
	}
	return bound.InsertMovement(ctx, Movement{
		ID:         uuid.New(),
		ShiftID:    shift.ID,
		TenantID:   actor.TenantID,
		LocationID: actor.LocationID,
		Type:       MovementSalePayment,
		Direction:  DirectionIn,
		Method:     method,
		Amount:     shared.RoundMoney(amount),
		Origin:     SalePaymentOrigin(paymentID),
		CreatedBy:  actor.UserID,
		CreatedAt:  s.now(),
	})
}

// PostRefundTx posts the compensating OUT entry for a cash refund inside
// the caller's transaction. The original movements are never rewritten.
func (s *Service) PostRefundTx(ctx context.Context, tx pgx.Tx, actor shared.Actor, paymentID uuid.UUID, amount decimal.Decimal) (Movement, error) {
	if !amount.IsPositive() {
		return Movement{}, ErrInvalidAmount
	}
	bound := s.repo.Bind(tx)
	shift, err := bound.FindOpenShiftForUpdate(ctx, actor.TenantID, actor.LocationID)
	if err != nil {
		return Movement{}, err
	}
	return bound.InsertMovement(ctx, Movement{
		ID:         uuid.New(),
		ShiftID:    shift.ID,
		TenantID:   actor.TenantID,
		LocationID: actor.LocationID,
		Type:       MovementRefund,
		Direction:  DirectionOut,
		Method:     shared.MethodCash,
		Amount:     shared.RoundMoney(amount),
		Origin:     SalePaymentOrigin(paymentID),
		CreatedBy:  actor.UserID,
		CreatedAt:  s.now(),
		Note:       "sale cancellation refund",
	})
}

// ListMovements returns the shift ledger for display and audit.
func (s *Service) ListMovements(ctx context.Context, actor shared.Actor, shiftID uuid.UUID, limit, offset int) ([]Movement, error) {
	if _, err := s.repo.GetShift(ctx, actor.TenantID, shiftID); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, actor.TenantID, shiftID, limit, offset)
}

// ListShifts returns recent shifts for the actor's location.
func (s *Service) ListShifts(ctx context.Context, actor shared.Actor, limit, offset int) ([]Shift, error) {
	return s.repo.ListShifts(ctx, actor.TenantID, actor.LocationID, limit, offset)
}

// GetShift returns one shift by id.
func (s *Service) GetShift(ctx context.Context, actor shared.Actor, shiftID uuid.UUID) (Shift, error) {
	return s.repo.GetShift(ctx, actor.TenantID, shiftID)
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: actor.TenantID,
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "shift",
		EntityID: entityID.String(),
		Meta:     meta,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
