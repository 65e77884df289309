package cashshift

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/balcao-pos/balcao/internal/shared"
)

type memoryRepo struct {
	shifts    map[uuid.UUID]Shift
	movements []Movement
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{shifts: make(map[uuid.UUID]Shift)}
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Bind(tx pgx.Tx) TxRepository {
	return &memoryTx{repo: r}
}

func (r *memoryRepo) GetShift(ctx context.Context, tenantID, shiftID uuid.UUID) (Shift, error) {
	s, ok := r.shifts[shiftID]
	if !ok || s.TenantID != tenantID {
		return Shift{}, ErrShiftNotFound
	}
	return s, nil
}

func (r *memoryRepo) FindOpenShift(ctx context.Context, tenantID, locationID uuid.UUID) (Shift, error) {
	for _, s := range r.shifts {
		if s.TenantID == tenantID && s.LocationID == locationID && s.Status == ShiftOpen {
			return s, nil
		}
	}
	return Shift{}, ErrNoOpenShift
}

func (r *memoryRepo) ListShifts(ctx context.Context, tenantID, locationID uuid.UUID, limit, offset int) ([]Shift, error) {
	var out []Shift
	for _, s := range r.shifts {
		if s.TenantID == tenantID && s.LocationID == locationID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, tenantID, shiftID uuid.UUID, limit, offset int) ([]Movement, error) {
	var out []Movement
	for _, m := range r.movements {
		if m.TenantID == tenantID && m.ShiftID == shiftID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (tx *memoryTx) InsertShift(ctx context.Context, shift Shift) (Shift, error) {
	for _, s := range tx.repo.shifts {
		if s.TenantID == shift.TenantID && s.LocationID == shift.LocationID && s.Status == ShiftOpen {
			return Shift{}, ErrShiftAlreadyOpen
		}
	}
	tx.repo.shifts[shift.ID] = shift
	return shift, nil
}

func (tx *memoryTx) GetShiftForUpdate(ctx context.Context, tenantID, shiftID uuid.UUID) (Shift, error) {
	return tx.repo.GetShift(ctx, tenantID, shiftID)
}

func (tx *memoryTx) FindOpenShiftForUpdate(ctx context.Context, tenantID, locationID uuid.UUID) (Shift, error) {
	return tx.repo.FindOpenShift(ctx, tenantID, locationID)
}

func (tx *memoryTx) UpdateShiftClose(ctx context.Context, shift Shift) error {
	stored, ok := tx.repo.shifts[shift.ID]
	if !ok {
		return ErrShiftNotFound
	}
	if stored.Status != ShiftOpen {
		return ErrShiftNotOpen
	}
	tx.repo.shifts[shift.ID] = shift
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, mv Movement) (Movement, error) {
	tx.repo.movements = append(tx.repo.movements, mv)
	return mv, nil
}

func (tx *memoryTx) SumCash(ctx context.Context, shiftID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	in, out := decimal.Zero, decimal.Zero
	for _, m := range tx.repo.movements {
		if m.ShiftID != shiftID || m.Method != shared.MethodCash || m.Type == MovementClosing {
			continue
		}
		if m.Direction == DirectionIn {
			in = in.Add(m.Amount)
		} else {
			out = out.Add(m.Amount)
		}
	}
	return in, out, nil
}

type fakeDigest struct {
	enqueued []uuid.UUID
}

func (d *fakeDigest) EnqueueShiftDigest(ctx context.Context, tenantID, shiftID uuid.UUID) error {
	d.enqueued = append(d.enqueued, shiftID)
	return nil
}

func testActor() shared.Actor {
	return shared.Actor{TenantID: uuid.New(), LocationID: uuid.New(), UserID: uuid.New()}
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestOpenCloseBalancedDay(t *testing.T) {
	repo := newMemoryRepo()
	digest := &fakeDigest{}
	svc := NewService(repo, nil, nil, digest, nil, decimal.Zero, nil)
	actor := testActor()
	ctx := context.Background()

	shift, err := svc.OpenShift(ctx, actor, OpenShiftInput{OpeningFloat: money("200.00")})
	require.NoError(t, err)
	require.Equal(t, ShiftOpen, shift.Status)

	_, err = svc.PostSalePaymentTx(ctx, nil, actor, uuid.New(), shared.MethodCash, money("150.00"))
	require.NoError(t, err)

	_, err = svc.PostManualMovement(ctx, actor, ManualMovementInput{
		Type: MovementWithdrawal, Amount: money("50.00"), Note: "sangria",
	})
	require.NoError(t, err)

	closed, err := svc.CloseShift(ctx, actor, CloseShiftInput{ShiftID: shift.ID, DeclaredCash: money("300.00")})
	require.NoError(t, err)
	require.Equal(t, ShiftClosed, closed.Status)
	require.True(t, closed.ExpectedCash.Equal(money("300.00")), "expected %s", closed.ExpectedCash)
	require.True(t, closed.CashDiff.IsZero())
	require.Equal(t, []uuid.UUID{shift.ID}, digest.enqueued)
}

func TestCloseShortageNeedsJustification(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, money("0.01"), nil)
	actor := testActor()
	ctx := context.Background()

	shift, err := svc.OpenShift(ctx, actor, OpenShiftInput{OpeningFloat: money("100.00")})
	require.NoError(t, err)

	_, err = svc.CloseShift(ctx, actor, CloseShiftInput{ShiftID: shift.ID, DeclaredCash: money("90.00")})
	require.ErrorIs(t, err, ErrReconciliationRequired)

	closed, err := svc.CloseShift(ctx, actor, CloseShiftInput{
		ShiftID: shift.ID, DeclaredCash: money("90.00"), Justification: "nota de 10 rasgada, descartada",
	})
	require.NoError(t, err)
	require.True(t, closed.CashDiff.Equal(money("-10.00")), "diff %s", closed.CashDiff)
}

func TestCloseWithinToleranceNoJustification(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, money("0.01"), nil)
	actor := testActor()
	ctx := context.Background()

	shift, err := svc.OpenShift(ctx, actor, OpenShiftInput{OpeningFloat: money("100.00")})
	require.NoError(t, err)

	closed, err := svc.CloseShift(ctx, actor, CloseShiftInput{ShiftID: shift.ID, DeclaredCash: money("100.01")})
	require.NoError(t, err)
	require.True(t, closed.CashDiff.Equal(money("0.01")))
}

func TestCloseShiftPersistsNotes(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, decimal.Zero, nil)
	actor := testActor()
	ctx := context.Background()

	shift, err := svc.OpenShift(ctx, actor, OpenShiftInput{OpeningFloat: money("100.00")})
	require.NoError(t, err)

	closed, err := svc.CloseShift(ctx, actor, CloseShiftInput{
		ShiftID: shift.ID, DeclaredCash: money("100.00"), Notes: "tampa da gaveta emperrada",
	})
	require.NoError(t, err)
	require.Equal(t, "tampa da gaveta emperrada", closed.Notes)
	require.Equal(t, "tampa da gaveta emperrada", repo.shifts[shift.ID].Notes)
}

func TestCloseShiftAppendsToOpeningNotes(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, decimal.Zero, nil)
	actor := testActor()
	ctx := context.Background()

	shift, err := svc.OpenShift(ctx, actor, OpenShiftInput{OpeningFloat: money("100.00"), Notes: "caixa 2"})
	require.NoError(t, err)

	closed, err := svc.CloseShift(ctx, actor, CloseShiftInput{
		ShiftID: shift.ID, DeclaredCash: money("100.00"), Notes: "troco conferido",
	})
	require.NoError(t, err)
	require.Equal(t, "caixa 2\ntroco conferido", closed.Notes)
}

func TestClosingSweepExcludedFromExpected(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, decimal.Zero, nil)
	actor := testActor()
	ctx := context.Background()

	shift, err := svc.OpenShift(ctx, actor, OpenShiftInput{OpeningFloat: money("50.00")})
	require.NoError(t, err)

	closed, err := svc.CloseShift(ctx, actor, CloseShiftInput{ShiftID: shift.ID, DeclaredCash: money("50.00")})
	require.NoError(t, err)
	require.True(t, closed.ExpectedCash.Equal(money("50.00")))

	var sweep int
	for _, m := range repo.movements {
		if m.Type == MovementClosing {
			sweep++
			require.Equal(t, DirectionOut, m.Direction)
			require.True(t, m.Amount.Equal(money("50.00")))
		}
	}
	require.Equal(t, 1, sweep)
}

func TestSecondOpenRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, decimal.Zero, nil)
	actor := testActor()
	ctx := context.Background()

	_, err := svc.OpenShift(ctx, actor, OpenShiftInput{OpeningFloat: money("100.00")})
	require.NoError(t, err)

	_, err = svc.OpenShift(ctx, actor, OpenShiftInput{OpeningFloat: money("100.00")})
	require.ErrorIs(t, err, ErrShiftAlreadyOpen)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestManualMovementRequiresOpenShift(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, decimal.Zero, nil)
	actor := testActor()

	_, err := svc.PostManualMovement(context.Background(), actor, ManualMovementInput{
		Type: MovementSupply, Amount: money("20.00"),
	})
	require.ErrorIs(t, err, ErrNoOpenShift)
}

func TestManualMovementRejectsOtherTypes(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, decimal.Zero, nil)
	actor := testActor()
	ctx := context.Background()

	_, err := svc.OpenShift(ctx, actor, OpenShiftInput{OpeningFloat: money("10.00")})
	require.NoError(t, err)

	for _, typ := range []MovementType{MovementOpeningFloat, MovementSalePayment, MovementRefund, MovementClosing} {
		_, err := svc.PostManualMovement(ctx, actor, ManualMovementInput{Type: typ, Amount: money("5.00")})
		require.ErrorIs(t, err, ErrInvalidMovementType, "type %s", typ)
	}

	_, err = svc.PostManualMovement(ctx, actor, ManualMovementInput{Type: MovementSupply, Amount: money("-5.00")})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSalePaymentRequiresOpenShift(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, decimal.Zero, nil)
	actor := testActor()

	_, err := svc.PostSalePaymentTx(context.Background(), nil, actor, uuid.New(), shared.MethodCash, money("30.00"))
	require.ErrorIs(t, err, ErrNoOpenShift)
}

func TestRefundPostsCompensatingEntry(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, decimal.Zero, nil)
	actor := testActor()
	ctx := context.Background()

	shift, err := svc.OpenShift(ctx, actor, OpenShiftInput{OpeningFloat: money("100.00")})
	require.NoError(t, err)
	paymentID := uuid.New()
	_, err = svc.PostSalePaymentTx(ctx, nil, actor, paymentID, shared.MethodCash, money("40.00"))
	require.NoError(t, err)

	mv, err := svc.PostRefundTx(ctx, nil, actor, paymentID, money("40.00"))
	require.NoError(t, err)
	require.Equal(t, MovementRefund, mv.Type)
	require.Equal(t, DirectionOut, mv.Direction)

	closed, err := svc.CloseShift(ctx, actor, CloseShiftInput{ShiftID: shift.ID, DeclaredCash: money("100.00")})
	require.NoError(t, err)
	require.True(t, closed.ExpectedCash.Equal(money("100.00")))
}

func TestGetCurrentShiftFallsBackOnStaleCache(t *testing.T) {
	repo := newMemoryRepo()
	cache := &staleCache{pointer: uuid.New()} // points at a shift that does not exist
	svc := NewService(repo, nil, cache, nil, nil, decimal.Zero, nil)
	actor := testActor()
	ctx := context.Background()

	shift, err := svc.OpenShift(ctx, actor, OpenShiftInput{OpeningFloat: money("10.00")})
	require.NoError(t, err)
	cache.pointer = uuid.New() // corrupt the pointer again

	got, err := svc.GetCurrentShift(ctx, actor)
	require.NoError(t, err)
	require.Equal(t, shift.ID, got.ID)
}

type staleCache struct {
	pointer uuid.UUID
}

func (c *staleCache) Get(ctx context.Context, tenantID, locationID uuid.UUID) (uuid.UUID, error) {
	return c.pointer, nil
}

func (c *staleCache) Set(ctx context.Context, tenantID, locationID, shiftID uuid.UUID) error {
	c.pointer = shiftID
	return nil
}

func (c *staleCache) Invalidate(ctx context.Context, tenantID, locationID uuid.UUID) error {
	c.pointer = uuid.Nil
	return nil
}

func TestCloseTwiceRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, decimal.Zero, nil)
	actor := testActor()
	ctx := context.Background()

	shift, err := svc.OpenShift(ctx, actor, OpenShiftInput{OpeningFloat: money("10.00")})
	require.NoError(t, err)
	_, err = svc.CloseShift(ctx, actor, CloseShiftInput{ShiftID: shift.ID, DeclaredCash: money("10.00")})
	require.NoError(t, err)

	_, err = svc.CloseShift(ctx, actor, CloseShiftInput{ShiftID: shift.ID, DeclaredCash: money("10.00")})
	require.ErrorIs(t, err, ErrShiftNotOpen)
}

func TestWithNowControlsTimestamps(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, decimal.Zero, nil)
	fixed := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return fixed })
	actor := testActor()

	shift, err := svc.OpenShift(context.Background(), actor, OpenShiftInput{OpeningFloat: money("10.00")})
	require.NoError(t, err)
	require.Equal(t, fixed, shift.OpenedAt)
}
