package stock

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/balcao-pos/balcao/internal/shared"
)

type memoryRepo struct {
	products    map[uuid.UUID]ProductRow
	movements   []Movement
	adjustments map[uuid.UUID]Adjustment
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:    make(map[uuid.UUID]ProductRow),
		adjustments: make(map[uuid.UUID]Adjustment),
	}
}

func (r *memoryRepo) addProduct(qty, cost string) uuid.UUID {
	id := uuid.New()
	r.products[id] = ProductRow{
		ID:              id,
		StockControlled: true,
		StockQty:        decimal.RequireFromString(qty),
		UnitCost:        decimal.RequireFromString(cost),
	}
	return id
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

func (r *memoryRepo) GetAdjustment(ctx context.Context, tenantID, adjustmentID uuid.UUID) (Adjustment, error) {
	adj, ok := r.adjustments[adjustmentID]
	if !ok {
		return Adjustment{}, ErrAdjustmentNotFound
	}
	return adj, nil
}

func (r *memoryRepo) ListAdjustments(ctx context.Context, tenantID uuid.UUID, status AdjustmentStatus, limit, offset int) ([]Adjustment, error) {
	var out []Adjustment
	for _, a := range r.adjustments {
		if status == "" || a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, tenantID, productID uuid.UUID, limit, offset int) ([]Movement, error) {
	var out []Movement
	for _, m := range r.movements {
		if productID == uuid.Nil || m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetProductForUpdate(ctx context.Context, tenantID, productID uuid.UUID) (ProductRow, error) {
	p, ok := tx.repo.products[productID]
	if !ok {
		return ProductRow{}, ErrProductNotFound
	}
	return p, nil
}

func (tx *memoryTx) UpdateProductQty(ctx context.Context, tenantID, productID uuid.UUID, qty decimal.Decimal) error {
	p := tx.repo.products[productID]
	p.StockQty = qty
	tx.repo.products[productID] = p
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, mv Movement) (Movement, error) {
	tx.repo.movements = append(tx.repo.movements, mv)
	return mv, nil
}

func (tx *memoryTx) InsertAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error) {
	tx.repo.adjustments[adj.ID] = adj
	return adj, nil
}

func (tx *memoryTx) GetAdjustmentForUpdate(ctx context.Context, tenantID, adjustmentID uuid.UUID) (Adjustment, error) {
	return tx.repo.GetAdjustment(ctx, tenantID, adjustmentID)
}

func (tx *memoryTx) UpdateAdjustmentDecision(ctx context.Context, adj Adjustment) error {
	stored, ok := tx.repo.adjustments[adj.ID]
	if !ok {
		return ErrAdjustmentNotFound
	}
	if stored.Status != AdjustmentPending {
		return ErrNotPending
	}
	tx.repo.adjustments[adj.ID] = adj
	return nil
}

func testActor() shared.Actor {
	return shared.Actor{TenantID: uuid.New(), LocationID: uuid.New(), UserID: uuid.New()}
}

func qty(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func defaultPolicy() Policy {
	return Policy{
		AutoApproveLimit: qty("500.00"),
		ReasonWhitelist:  []string{"CYCLE_COUNT", "BREAKAGE"},
		MinJustification: 10,
	}
}

func TestRecordMovementUpdatesQuantity(t *testing.T) {
	repo := newMemoryRepo()
	productID := repo.addProduct("10", "25.00")
	eng := NewEngine(repo, nil, nil, nil, defaultPolicy(), nil)
	actor := testActor()

	mv, err := eng.RecordMovement(context.Background(), actor, MovementInput{
		ProductID: productID, Type: MovementPurchase, Qty: qty("5"),
	})
	require.NoError(t, err)
	require.Equal(t, MovementPurchase, mv.Type)
	require.True(t, repo.products[productID].StockQty.Equal(qty("15")))
}

func TestDecrementBelowZeroRejected(t *testing.T) {
	repo := newMemoryRepo()
	productID := repo.addProduct("3", "25.00")
	eng := NewEngine(repo, nil, nil, nil, defaultPolicy(), nil)
	actor := testActor()

	_, err := eng.RecordMovement(context.Background(), actor, MovementInput{
		ProductID: productID, Type: MovementLoss, Qty: qty("-4"),
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.True(t, repo.products[productID].StockQty.Equal(qty("3")), "failed movement must not change stock")
	require.Empty(t, repo.movements)
}

func TestNegativeStockAllowedByPolicy(t *testing.T) {
	repo := newMemoryRepo()
	productID := repo.addProduct("3", "25.00")
	policy := defaultPolicy()
	policy.AllowNegative = true
	eng := NewEngine(repo, nil, nil, nil, policy, nil)

	_, err := eng.RecordMovement(context.Background(), testActor(), MovementInput{
		ProductID: productID, Type: MovementLoss, Qty: qty("-4"),
	})
	require.NoError(t, err)
	require.True(t, repo.products[productID].StockQty.Equal(qty("-1")))
}

func TestZeroQuantityRejected(t *testing.T) {
	repo := newMemoryRepo()
	productID := repo.addProduct("3", "25.00")
	eng := NewEngine(repo, nil, nil, nil, defaultPolicy(), nil)

	_, err := eng.RecordMovement(context.Background(), testActor(), MovementInput{
		ProductID: productID, Type: MovementPurchase, Qty: decimal.Zero,
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestTransferNetsToZero(t *testing.T) {
	repo := newMemoryRepo()
	productID := repo.addProduct("20", "10.00")
	eng := NewEngine(repo, nil, nil, nil, defaultPolicy(), nil)
	actor := testActor()

	out, in, err := eng.CreateTransfer(context.Background(), actor, TransferInput{
		ProductID:        productID,
		SourceLocationID: uuid.New(),
		TargetLocationID: uuid.New(),
		Qty:              qty("6"),
	})
	require.NoError(t, err)
	require.Equal(t, MovementTransferOut, out.Type)
	require.Equal(t, MovementTransferIn, in.Type)
	require.Equal(t, out.RefID, in.RefID, "pair must share a ref id")
	require.True(t, out.Qty.Add(in.Qty).IsZero())
	// The company-wide pool is untouched by a transfer.
	require.True(t, repo.products[productID].StockQty.Equal(qty("20")))
}

func TestTransferValidation(t *testing.T) {
	repo := newMemoryRepo()
	productID := repo.addProduct("5", "10.00")
	eng := NewEngine(repo, nil, nil, nil, defaultPolicy(), nil)
	actor := testActor()
	loc := uuid.New()

	_, _, err := eng.CreateTransfer(context.Background(), actor, TransferInput{
		ProductID: productID, SourceLocationID: loc, TargetLocationID: loc, Qty: qty("1"),
	})
	require.ErrorIs(t, err, ErrSameLocation)

	_, _, err = eng.CreateTransfer(context.Background(), actor, TransferInput{
		ProductID: productID, SourceLocationID: loc, TargetLocationID: uuid.New(), Qty: qty("9"),
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestAdjustmentBelowLimitAutoApproves(t *testing.T) {
	repo := newMemoryRepo()
	productID := repo.addProduct("100", "4.00") // 20 × 4.00 = 80.00 < 500.00
	eng := NewEngine(repo, nil, nil, nil, defaultPolicy(), nil)
	actor := testActor()

	adj, err := eng.CreateAdjustment(context.Background(), actor, AdjustmentInput{
		ProductID:     productID,
		Qty:           qty("-20"),
		ReasonCode:    "damage",
		Justification: "caixa molhada no estoque",
	})
	require.NoError(t, err)
	require.Equal(t, AdjustmentAutoApproved, adj.Status)
	require.True(t, repo.products[productID].StockQty.Equal(qty("80")))
	require.Len(t, repo.movements, 1)
	require.Equal(t, MovementAdjustment, repo.movements[0].Type)
}

func TestAdjustmentAboveLimitStaysPending(t *testing.T) {
	repo := newMemoryRepo()
	productID := repo.addProduct("100", "40.00") // 20 × 40.00 = 800.00 > 500.00
	eng := NewEngine(repo, nil, nil, nil, defaultPolicy(), nil)
	actor := testActor()

	adj, err := eng.CreateAdjustment(context.Background(), actor, AdjustmentInput{
		ProductID:     productID,
		Qty:           qty("-20"),
		ReasonCode:    "damage",
		Justification: "prateleira desabou no depósito",
	})
	require.NoError(t, err)
	require.Equal(t, AdjustmentPending, adj.Status)
	require.True(t, adj.Value.Equal(qty("800.00")))
	// No stock change before approval.
	require.True(t, repo.products[productID].StockQty.Equal(qty("100")))
	require.Empty(t, repo.movements)
}

func TestWhitelistedReasonAutoApprovesAboveLimit(t *testing.T) {
	repo := newMemoryRepo()
	productID := repo.addProduct("100", "40.00")
	eng := NewEngine(repo, nil, nil, nil, defaultPolicy(), nil)
	actor := testActor()

	adj, err := eng.CreateAdjustment(context.Background(), actor, AdjustmentInput{
		ProductID:     productID,
		Qty:           qty("-20"),
		ReasonCode:    "cycle_count",
		Justification: "contagem cíclica trimestral",
	})
	require.NoError(t, err)
	require.Equal(t, AdjustmentAutoApproved, adj.Status)
	require.Equal(t, "CYCLE_COUNT", adj.ReasonCode)
}

func TestJustificationTooShort(t *testing.T) {
	repo := newMemoryRepo()
	productID := repo.addProduct("100", "4.00")
	eng := NewEngine(repo, nil, nil, nil, defaultPolicy(), nil)

	_, err := eng.CreateAdjustment(context.Background(), testActor(), AdjustmentInput{
		ProductID: productID, Qty: qty("-1"), ReasonCode: "damage", Justification: "curto",
	})
	require.ErrorIs(t, err, ErrJustificationTooShort)
}

func TestApprovePostsMovementAtomically(t *testing.T) {
	repo := newMemoryRepo()
	productID := repo.addProduct("100", "40.00")
	eng := NewEngine(repo, nil, nil, nil, defaultPolicy(), nil)
	actor := testActor()

	adj, err := eng.CreateAdjustment(context.Background(), actor, AdjustmentInput{
		ProductID: productID, Qty: qty("-20"), ReasonCode: "damage", Justification: "prateleira desabou no depósito",
	})
	require.NoError(t, err)
	require.Equal(t, AdjustmentPending, adj.Status)

	approved, err := eng.Approve(context.Background(), actor, adj.ID)
	require.NoError(t, err)
	require.Equal(t, AdjustmentApproved, approved.Status)
	require.NotNil(t, approved.ApproverID)
	require.True(t, repo.products[productID].StockQty.Equal(qty("80")))
	require.Len(t, repo.movements, 1)

	// A second decision is rejected.
	_, err = eng.Approve(context.Background(), actor, adj.ID)
	require.ErrorIs(t, err, ErrNotPending)
	_, err = eng.Reject(context.Background(), actor, adj.ID, "late")
	require.ErrorIs(t, err, ErrNotPending)
}

func TestApproveInsufficientStockLeavesPending(t *testing.T) {
	repo := newMemoryRepo()
	productID := repo.addProduct("100", "40.00")
	eng := NewEngine(repo, nil, nil, nil, defaultPolicy(), nil)
	actor := testActor()

	adj, err := eng.CreateAdjustment(context.Background(), actor, AdjustmentInput{
		ProductID: productID, Qty: qty("-20"), ReasonCode: "damage", Justification: "prateleira desabou no depósito",
	})
	require.NoError(t, err)

	// Stock drained between request and decision.
	p := repo.products[productID]
	p.StockQty = qty("5")
	repo.products[productID] = p

	_, err = eng.Approve(context.Background(), actor, adj.ID)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, AdjustmentPending, repo.adjustments[adj.ID].Status)
}

func TestRejectNeverTouchesStock(t *testing.T) {
	repo := newMemoryRepo()
	productID := repo.addProduct("100", "40.00")
	eng := NewEngine(repo, nil, nil, nil, defaultPolicy(), nil)
	actor := testActor()

	adj, err := eng.CreateAdjustment(context.Background(), actor, AdjustmentInput{
		ProductID: productID, Qty: qty("-20"), ReasonCode: "damage", Justification: "prateleira desabou no depósito",
	})
	require.NoError(t, err)

	rejected, err := eng.Reject(context.Background(), actor, adj.ID, "sem evidência")
	require.NoError(t, err)
	require.Equal(t, AdjustmentRejected, rejected.Status)
	require.Equal(t, "sem evidência", rejected.RejectReason)
	require.True(t, repo.products[productID].StockQty.Equal(qty("100")))
	require.Empty(t, repo.movements)
}
