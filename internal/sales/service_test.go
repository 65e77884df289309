package sales

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/balcao-pos/balcao/internal/cashshift"
	"github.com/balcao-pos/balcao/internal/catalog"
	"github.com/balcao-pos/balcao/internal/quotes"
	"github.com/balcao-pos/balcao/internal/shared"
	"github.com/balcao-pos/balcao/internal/stock"
)

// memoryRepo stages writes per transaction and discards them when the
// callback fails, mirroring the rollback behavior of the real thing.
type memoryRepo struct {
	sales       map[uuid.UUID]Sale
	items       map[uuid.UUID][]Item
	payments    map[uuid.UUID][]Payment
	commissions []Commission
	stockQty    map[uuid.UUID]decimal.Decimal
	stockMoves  []stock.Movement
	ledger      []ledgerEntry
	shiftOpen   bool
	converted   map[uuid.UUID]bool
	quoteStatus map[uuid.UUID]quotes.Status
}

type ledgerEntry struct {
	paymentID uuid.UUID
	method    shared.PaymentMethod
	amount    decimal.Decimal
	refund    bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		sales:       make(map[uuid.UUID]Sale),
		items:       make(map[uuid.UUID][]Item),
		payments:    make(map[uuid.UUID][]Payment),
		stockQty:    make(map[uuid.UUID]decimal.Decimal),
		converted:   make(map[uuid.UUID]bool),
		quoteStatus: make(map[uuid.UUID]quotes.Status),
		shiftOpen:   true,
	}
}

type memoryTx struct {
	repo        *memoryRepo
	sales       map[uuid.UUID]Sale
	items       map[uuid.UUID][]Item
	payments    map[uuid.UUID][]Payment
	commissions []Commission
	stockQty    map[uuid.UUID]decimal.Decimal
	stockMoves  []stock.Movement
	ledger      []ledgerEntry
	converted   []uuid.UUID
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{
		repo:     r,
		sales:    make(map[uuid.UUID]Sale),
		items:    make(map[uuid.UUID][]Item),
		payments: make(map[uuid.UUID][]Payment),
		stockQty: make(map[uuid.UUID]decimal.Decimal),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, s := range tx.sales {
		r.sales[id] = s
	}
	for id, items := range tx.items {
		r.items[id] = append(r.items[id], items...)
	}
	for id, payments := range tx.payments {
		r.payments[id] = append(r.payments[id], payments...)
	}
	r.commissions = append(r.commissions, tx.commissions...)
	for id, q := range tx.stockQty {
		r.stockQty[id] = q
	}
	r.stockMoves = append(r.stockMoves, tx.stockMoves...)
	r.ledger = append(r.ledger, tx.ledger...)
	for _, id := range tx.converted {
		r.converted[id] = true
		r.quoteStatus[id] = quotes.StatusConverted
	}
	return nil
}

func (r *memoryRepo) GetSale(ctx context.Context, tenantID, saleID uuid.UUID) (Sale, error) {
	s, ok := r.sales[saleID]
	if !ok {
		return Sale{}, ErrSaleNotFound
	}
	s.Items = r.items[saleID]
	s.Payments = r.payments[saleID]
	return s, nil
}

func (r *memoryRepo) ListSales(ctx context.Context, tenantID, locationID uuid.UUID, limit, offset int) ([]Sale, error) {
	var out []Sale
	for _, s := range r.sales {
		if s.LocationID == locationID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (tx *memoryTx) InsertSale(ctx context.Context, sale Sale) error {
	tx.sales[sale.ID] = sale
	return nil
}

func (tx *memoryTx) InsertItem(ctx context.Context, item Item) error {
	tx.items[item.SaleID] = append(tx.items[item.SaleID], item)
	return nil
}

func (tx *memoryTx) InsertPayment(ctx context.Context, payment Payment) error {
	tx.payments[payment.SaleID] = append(tx.payments[payment.SaleID], payment)
	return nil
}

func (tx *memoryTx) InsertCommission(ctx context.Context, c Commission) error {
	tx.commissions = append(tx.commissions, c)
	return nil
}

func (tx *memoryTx) GetSaleForUpdate(ctx context.Context, tenantID, saleID uuid.UUID) (Sale, error) {
	return tx.repo.GetSale(ctx, tenantID, saleID)
}

func (tx *memoryTx) UpdateSaleCancel(ctx context.Context, sale Sale) error {
	stored, ok := tx.repo.sales[sale.ID]
	if !ok {
		return ErrSaleNotFound
	}
	if stored.Status != StatusCompleted {
		return ErrSaleNotCompleted
	}
	sale.Items = nil
	sale.Payments = nil
	tx.sales[sale.ID] = sale
	return nil
}

func (tx *memoryTx) currentQty(productID uuid.UUID) decimal.Decimal {
	if q, ok := tx.stockQty[productID]; ok {
		return q
	}
	return tx.repo.stockQty[productID]
}

func (tx *memoryTx) ApplyStock(ctx context.Context, actor shared.Actor, in stock.MovementInput) (stock.Movement, error) {
	newQty := tx.currentQty(in.ProductID).Add(in.Qty)
	if newQty.IsNegative() {
		return stock.Movement{}, stock.ErrInsufficientStock
	}
	tx.stockQty[in.ProductID] = newQty
	mv := stock.Movement{ID: uuid.New(), ProductID: in.ProductID, Type: in.Type, Qty: in.Qty, RefModule: in.RefModule, RefID: in.RefID}
	tx.stockMoves = append(tx.stockMoves, mv)
	return mv, nil
}

func (tx *memoryTx) PostSalePayment(ctx context.Context, actor shared.Actor, paymentID uuid.UUID, method shared.PaymentMethod, amount decimal.Decimal) error {
	if !tx.repo.shiftOpen {
		return cashshift.ErrNoOpenShift
	}
	tx.ledger = append(tx.ledger, ledgerEntry{paymentID: paymentID, method: method, amount: amount})
	return nil
}

func (tx *memoryTx) PostRefund(ctx context.Context, actor shared.Actor, paymentID uuid.UUID, amount decimal.Decimal) error {
	if !tx.repo.shiftOpen {
		return cashshift.ErrNoOpenShift
	}
	tx.ledger = append(tx.ledger, ledgerEntry{paymentID: paymentID, method: shared.MethodCash, amount: amount, refund: true})
	return nil
}

func (tx *memoryTx) MarkQuoteConverted(ctx context.Context, tenantID, quoteID uuid.UUID) error {
	if tx.repo.quoteStatus[quoteID] != quotes.StatusApproved {
		return quotes.ErrQuoteNotApproved
	}
	tx.converted = append(tx.converted, quoteID)
	return nil
}

type fakeCatalog struct {
	products  map[uuid.UUID]catalog.ProductInfo
	customers map[uuid.UUID]catalog.CustomerInfo
	rate      decimal.Decimal
}

func (c *fakeCatalog) GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (catalog.ProductInfo, error) {
	p, ok := c.products[productID]
	if !ok {
		return catalog.ProductInfo{}, catalog.ErrProductNotFound
	}
	return p, nil
}

func (c *fakeCatalog) GetCustomer(ctx context.Context, tenantID, customerID uuid.UUID) (catalog.CustomerInfo, error) {
	cu, ok := c.customers[customerID]
	if !ok {
		return catalog.CustomerInfo{}, catalog.ErrCustomerNotFound
	}
	return cu, nil
}

func (c *fakeCatalog) GetSeller(ctx context.Context, tenantID, userID uuid.UUID) (catalog.SellerInfo, error) {
	return catalog.SellerInfo{ID: userID, CommissionRate: c.rate}, nil
}

type fakeQuotes struct {
	quotes map[uuid.UUID]quotes.Quote
}

func (q *fakeQuotes) Get(ctx context.Context, tenantID, quoteID uuid.UUID) (quotes.Quote, error) {
	quote, ok := q.quotes[quoteID]
	if !ok {
		return quotes.Quote{}, quotes.ErrQuoteNotFound
	}
	return quote, nil
}

type fixture struct {
	repo    *memoryRepo
	catalog *fakeCatalog
	quotes  *fakeQuotes
	svc     *Service
	actor   shared.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemoryRepo()
	cat := &fakeCatalog{
		products:  make(map[uuid.UUID]catalog.ProductInfo),
		customers: make(map[uuid.UUID]catalog.CustomerInfo),
	}
	fq := &fakeQuotes{quotes: make(map[uuid.UUID]quotes.Quote)}
	svc := NewService(repo, cat, fq, nil, nil, Policy{
		CancelWindow:        7 * 24 * time.Hour,
		CancelApprovalLimit: money("300.00"),
		Tolerance:           money("0.01"),
	}, nil)
	return &fixture{
		repo:    repo,
		catalog: cat,
		quotes:  fq,
		svc:     svc,
		actor:   shared.Actor{TenantID: uuid.New(), LocationID: uuid.New(), UserID: uuid.New()},
	}
}

func (f *fixture) addProduct(price, qty string, controlled bool) uuid.UUID {
	id := uuid.New()
	f.catalog.products[id] = catalog.ProductInfo{
		ID: id, Name: "produto", Active: true, StockControlled: controlled,
		StockQty: money(qty), UnitPrice: money(price),
	}
	f.repo.stockQty[id] = money(qty)
	return id
}

func (f *fixture) addCustomer() uuid.UUID {
	id := uuid.New()
	f.catalog.customers[id] = catalog.CustomerInfo{ID: id, Name: "cliente", Active: true}
	return id
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreateSaleHappyPath(t *testing.T) {
	f := newFixture(t)
	f.catalog.rate = money("0.03")
	productID := f.addProduct("50.00", "10", true)

	sale, err := f.svc.CreateSale(context.Background(), f.actor, CreateSaleInput{
		Items: []ItemInput{{ProductID: productID, Qty: money("2"), UnitPrice: money("50.00")}},
		Payments: []PaymentInput{
			{Method: shared.MethodCash, Amount: money("60.00")},
			{Method: shared.MethodPix, Amount: money("40.00")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, sale.Status)
	require.True(t, sale.Subtotal.Equal(money("100.00")))
	require.True(t, sale.Total.Equal(money("100.00")))

	// Stock decremented once, by the sold quantity.
	require.True(t, f.repo.stockQty[productID].Equal(money("8")))
	require.Len(t, f.repo.stockMoves, 1)
	require.Equal(t, stock.MovementSaleConsumption, f.repo.stockMoves[0].Type)
	require.Equal(t, "sale", f.repo.stockMoves[0].RefModule)
	require.Equal(t, sale.ID, f.repo.stockMoves[0].RefID)

	// Both immediate payments hit the ledger.
	require.Len(t, f.repo.ledger, 2)

	// Commission accrued at the seller's rate.
	require.Len(t, f.repo.commissions, 1)
	require.True(t, f.repo.commissions[0].Amount.Equal(money("3.00")))
}

func TestCreateSaleLineDiscounts(t *testing.T) {
	f := newFixture(t)
	productID := f.addProduct("30.00", "10", true)

	sale, err := f.svc.CreateSale(context.Background(), f.actor, CreateSaleInput{
		Items: []ItemInput{
			{ProductID: productID, Qty: money("3"), UnitPrice: money("30.00"), Discount: money("10.00")},
		},
		Discount: money("5.00"),
		Payments: []PaymentInput{{Method: shared.MethodDebit, Amount: money("75.00")}},
	})
	require.NoError(t, err)
	require.True(t, sale.Subtotal.Equal(money("80.00")), "subtotal %s", sale.Subtotal)
	require.True(t, sale.Total.Equal(money("75.00")))
}

func TestCreateSaleValidation(t *testing.T) {
	f := newFixture(t)
	productID := f.addProduct("50.00", "10", true)

	_, err := f.svc.CreateSale(context.Background(), f.actor, CreateSaleInput{
		Payments: []PaymentInput{{Method: shared.MethodCash, Amount: money("10.00")}},
	})
	require.ErrorIs(t, err, ErrNoItems)

	_, err = f.svc.CreateSale(context.Background(), f.actor, CreateSaleInput{
		Items: []ItemInput{{ProductID: productID, Qty: money("1"), UnitPrice: money("50.00")}},
	})
	require.ErrorIs(t, err, ErrNoPayments)

	_, err = f.svc.CreateSale(context.Background(), f.actor, CreateSaleInput{
		Items:    []ItemInput{{ProductID: productID, Qty: money("1"), UnitPrice: money("50.00")}},
		Payments: []PaymentInput{{Method: shared.MethodCash, Amount: money("49.00")}},
	})
	require.ErrorIs(t, err, ErrPaymentMismatch)
	require.ErrorIs(t, err, shared.ErrConflict)

	require.Empty(t, f.repo.sales, "no sale may persist after validation failures")
}

func TestCreateSaleInactiveProduct(t *testing.T) {
	f := newFixture(t)
	productID := f.addProduct("50.00", "10", true)
	p := f.catalog.products[productID]
	p.Active = false
	f.catalog.products[productID] = p

	_, err := f.svc.CreateSale(context.Background(), f.actor, CreateSaleInput{
		Items:    []ItemInput{{ProductID: productID, Qty: money("1"), UnitPrice: money("50.00")}},
		Payments: []PaymentInput{{Method: shared.MethodCash, Amount: money("50.00")}},
	})
	require.ErrorIs(t, err, ErrProductInactive)
}

func TestCreateSaleInsufficientStockRollsBack(t *testing.T) {
	f := newFixture(t)
	okProduct := f.addProduct("10.00", "100", true)
	scarce := f.addProduct("10.00", "1", true)

	_, err := f.svc.CreateSale(context.Background(), f.actor, CreateSaleInput{
		Items: []ItemInput{
			{ProductID: okProduct, Qty: money("2"), UnitPrice: money("10.00")},
			{ProductID: scarce, Qty: money("5"), UnitPrice: money("10.00")},
		},
		Payments: []PaymentInput{{Method: shared.MethodCash, Amount: money("70.00")}},
	})
	require.ErrorIs(t, err, stock.ErrInsufficientStock)

	// Nothing persisted, including the decrement that succeeded first.
	require.Empty(t, f.repo.sales)
	require.Empty(t, f.repo.stockMoves)
	require.Empty(t, f.repo.ledger)
	require.True(t, f.repo.stockQty[okProduct].Equal(money("100")))
}

func TestCreateSaleNoOpenShiftRollsBack(t *testing.T) {
	f := newFixture(t)
	f.repo.shiftOpen = false
	productID := f.addProduct("50.00", "10", true)

	_, err := f.svc.CreateSale(context.Background(), f.actor, CreateSaleInput{
		Items:    []ItemInput{{ProductID: productID, Qty: money("1"), UnitPrice: money("50.00")}},
		Payments: []PaymentInput{{Method: shared.MethodCash, Amount: money("50.00")}},
	})
	require.ErrorIs(t, err, cashshift.ErrNoOpenShift)

	require.Empty(t, f.repo.sales)
	require.True(t, f.repo.stockQty[productID].Equal(money("10")))
}

func TestStoreCreditRequiresCustomer(t *testing.T) {
	f := newFixture(t)
	productID := f.addProduct("50.00", "10", true)

	_, err := f.svc.CreateSale(context.Background(), f.actor, CreateSaleInput{
		Items:    []ItemInput{{ProductID: productID, Qty: money("1"), UnitPrice: money("50.00")}},
		Payments: []PaymentInput{{Method: shared.MethodStoreCredit, Amount: money("50.00"), Installments: 2}},
	})
	require.ErrorIs(t, err, ErrDeferredNeedsCustomer)

	customerID := f.addCustomer()
	sale, err := f.svc.CreateSale(context.Background(), f.actor, CreateSaleInput{
		CustomerID: &customerID,
		Items:      []ItemInput{{ProductID: productID, Qty: money("1"), UnitPrice: money("50.00")}},
		Payments:   []PaymentInput{{Method: shared.MethodStoreCredit, Amount: money("50.00"), Installments: 2}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, sale.Status)
	// Deferred settlement never touches the till.
	require.Empty(t, f.repo.ledger)
}

func TestUncontrolledProductSkipsStock(t *testing.T) {
	f := newFixture(t)
	serviceID := f.addProduct("15.00", "0", false)

	_, err := f.svc.CreateSale(context.Background(), f.actor, CreateSaleInput{
		Items:    []ItemInput{{ProductID: serviceID, Qty: money("1"), UnitPrice: money("15.00")}},
		Payments: []PaymentInput{{Method: shared.MethodPix, Amount: money("15.00")}},
	})
	require.NoError(t, err)
	require.Empty(t, f.repo.stockMoves)
}

func TestCancelSaleRestocksAndRefunds(t *testing.T) {
	f := newFixture(t)
	productID := f.addProduct("50.00", "10", true)

	sale, err := f.svc.CreateSale(context.Background(), f.actor, CreateSaleInput{
		Items:    []ItemInput{{ProductID: productID, Qty: money("2"), UnitPrice: money("50.00")}},
		Payments: []PaymentInput{{Method: shared.MethodCash, Amount: money("100.00")}},
	})
	require.NoError(t, err)
	require.True(t, f.repo.stockQty[productID].Equal(money("8")))

	canceled, err := f.svc.CancelSale(context.Background(), f.actor, CancelSaleInput{
		SaleID: sale.ID, Reason: "cliente desistiu", RefundCash: true,
	})
	require.NoError(t, err)
	require.Equal(t, StatusCanceled, canceled.Status)
	require.NotNil(t, canceled.CanceledAt)
	require.True(t, f.repo.stockQty[productID].Equal(money("10")))

	var refunds int
	for _, entry := range f.repo.ledger {
		if entry.refund {
			refunds++
			require.True(t, entry.amount.Equal(money("100.00")))
		}
	}
	require.Equal(t, 1, refunds, "refund is a compensating entry, never a rewrite")
}

func TestCancelSaleWindowExpired(t *testing.T) {
	f := newFixture(t)
	productID := f.addProduct("50.00", "10", true)

	created := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	f.svc.WithNow(func() time.Time { return created })
	sale, err := f.svc.CreateSale(context.Background(), f.actor, CreateSaleInput{
		Items:    []ItemInput{{ProductID: productID, Qty: money("1"), UnitPrice: money("50.00")}},
		Payments: []PaymentInput{{Method: shared.MethodCash, Amount: money("50.00")}},
	})
	require.NoError(t, err)

	f.svc.WithNow(func() time.Time { return created.Add(8 * 24 * time.Hour) })
	_, err = f.svc.CancelSale(context.Background(), f.actor, CancelSaleInput{SaleID: sale.ID, Reason: "atrasado"})
	require.ErrorIs(t, err, ErrWindowExpired)
}

func TestCancelSaleAboveLimitNeedsApproval(t *testing.T) {
	f := newFixture(t)
	productID := f.addProduct("200.00", "10", true)

	sale, err := f.svc.CreateSale(context.Background(), f.actor, CreateSaleInput{
		Items:    []ItemInput{{ProductID: productID, Qty: money("2"), UnitPrice: money("200.00")}},
		Payments: []PaymentInput{{Method: shared.MethodDebit, Amount: money("400.00")}},
	})
	require.NoError(t, err)

	_, err = f.svc.CancelSale(context.Background(), f.actor, CancelSaleInput{SaleID: sale.ID, Reason: "erro de digitação"})
	require.ErrorIs(t, err, ErrApprovalRequired)

	canceled, err := f.svc.CancelSale(context.Background(), f.actor, CancelSaleInput{
		SaleID: sale.ID, Reason: "erro de digitação", ManagerApproval: true,
	})
	require.NoError(t, err)
	require.Equal(t, StatusCanceled, canceled.Status)
}

func TestCancelSaleTwiceRejected(t *testing.T) {
	f := newFixture(t)
	productID := f.addProduct("20.00", "10", true)

	sale, err := f.svc.CreateSale(context.Background(), f.actor, CreateSaleInput{
		Items:    []ItemInput{{ProductID: productID, Qty: money("1"), UnitPrice: money("20.00")}},
		Payments: []PaymentInput{{Method: shared.MethodCash, Amount: money("20.00")}},
	})
	require.NoError(t, err)

	_, err = f.svc.CancelSale(context.Background(), f.actor, CancelSaleInput{SaleID: sale.ID, Reason: "desistência"})
	require.NoError(t, err)

	_, err = f.svc.CancelSale(context.Background(), f.actor, CancelSaleInput{SaleID: sale.ID, Reason: "desistência"})
	require.ErrorIs(t, err, ErrSaleNotCompleted)
}

func TestConvertQuote(t *testing.T) {
	f := newFixture(t)
	productID := f.addProduct("40.00", "10", true)
	customerID := f.addCustomer()

	quoteID := uuid.New()
	f.repo.quoteStatus[quoteID] = quotes.StatusApproved
	f.quotes.quotes[quoteID] = quotes.Quote{
		ID:         quoteID,
		CustomerID: &customerID,
		Status:     quotes.StatusApproved,
		Discount:   money("10.00"),
		Items: []quotes.Item{
			{ProductID: productID, Qty: money("3"), UnitPrice: money("40.00")},
		},
	}

	sale, err := f.svc.ConvertQuoteToSale(context.Background(), f.actor, quoteID,
		[]PaymentInput{{Method: shared.MethodPix, Amount: money("110.00")}}, "")
	require.NoError(t, err)
	require.NotNil(t, sale.QuoteID)
	require.Equal(t, quoteID, *sale.QuoteID)
	require.True(t, sale.Total.Equal(money("110.00")))
	require.True(t, f.repo.converted[quoteID])
	require.True(t, f.repo.stockQty[productID].Equal(money("7")))
}

func TestConvertQuoteDiscountExceedsSubtotal(t *testing.T) {
	f := newFixture(t)
	productID := f.addProduct("40.00", "10", true)
	customerID := f.addCustomer()

	quoteID := uuid.New()
	f.repo.quoteStatus[quoteID] = quotes.StatusApproved
	f.quotes.quotes[quoteID] = quotes.Quote{
		ID:         quoteID,
		CustomerID: &customerID,
		Status:     quotes.StatusApproved,
		Discount:   money("500.00"),
		Items: []quotes.Item{
			{ProductID: productID, Qty: money("3"), UnitPrice: money("40.00")},
		},
	}

	_, err := f.svc.ConvertQuoteToSale(context.Background(), f.actor, quoteID,
		[]PaymentInput{{Method: shared.MethodCash, Amount: money("1.00")}}, "")
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, f.repo.sales)
	require.False(t, f.repo.converted[quoteID])
	require.True(t, f.repo.stockQty[productID].Equal(money("10")))
}

func TestConvertQuoteNotApproved(t *testing.T) {
	f := newFixture(t)
	quoteID := uuid.New()
	f.quotes.quotes[quoteID] = quotes.Quote{ID: quoteID, Status: quotes.StatusDraft}

	_, err := f.svc.ConvertQuoteToSale(context.Background(), f.actor, quoteID,
		[]PaymentInput{{Method: shared.MethodCash, Amount: money("10.00")}}, "")
	require.ErrorIs(t, err, quotes.ErrQuoteNotApproved)
	require.ErrorIs(t, err, shared.ErrPrecondition)
}
