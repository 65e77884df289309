package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/balcao-pos/balcao/internal/cashshift"
	"github.com/balcao-pos/balcao/internal/platform/db"
	"github.com/balcao-pos/balcao/internal/quotes"
	"github.com/balcao-pos/balcao/internal/shared"
	"github.com/balcao-pos/balcao/internal/stock"
)

// TxRepository exposes the sale commit unit. Everything called through
// it runs inside one transaction; the stock and ledger operations are
// delegated to their engines bound to the same transaction so no write
// bypasses them.
type TxRepository interface {
	InsertSale(ctx context.Context, sale Sale) error
	InsertItem(ctx context.Context, item Item) error
	InsertPayment(ctx context.Context, payment Payment) error
	InsertCommission(ctx context.Context, c Commission) error
	GetSaleForUpdate(ctx context.Context, tenantID, saleID uuid.UUID) (Sale, error)
	UpdateSaleCancel(ctx context.Context, sale Sale) error
	ApplyStock(ctx context.Context, actor shared.Actor, in stock.MovementInput) (stock.Movement, error)
	PostSalePayment(ctx context.Context, actor shared.Actor, paymentID uuid.UUID, method shared.PaymentMethod, amount decimal.Decimal) error
	PostRefund(ctx context.Context, actor shared.Actor, paymentID uuid.UUID, amount decimal.Decimal) error
	MarkQuoteConverted(ctx context.Context, tenantID, quoteID uuid.UUID) error
}

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, tenantID, saleID uuid.UUID) (Sale, error)
	ListSales(ctx context.Context, tenantID, locationID uuid.UUID, limit, offset int) ([]Sale, error)
}

// Repository persists sales in PostgreSQL and composes the stock engine
// and cash ledger into the sale transaction.
type Repository struct {
	pool   *pgxpool.Pool
	stock  *stock.Engine
	ledger *cashshift.Service
	quotes *quotes.Repository
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, stockEngine *stock.Engine, ledger *cashshift.Service, quoteRepo *quotes.Repository) *Repository {
	return &Repository{pool: pool, stock: stockEngine, ledger: ledger, quotes: quoteRepo}
}

type txRepo struct {
	tx     pgx.Tx
	stock  *stock.Engine
	ledger *cashshift.Service
	quotes *quotes.Repository
}

// WithTx executes the callback inside a repeatable-read transaction.
// Any error rolls back every write: no sale, stock change or ledger
// entry is ever left behind by a failed call.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, stock: r.stock, ledger: r.ledger, quotes: r.quotes})
	})
}

func (t *txRepo) InsertSale(ctx context.Context, sale Sale) error {
	const query = `
INSERT INTO sales (id, tenant_id, location_id, customer_id, seller_id, subtotal, discount, total,
status, notes, quote_id, created_at, cancel_reason)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, '')`
	_, err := t.tx.Exec(ctx, query, sale.ID, sale.TenantID, sale.LocationID, sale.CustomerID, sale.SellerID,
		sale.Subtotal, sale.Discount, sale.Total, string(sale.Status), sale.Notes, sale.QuoteID, sale.CreatedAt)
	if err != nil {
		return fmt.Errorf("sales: insert sale: %w", err)
	}
	return nil
}

func (t *txRepo) InsertItem(ctx context.Context, item Item) error {
	const query = `
INSERT INTO sale_items (id, sale_id, product_id, qty, unit_price, discount, line_total)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := t.tx.Exec(ctx, query, item.ID, item.SaleID, item.ProductID, item.Qty, item.UnitPrice, item.Discount, item.LineTotal)
	if err != nil {
		return fmt.Errorf("sales: insert item: %w", err)
	}
	return nil
}

func (t *txRepo) InsertPayment(ctx context.Context, payment Payment) error {
	const query = `
INSERT INTO sale_payments (id, sale_id, method, amount, installments)
VALUES ($1, $2, $3, $4, $5)`
	_, err := t.tx.Exec(ctx, query, payment.ID, payment.SaleID, string(payment.Method), payment.Amount, payment.Installments)
	if err != nil {
		return fmt.Errorf("sales: insert payment: %w", err)
	}
	return nil
}

func (t *txRepo) InsertCommission(ctx context.Context, c Commission) error {
	const query = `
INSERT INTO sale_commissions (id, sale_id, seller_id, rate, amount)
VALUES ($1, $2, $3, $4, $5)`
	_, err := t.tx.Exec(ctx, query, c.ID, c.SaleID, c.SellerID, c.Rate, c.Amount)
	if err != nil {
		return fmt.Errorf("sales: insert commission: %w", err)
	}
	return nil
}

const saleColumns = `id, tenant_id, location_id, customer_id, seller_id, subtotal, discount, total,
status, notes, quote_id, created_at, canceled_at, canceled_by, cancel_reason`

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	var status string
	err := row.Scan(&s.ID, &s.TenantID, &s.LocationID, &s.CustomerID, &s.SellerID, &s.Subtotal, &s.Discount,
		&s.Total, &status, &s.Notes, &s.QuoteID, &s.CreatedAt, &s.CanceledAt, &s.CanceledBy, &s.CancelReason)
	if err != nil {
		return Sale{}, err
	}
	s.Status = Status(status)
	return s, nil
}

// GetSaleForUpdate locks the sale header so a concurrent cancel cannot
// double-restock.
func (t *txRepo) GetSaleForUpdate(ctx context.Context, tenantID, saleID uuid.UUID) (Sale, error) {
	const query = `SELECT ` + saleColumns + ` FROM sales WHERE tenant_id = $1 AND id = $2 FOR UPDATE`
	s, err := scanSale(t.tx.QueryRow(ctx, query, tenantID, saleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrSaleNotFound
		}
		return Sale{}, fmt.Errorf("sales: get sale for update: %w", err)
	}
	return s, nil
}

func (t *txRepo) UpdateSaleCancel(ctx context.Context, sale Sale) error {
	const query = `
UPDATE sales SET status = $3, canceled_at = $4, canceled_by = $5, cancel_reason = $6
WHERE tenant_id = $1 AND id = $2 AND status = 'COMPLETED'`
	tag, err := t.tx.Exec(ctx, query, sale.TenantID, sale.ID, string(StatusCanceled), sale.CanceledAt, sale.CanceledBy, sale.CancelReason)
	if err != nil {
		return fmt.Errorf("sales: cancel sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSaleNotCompleted
	}
	return nil
}

func (t *txRepo) ApplyStock(ctx context.Context, actor shared.Actor, in stock.MovementInput) (stock.Movement, error) {
	return t.stock.ApplyTx(ctx, t.tx, actor, in)
}

func (t *txRepo) PostSalePayment(ctx context.Context, actor shared.Actor, paymentID uuid.UUID, method shared.PaymentMethod, amount decimal.Decimal) error {
	_, err := t.ledger.PostSalePaymentTx(ctx, t.tx, actor, paymentID, method, amount)
	return err
}

func (t *txRepo) PostRefund(ctx context.Context, actor shared.Actor, paymentID uuid.UUID, amount decimal.Decimal) error {
	_, err := t.ledger.PostRefundTx(ctx, t.tx, actor, paymentID, amount)
	return err
}

func (t *txRepo) MarkQuoteConverted(ctx context.Context, tenantID, quoteID uuid.UUID) error {
	return t.quotes.MarkConvertedTx(ctx, t.tx, tenantID, quoteID)
}

// GetSale fetches a sale with items and payments.
func (r *Repository) GetSale(ctx context.Context, tenantID, saleID uuid.UUID) (Sale, error) {
	const query = `SELECT ` + saleColumns + ` FROM sales WHERE tenant_id = $1 AND id = $2`
	s, err := scanSale(r.pool.QueryRow(ctx, query, tenantID, saleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrSaleNotFound
		}
		return Sale{}, fmt.Errorf("sales: get sale: %w", err)
	}

	const itemQuery = `SELECT id, sale_id, product_id, qty, unit_price, discount, line_total
FROM sale_items WHERE sale_id = $1`
	rows, err := r.pool.Query(ctx, itemQuery, saleID)
	if err != nil {
		return Sale{}, fmt.Errorf("sales: get sale items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.SaleID, &it.ProductID, &it.Qty, &it.UnitPrice, &it.Discount, &it.LineTotal); err != nil {
			return Sale{}, err
		}
		s.Items = append(s.Items, it)
	}
	if err := rows.Err(); err != nil {
		return Sale{}, err
	}

	const paymentQuery = `SELECT id, sale_id, method, amount, installments
FROM sale_payments WHERE sale_id = $1`
	prows, err := r.pool.Query(ctx, paymentQuery, saleID)
	if err != nil {
		return Sale{}, fmt.Errorf("sales: get sale payments: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var p Payment
		var method string
		if err := prows.Scan(&p.ID, &p.SaleID, &method, &p.Amount, &p.Installments); err != nil {
			return Sale{}, err
		}
		p.Method = shared.PaymentMethod(method)
		s.Payments = append(s.Payments, p)
	}
	return s, prows.Err()
}

// ListSales returns recent sale headers for the location, newest first.
func (r *Repository) ListSales(ctx context.Context, tenantID, locationID uuid.UUID, limit, offset int) ([]Sale, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT ` + saleColumns + ` FROM sales
WHERE tenant_id = $1 AND location_id = $2
ORDER BY created_at DESC
LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, tenantID, locationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sales: list sales: %w", err)
	}
	defer rows.Close()
	var out []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
