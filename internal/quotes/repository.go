package quotes

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists quotes in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get fetches a quote with its items.
func (r *Repository) Get(ctx context.Context, tenantID, quoteID uuid.UUID) (Quote, error) {
	const query = `SELECT id, tenant_id, customer_id, status, discount, created_at
FROM quotes WHERE tenant_id = $1 AND id = $2`
	var q Quote
	var status string
	err := r.pool.QueryRow(ctx, query, tenantID, quoteID).Scan(&q.ID, &q.TenantID, &q.CustomerID, &status, &q.Discount, &q.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, ErrQuoteNotFound
		}
		return Quote{}, fmt.Errorf("quotes: get quote: %w", err)
	}
	q.Status = Status(status)

	const itemQuery = `SELECT product_id, qty, unit_price, discount
FROM quote_items WHERE quote_id = $1 ORDER BY line_no ASC`
	rows, err := r.pool.Query(ctx, itemQuery, quoteID)
	if err != nil {
		return Quote{}, fmt.Errorf("quotes: get quote items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Qty, &it.UnitPrice, &it.Discount); err != nil {
			return Quote{}, err
		}
		q.Items = append(q.Items, it)
	}
	return q, rows.Err()
}

// List returns quote headers for the tenant, optionally filtered by
// status. Items are not loaded; Get fetches a full quote.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, status Status, limit, offset int) ([]Quote, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, tenant_id, customer_id, status, discount, created_at
FROM quotes
WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, tenantID, string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("quotes: list quotes: %w", err)
	}
	defer rows.Close()
	var out []Quote
	for rows.Next() {
		var q Quote
		var s string
		if err := rows.Scan(&q.ID, &q.TenantID, &q.CustomerID, &s, &q.Discount, &q.CreatedAt); err != nil {
			return nil, err
		}
		q.Status = Status(s)
		out = append(out, q)
	}
	return out, rows.Err()
}

// MarkConvertedTx flips an APPROVED quote to CONVERTED inside the
// caller's transaction. The guard on the previous status makes two
// concurrent conversions resolve to one winner.
func (r *Repository) MarkConvertedTx(ctx context.Context, tx pgx.Tx, tenantID, quoteID uuid.UUID) error {
	const query = `UPDATE quotes SET status = 'CONVERTED'
WHERE tenant_id = $1 AND id = $2 AND status = 'APPROVED'`
	tag, err := tx.Exec(ctx, query, tenantID, quoteID)
	if err != nil {
		return fmt.Errorf("quotes: mark converted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrQuoteNotApproved
	}
	return nil
}
