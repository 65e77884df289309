package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads catalog rows from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetProduct fetches a product visible to the tenant.
func (r *Repository) GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (ProductInfo, error) {
	const query = `
SELECT id, name, active, stock_controlled, stock_qty, unit_cost, unit_price
FROM products
WHERE tenant_id = $1 AND id = $2`
	var p ProductInfo
	err := r.pool.QueryRow(ctx, query, tenantID, productID).Scan(
		&p.ID, &p.Name, &p.Active, &p.StockControlled, &p.StockQty, &p.UnitCost, &p.UnitPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductInfo{}, ErrProductNotFound
		}
		return ProductInfo{}, err
	}
	return p, nil
}

// GetCustomer fetches a customer visible to the tenant.
func (r *Repository) GetCustomer(ctx context.Context, tenantID, customerID uuid.UUID) (CustomerInfo, error) {
	const query = `SELECT id, name, active FROM customers WHERE tenant_id = $1 AND id = $2`
	var c CustomerInfo
	err := r.pool.QueryRow(ctx, query, tenantID, customerID).Scan(&c.ID, &c.Name, &c.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CustomerInfo{}, ErrCustomerNotFound
		}
		return CustomerInfo{}, err
	}
	return c, nil
}

// GetSeller fetches the commission configuration for a user. Users with
// no configured rate sell without commission accrual.
func (r *Repository) GetSeller(ctx context.Context, tenantID, userID uuid.UUID) (SellerInfo, error) {
	const query = `SELECT user_id, commission_rate FROM seller_profiles WHERE tenant_id = $1 AND user_id = $2`
	var s SellerInfo
	err := r.pool.QueryRow(ctx, query, tenantID, userID).Scan(&s.ID, &s.CommissionRate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SellerInfo{ID: userID}, nil
		}
		return SellerInfo{}, err
	}
	return s, nil
}
