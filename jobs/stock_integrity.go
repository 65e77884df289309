package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/balcao-pos/balcao/internal/observability"
)

const stockIntegrityQuery = `
SELECT p.id, p.stock_qty, COALESCE(SUM(m.qty), 0) AS ledger_qty
FROM products p
LEFT JOIN stock_movements m ON m.product_id = p.id
WHERE p.stock_controlled
GROUP BY p.id, p.stock_qty
HAVING p.stock_qty <> COALESCE(SUM(m.qty), 0)`

// NewStockIntegrityHandler builds the handler that cross-checks the
// materialized stock_qty of every controlled product against the sum of
// its movement log. Drift is reported, never silently corrected.
func NewStockIntegrityHandler(pool *pgxpool.Pool, metrics *observability.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload StockIntegrityPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		rows, err := pool.Query(ctx, stockIntegrityQuery)
		if err != nil {
			return err
		}
		defer rows.Close()

		drifted := 0
		for rows.Next() {
			var productID string
			var stored, ledger decimal.Decimal
			if err := rows.Scan(&productID, &stored, &ledger); err != nil {
				return err
			}
			drifted++
			logger.Warn("stock drift detected",
				slog.String("product_id", productID),
				slog.String("stored_qty", stored.String()),
				slog.String("ledger_qty", ledger.String()),
				slog.String("delta", stored.Sub(ledger).String()),
			)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if metrics != nil {
			metrics.StockDrift.Set(float64(drifted))
		}
		logger.Info("stock integrity scan finished", slog.Int("drifted_products", drifted))
		return nil
	}
}
