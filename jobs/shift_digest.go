package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const shiftDigestQuery = `
SELECT s.status, s.opening_float, s.declared_cash, s.expected_cash, s.cash_diff,
       COUNT(m.id) AS movement_count
FROM shifts s
LEFT JOIN cash_movements m ON m.shift_id = s.id
WHERE s.tenant_id = $1 AND s.id = $2
GROUP BY s.id`

// NewShiftDigestHandler builds the handler that logs a one-line summary
// of a closed shift. The digest is advisory; the shift row stays the
// single source of truth.
func NewShiftDigestHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ShiftDigestPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		var (
			status        string
			openingFloat  decimal.Decimal
			declaredCash  *decimal.Decimal
			expectedCash  *decimal.Decimal
			cashDiff      *decimal.Decimal
			movementCount int
		)
		err := pool.QueryRow(ctx, shiftDigestQuery, payload.TenantID, payload.ShiftID).
			Scan(&status, &openingFloat, &declaredCash, &expectedCash, &cashDiff, &movementCount)
		if errors.Is(err, pgx.ErrNoRows) {
			// Shift was never committed; nothing to digest.
			return asynq.SkipRetry
		}
		if err != nil {
			return err
		}

		attrs := []any{
			slog.String("shift_id", payload.ShiftID.String()),
			slog.String("status", status),
			slog.String("opening_float", openingFloat.StringFixed(2)),
			slog.Int("movements", movementCount),
		}
		if declaredCash != nil {
			attrs = append(attrs, slog.String("declared_cash", declaredCash.StringFixed(2)))
		}
		if expectedCash != nil {
			attrs = append(attrs, slog.String("expected_cash", expectedCash.StringFixed(2)))
		}
		if cashDiff != nil {
			attrs = append(attrs, slog.String("cash_diff", cashDiff.StringFixed(2)))
			if !cashDiff.IsZero() {
				logger.Warn("shift closed with cash difference", attrs...)
				return nil
			}
		}
		logger.Info("shift digest", attrs...)
		return nil
	}
}
