package sales

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/balcao-pos/balcao/internal/catalog"
	"github.com/balcao-pos/balcao/internal/observability"
	"github.com/balcao-pos/balcao/internal/quotes"
	"github.com/balcao-pos/balcao/internal/shared"
	"github.com/balcao-pos/balcao/internal/stock"
)

// CatalogPort abstracts the read-only catalog collaborator.
type CatalogPort interface {
	GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (catalog.ProductInfo, error)
	GetCustomer(ctx context.Context, tenantID, customerID uuid.UUID) (catalog.CustomerInfo, error)
	GetSeller(ctx context.Context, tenantID, userID uuid.UUID) (catalog.SellerInfo, error)
}

// QuotePort abstracts quote reads for conversion.
type QuotePort interface {
	Get(ctx context.Context, tenantID, quoteID uuid.UUID) (quotes.Quote, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Policy groups the cancellation and tolerance rules.
type Policy struct {
	CancelWindow        time.Duration
	CancelApprovalLimit decimal.Decimal
	Tolerance           decimal.Decimal
}

// ItemInput is one requested sale line.
type ItemInput struct {
	ProductID uuid.UUID
	Qty       decimal.Decimal
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
}

// PaymentInput is one requested payment leg.
type PaymentInput struct {
	Method       shared.PaymentMethod
	Amount       decimal.Decimal
	Installments int
}

// CreateSaleInput carries the full sale request.
type CreateSaleInput struct {
	CustomerID *uuid.UUID
	Items      []ItemInput
	Payments   []PaymentInput
	Discount   decimal.Decimal
	Notes      string
}

// CancelSaleInput carries a cancellation request.
type CancelSaleInput struct {
	SaleID          uuid.UUID
	Reason          string
	ManagerApproval bool
	RefundCash      bool
}

// Service orchestrates the sale commit protocol.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	quotes  QuotePort
	audit   AuditPort
	metrics *observability.Metrics
	policy  Policy
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, cat CatalogPort, quotePort QuotePort, audit AuditPort, metrics *observability.Metrics, policy Policy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.Tolerance.IsZero() {
		policy.Tolerance = shared.CashTolerance
	}
	if policy.CancelWindow <= 0 {
		policy.CancelWindow = 7 * 24 * time.Hour
	}
	return &Service{
		repo:    repo,
		catalog: cat,
		quotes:  quotePort,
		audit:   audit,
		metrics: metrics,
		policy:  policy,
		logger:  logger,
		now:     time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// validatedLine pairs a priced line with what the catalog knows about it.
type validatedLine struct {
	item    Item
	product catalog.ProductInfo
}

func (s *Service) validateItems(ctx context.Context, actor shared.Actor, saleID uuid.UUID, items []ItemInput) ([]validatedLine, decimal.Decimal, error) {
	if len(items) == 0 {
		return nil, decimal.Zero, ErrNoItems
	}
	lines := make([]validatedLine, 0, len(items))
	subtotal := decimal.Zero
	for _, it := range items {
		if !it.Qty.IsPositive() {
			return nil, decimal.Zero, fmt.Errorf("sales: item quantity must be positive: %w", shared.ErrValidation)
		}
		if it.UnitPrice.IsNegative() || it.Discount.IsNegative() {
			return nil, decimal.Zero, fmt.Errorf("sales: item price and discount must not be negative: %w", shared.ErrValidation)
		}
		product, err := s.catalog.GetProduct(ctx, actor.TenantID, it.ProductID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if !product.Active {
			return nil, decimal.Zero, ErrProductInactive
		}
		lineTotal := shared.RoundMoney(it.Qty.Mul(it.UnitPrice).Sub(it.Discount))
		if lineTotal.IsNegative() {
			return nil, decimal.Zero, fmt.Errorf("sales: line discount exceeds line value: %w", shared.ErrValidation)
		}
		subtotal = subtotal.Add(lineTotal)
		lines = append(lines, validatedLine{
			item: Item{
				ID:        uuid.New(),
				SaleID:    saleID,
				ProductID: it.ProductID,
				Qty:       it.Qty,
				UnitPrice: it.UnitPrice,
				Discount:  it.Discount,
				LineTotal: lineTotal,
			},
			product: product,
		})
	}
	return lines, subtotal, nil
}

func (s *Service) validatePayments(ctx context.Context, actor shared.Actor, saleID uuid.UUID, customerID *uuid.UUID, payments []PaymentInput, total decimal.Decimal) ([]Payment, error) {
	if len(payments) == 0 {
		return nil, ErrNoPayments
	}
	sum := decimal.Zero
	out := make([]Payment, 0, len(payments))
	for _, p := range payments {
		if !p.Method.Known() {
			return nil, fmt.Errorf("sales: unknown payment method %q: %w", p.Method, shared.ErrValidation)
		}
		if !p.Amount.IsPositive() {
			return nil, fmt.Errorf("sales: payment amount must be positive: %w", shared.ErrValidation)
		}
		if !p.Method.Immediate() {
			if customerID == nil || p.Installments < 1 {
				return nil, ErrDeferredNeedsCustomer
			}
		}
		if p.Installments < 1 {
			p.Installments = 1
		}
		sum = sum.Add(p.Amount)
		out = append(out, Payment{
			ID:           uuid.New(),
			SaleID:       saleID,
			Method:       p.Method,
			Amount:       shared.RoundMoney(p.Amount),
			Installments: p.Installments,
		})
	}
	// Payments must cover the total; overpayment (cash change) is fine.
	if sum.Add(s.policy.Tolerance).LessThan(total) {
		return nil, ErrPaymentMismatch
	}
	if customerID != nil {
		customer, err := s.catalog.GetCustomer(ctx, actor.TenantID, *customerID)
		if err != nil {
			return nil, err
		}
		if !customer.Active {
			return nil, fmt.Errorf("sales: customer is inactive: %w", shared.ErrValidation)
		}
	}
	return out, nil
}

// CreateSale validates and commits the full side-effect set as one
// atomic unit: header, items, stock decrement, payments, ledger postings
// and commission accrual. Any failure leaves nothing behind.
func (s *Service) CreateSale(ctx context.Context, actor shared.Actor, in CreateSaleInput) (Sale, error) {
	saleID := uuid.New()

	lines, subtotal, err := s.validateItems(ctx, actor, saleID, in.Items)
	if err != nil {
		return Sale{}, err
	}
	if in.Discount.IsNegative() {
		return Sale{}, fmt.Errorf("sales: discount must not be negative: %w", shared.ErrValidation)
	}
	total := shared.RoundMoney(subtotal.Sub(in.Discount))
	if total.IsNegative() {
		return Sale{}, fmt.Errorf("sales: discount exceeds subtotal: %w", shared.ErrValidation)
	}

	payments, err := s.validatePayments(ctx, actor, saleID, in.CustomerID, in.Payments, total)
	if err != nil {
		return Sale{}, err
	}

	sale := Sale{
		ID:         saleID,
		TenantID:   actor.TenantID,
		LocationID: actor.LocationID,
		CustomerID: in.CustomerID,
		SellerID:   actor.UserID,
		Subtotal:   subtotal,
		Discount:   shared.RoundMoney(in.Discount),
		Total:      total,
		Status:     StatusCompleted,
		Notes:      in.Notes,
		CreatedAt:  s.now(),
	}
	return s.commit(ctx, actor, sale, lines, payments, nil)
}

// ConvertQuoteToSale commits a sale sourced from an approved quote,
// marking the quote CONVERTED in the same transaction.
func (s *Service) ConvertQuoteToSale(ctx context.Context, actor shared.Actor, quoteID uuid.UUID, paymentInputs []PaymentInput, notes string) (Sale, error) {
	quote, err := s.quotes.Get(ctx, actor.TenantID, quoteID)
	if err != nil {
		return Sale{}, err
	}
	if quote.Status != quotes.StatusApproved {
		return Sale{}, quotes.ErrQuoteNotApproved
	}

	items := make([]ItemInput, 0, len(quote.Items))
	for _, it := range quote.Items {
		items = append(items, ItemInput{
			ProductID: it.ProductID,
			Qty:       it.Qty,
			UnitPrice: it.UnitPrice,
			Discount:  it.Discount,
		})
	}

	saleID := uuid.New()
	lines, subtotal, err := s.validateItems(ctx, actor, saleID, items)
	if err != nil {
		return Sale{}, err
	}
	total := shared.RoundMoney(subtotal.Sub(quote.Discount))
	if total.IsNegative() {
		return Sale{}, fmt.Errorf("sales: quote discount exceeds subtotal: %w", shared.ErrValidation)
	}
	payments, err := s.validatePayments(ctx, actor, saleID, quote.CustomerID, paymentInputs, total)
	if err != nil {
		return Sale{}, err
	}

	sale := Sale{
		ID:         saleID,
		TenantID:   actor.TenantID,
		LocationID: actor.LocationID,
		CustomerID: quote.CustomerID,
		SellerID:   actor.UserID,
		Subtotal:   subtotal,
		Discount:   quote.Discount,
		Total:      total,
		Status:     StatusCompleted,
		Notes:      notes,
		QuoteID:    &quote.ID,
		CreatedAt:  s.now(),
	}
	return s.commit(ctx, actor, sale, lines, payments, &quote.ID)
}

func (s *Service) commit(ctx context.Context, actor shared.Actor, sale Sale, lines []validatedLine, payments []Payment, quoteID *uuid.UUID) (Sale, error) {
	seller, err := s.catalog.GetSeller(ctx, actor.TenantID, actor.UserID)
	if err != nil {
		return Sale{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		for _, line := range lines {
			if err := tx.InsertItem(ctx, line.item); err != nil {
				return err
			}
			if !line.product.StockControlled {
				continue
			}
			// The engine locks the product row, so two concurrent sales
			// of the same product cannot both pass the availability check.
			if _, err := tx.ApplyStock(ctx, actor, stock.MovementInput{
				ProductID: line.item.ProductID,
				Type:      stock.MovementSaleConsumption,
				Qty:       line.item.Qty.Neg(),
				RefModule: "sale",
				RefID:     sale.ID,
			}); err != nil {
				return err
			}
		}
		for _, payment := range payments {
			if err := tx.InsertPayment(ctx, payment); err != nil {
				return err
			}
			if payment.Method.Immediate() {
				if err := tx.PostSalePayment(ctx, actor, payment.ID, payment.Method, payment.Amount); err != nil {
					return err
				}
			}
		}
		if seller.CommissionRate.IsPositive() {
			if err := tx.InsertCommission(ctx, Commission{
				ID:       uuid.New(),
				SaleID:   sale.ID,
				SellerID: actor.UserID,
				Rate:     seller.CommissionRate,
				Amount:   shared.RoundMoney(sale.Total.Mul(seller.CommissionRate)),
			}); err != nil {
				return err
			}
		}
		if quoteID != nil {
			if err := tx.MarkQuoteConverted(ctx, actor.TenantID, *quoteID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.SaleRollbacks.Inc()
		}
		return Sale{}, err
	}

	if s.metrics != nil {
		s.metrics.SalesCommitted.Inc()
	}
	sale.Payments = payments
	for _, line := range lines {
		sale.Items = append(sale.Items, line.item)
	}
	s.recordAudit(ctx, actor, "sale.create", sale.ID, map[string]any{"total": sale.Total.String()})
	return sale, nil
}

// CancelSale reverses a sale within the policy window. Stock is
// re-incremented; ledger movements are never rewritten, a cash refund
// posts a compensating OUT entry instead.
func (s *Service) CancelSale(ctx context.Context, actor shared.Actor, in CancelSaleInput) (Sale, error) {
	if in.Reason == "" {
		return Sale{}, fmt.Errorf("sales: cancellation reason required: %w", shared.ErrValidation)
	}
	sale, err := s.repo.GetSale(ctx, actor.TenantID, in.SaleID)
	if err != nil {
		return Sale{}, err
	}
	if sale.Status != StatusCompleted {
		return Sale{}, ErrSaleNotCompleted
	}
	if s.now().Sub(sale.CreatedAt) > s.policy.CancelWindow {
		return Sale{}, ErrWindowExpired
	}
	if sale.Total.GreaterThan(s.policy.CancelApprovalLimit) && !in.ManagerApproval {
		return Sale{}, ErrApprovalRequired
	}

	var canceled Sale
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetSaleForUpdate(ctx, actor.TenantID, in.SaleID)
		if err != nil {
			return err
		}
		if locked.Status != StatusCompleted {
			return ErrSaleNotCompleted
		}

		now := s.now()
		locked.Status = StatusCanceled
		locked.CanceledAt = &now
		locked.CanceledBy = &actor.UserID
		locked.CancelReason = in.Reason
		if err := tx.UpdateSaleCancel(ctx, locked); err != nil {
			return err
		}

		for _, item := range sale.Items {
			product, err := s.catalog.GetProduct(ctx, actor.TenantID, item.ProductID)
			if err != nil {
				return err
			}
			if !product.StockControlled {
				continue
			}
			if _, err := tx.ApplyStock(ctx, actor, stock.MovementInput{
				ProductID: item.ProductID,
				Type:      stock.MovementAdjustment,
				Qty:       item.Qty,
				RefModule: "sale.cancel",
				RefID:     sale.ID,
				Note:      in.Reason,
			}); err != nil {
				return err
			}
		}

		if in.RefundCash {
			for _, payment := range sale.Payments {
				if payment.Method != shared.MethodCash {
					continue
				}
				if err := tx.PostRefund(ctx, actor, payment.ID, payment.Amount); err != nil {
					return err
				}
			}
		}
		canceled = locked
		return nil
	})
	if err != nil {
		return Sale{}, err
	}

	s.recordAudit(ctx, actor, "sale.cancel", canceled.ID, map[string]any{"reason": in.Reason})
	canceled.Items = sale.Items
	canceled.Payments = sale.Payments
	return canceled, nil
}

// GetSale returns a sale with its items and payments.
func (s *Service) GetSale(ctx context.Context, actor shared.Actor, saleID uuid.UUID) (Sale, error) {
	return s.repo.GetSale(ctx, actor.TenantID, saleID)
}

// ListSales returns recent sales for the actor's location.
func (s *Service) ListSales(ctx context.Context, actor shared.Actor, limit, offset int) ([]Sale, error) {
	return s.repo.ListSales(ctx, actor.TenantID, actor.LocationID, limit, offset)
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: actor.TenantID,
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "sale",
		EntityID: entityID.String(),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
