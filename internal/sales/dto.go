package sales

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/balcao-pos/balcao/internal/shared"
)

// SaleItemRequest is one requested line of a sale.
type SaleItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid4"`
	Qty       string `json:"qty" validate:"required"`
	UnitPrice string `json:"unit_price" validate:"required"`
	Discount  string `json:"discount"`
}

// SalePaymentRequest is one requested payment leg.
type SalePaymentRequest struct {
	Method       string `json:"method" validate:"required,oneof=CASH DEBIT CREDIT PIX STORE_CREDIT"`
	Amount       string `json:"amount" validate:"required"`
	Installments int    `json:"installments" validate:"min=0,max=48"`
}

// CreateSaleRequest is the payload for POST /sales.
type CreateSaleRequest struct {
	CustomerID string               `json:"customer_id" validate:"omitempty,uuid4"`
	Items      []SaleItemRequest    `json:"items" validate:"required,min=1,dive"`
	Payments   []SalePaymentRequest `json:"payments" validate:"required,min=1,dive"`
	Discount   string               `json:"discount"`
	Notes      string               `json:"notes" validate:"max=500"`
}

// ConvertQuoteRequest is the payload for POST /quotes/{id}/convert.
type ConvertQuoteRequest struct {
	Payments []SalePaymentRequest `json:"payments" validate:"required,min=1,dive"`
	Notes    string               `json:"notes" validate:"max=500"`
}

// CancelSaleRequest is the payload for POST /sales/{id}/cancel.
type CancelSaleRequest struct {
	Reason          string `json:"reason" validate:"required,min=3,max=500"`
	ManagerApproval bool   `json:"manager_approval"`
	RefundCash      bool   `json:"refund_cash"`
}

// SaleItemResponse mirrors an Item for JSON output.
type SaleItemResponse struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Qty       string `json:"qty"`
	UnitPrice string `json:"unit_price"`
	Discount  string `json:"discount"`
	LineTotal string `json:"line_total"`
}

// SalePaymentResponse mirrors a Payment for JSON output.
type SalePaymentResponse struct {
	ID           string `json:"id"`
	Method       string `json:"method"`
	Amount       string `json:"amount"`
	Installments int    `json:"installments"`
}

// SaleResponse mirrors a Sale for JSON output.
type SaleResponse struct {
	ID           string                `json:"id"`
	LocationID   string                `json:"location_id"`
	CustomerID   *string               `json:"customer_id,omitempty"`
	SellerID     string                `json:"seller_id"`
	Subtotal     string                `json:"subtotal"`
	Discount     string                `json:"discount"`
	Total        string                `json:"total"`
	Status       string                `json:"status"`
	Notes        string                `json:"notes,omitempty"`
	QuoteID      *string               `json:"quote_id,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	CanceledAt   *time.Time            `json:"canceled_at,omitempty"`
	CanceledBy   *string               `json:"canceled_by,omitempty"`
	CancelReason string                `json:"cancel_reason,omitempty"`
	Items        []SaleItemResponse    `json:"items"`
	Payments     []SalePaymentResponse `json:"payments"`
}

func (r CreateSaleRequest) toInput() (CreateSaleInput, error) {
	in := CreateSaleInput{Notes: r.Notes, Discount: decimal.Zero}
	if r.CustomerID != "" {
		id, err := uuid.Parse(r.CustomerID)
		if err != nil {
			return CreateSaleInput{}, err
		}
		in.CustomerID = &id
	}
	if r.Discount != "" {
		d, err := decimal.NewFromString(r.Discount)
		if err != nil {
			return CreateSaleInput{}, err
		}
		in.Discount = d
	}
	for _, it := range r.Items {
		item, err := it.toInput()
		if err != nil {
			return CreateSaleInput{}, err
		}
		in.Items = append(in.Items, item)
	}
	payments, err := toPaymentInputs(r.Payments)
	if err != nil {
		return CreateSaleInput{}, err
	}
	in.Payments = payments
	return in, nil
}

func (r SaleItemRequest) toInput() (ItemInput, error) {
	productID, err := uuid.Parse(r.ProductID)
	if err != nil {
		return ItemInput{}, err
	}
	qty, err := decimal.NewFromString(r.Qty)
	if err != nil {
		return ItemInput{}, err
	}
	price, err := decimal.NewFromString(r.UnitPrice)
	if err != nil {
		return ItemInput{}, err
	}
	discount := decimal.Zero
	if r.Discount != "" {
		if discount, err = decimal.NewFromString(r.Discount); err != nil {
			return ItemInput{}, err
		}
	}
	return ItemInput{ProductID: productID, Qty: qty, UnitPrice: price, Discount: discount}, nil
}

func toPaymentInputs(reqs []SalePaymentRequest) ([]PaymentInput, error) {
	out := make([]PaymentInput, 0, len(reqs))
	for _, p := range reqs {
		amount, err := decimal.NewFromString(p.Amount)
		if err != nil {
			return nil, err
		}
		out = append(out, PaymentInput{
			Method:       shared.PaymentMethod(p.Method),
			Amount:       amount,
			Installments: p.Installments,
		})
	}
	return out, nil
}

func toSaleResponse(s Sale) SaleResponse {
	resp := SaleResponse{
		ID:           s.ID.String(),
		LocationID:   s.LocationID.String(),
		SellerID:     s.SellerID.String(),
		Subtotal:     s.Subtotal.StringFixed(2),
		Discount:     s.Discount.StringFixed(2),
		Total:        s.Total.StringFixed(2),
		Status:       string(s.Status),
		Notes:        s.Notes,
		CreatedAt:    s.CreatedAt,
		CanceledAt:   s.CanceledAt,
		CancelReason: s.CancelReason,
		Items:        make([]SaleItemResponse, 0, len(s.Items)),
		Payments:     make([]SalePaymentResponse, 0, len(s.Payments)),
	}
	if s.CustomerID != nil {
		v := s.CustomerID.String()
		resp.CustomerID = &v
	}
	if s.QuoteID != nil {
		v := s.QuoteID.String()
		resp.QuoteID = &v
	}
	if s.CanceledBy != nil {
		v := s.CanceledBy.String()
		resp.CanceledBy = &v
	}
	for _, it := range s.Items {
		resp.Items = append(resp.Items, SaleItemResponse{
			ID:        it.ID.String(),
			ProductID: it.ProductID.String(),
			Qty:       it.Qty.String(),
			UnitPrice: it.UnitPrice.StringFixed(2),
			Discount:  it.Discount.StringFixed(2),
			LineTotal: it.LineTotal.StringFixed(2),
		})
	}
	for _, p := range s.Payments {
		resp.Payments = append(resp.Payments, SalePaymentResponse{
			ID:           p.ID.String(),
			Method:       string(p.Method),
			Amount:       p.Amount.StringFixed(2),
			Installments: p.Installments,
		})
	}
	return resp
}
