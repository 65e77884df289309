package quotes

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/balcao-pos/balcao/internal/platform/httpx"
	"github.com/balcao-pos/balcao/internal/shared"
)

// ReaderPort is the read surface the handler serves.
type ReaderPort interface {
	Get(ctx context.Context, tenantID, quoteID uuid.UUID) (Quote, error)
	List(ctx context.Context, tenantID uuid.UUID, status Status, limit, offset int) ([]Quote, error)
}

// Handler serves the read-only quote endpoints. Conversion lives with
// the sale orchestrator.
type Handler struct {
	logger *slog.Logger
	repo   ReaderPort
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, repo ReaderPort) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes attaches the quote endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/quotes", h.List)
	r.Get("/quotes/{id}", h.Get)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	quoteID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid quote id")
		return
	}
	quote, err := h.repo.Get(r.Context(), actor.TenantID, quoteID)
	if err != nil {
		h.respondError(w, "get quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toQuoteResponse(quote))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	status := Status(r.URL.Query().Get("status"))
	list, err := h.repo.List(r.Context(), actor.TenantID, status, limit, offset)
	if err != nil {
		h.respondError(w, "list quotes", err)
		return
	}
	out := make([]QuoteResponse, 0, len(list))
	for _, q := range list {
		out = append(out, toQuoteResponse(q))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

// QuoteResponse mirrors a Quote for JSON output.
type QuoteResponse struct {
	ID         string              `json:"id"`
	CustomerID *string             `json:"customer_id,omitempty"`
	Status     string              `json:"status"`
	Discount   string              `json:"discount"`
	Items      []QuoteItemResponse `json:"items,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// QuoteItemResponse mirrors a quoted line for JSON output.
type QuoteItemResponse struct {
	ProductID string `json:"product_id"`
	Qty       string `json:"qty"`
	UnitPrice string `json:"unit_price"`
	Discount  string `json:"discount"`
}

func toQuoteResponse(q Quote) QuoteResponse {
	resp := QuoteResponse{
		ID:        q.ID.String(),
		Status:    string(q.Status),
		Discount:  q.Discount.StringFixed(2),
		CreatedAt: q.CreatedAt,
	}
	if q.CustomerID != nil {
		v := q.CustomerID.String()
		resp.CustomerID = &v
	}
	for _, it := range q.Items {
		resp.Items = append(resp.Items, QuoteItemResponse{
			ProductID: it.ProductID.String(),
			Qty:       it.Qty.String(),
			UnitPrice: it.UnitPrice.StringFixed(2),
			Discount:  it.Discount.StringFixed(2),
		})
	}
	return resp
}
