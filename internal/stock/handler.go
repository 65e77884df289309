package stock

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/balcao-pos/balcao/internal/platform/httpx"
	"github.com/balcao-pos/balcao/internal/shared"
)

// Handler serves the stock adjustment, transfer and movement endpoints.
type Handler struct {
	logger   *slog.Logger
	engine   *Engine
	validate *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{logger: logger, engine: engine, validate: validator.New()}
}

func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	actor, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req AdjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	productID, _ := uuid.Parse(req.ProductID)
	qty, err := decimal.NewFromString(req.Qty)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "qty must be a decimal amount")
		return
	}

	adj, err := h.engine.CreateAdjustment(r.Context(), actor, AdjustmentInput{
		ProductID:     productID,
		Qty:           qty,
		ReasonCode:    req.ReasonCode,
		Justification: req.Justification,
	})
	if err != nil {
		h.respondError(w, "create adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAdjustmentResponse(adj))
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	adjustmentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid adjustment id")
		return
	}
	adj, err := h.engine.Approve(r.Context(), actor, adjustmentID)
	if err != nil {
		h.respondError(w, "approve adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAdjustmentResponse(adj))
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	adjustmentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid adjustment id")
		return
	}
	var req RejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	adj, err := h.engine.Reject(r.Context(), actor, adjustmentID, req.Reason)
	if err != nil {
		h.respondError(w, "reject adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAdjustmentResponse(adj))
}

func (h *Handler) GetAdjustment(w http.ResponseWriter, r *http.Request) {
	actor, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	adjustmentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid adjustment id")
		return
	}
	adj, err := h.engine.GetAdjustment(r.Context(), actor, adjustmentID)
	if err != nil {
		h.respondError(w, "get adjustment", err)
		return
	}
	trail, err := h.engine.ApprovalTrail(r.Context(), adjustmentID)
	if err != nil {
		h.respondError(w, "get adjustment trail", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAdjustmentDetailResponse(adj, trail))
}

func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	actor, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, offset := pagination(r)
	status := AdjustmentStatus(r.URL.Query().Get("status"))
	adjustments, err := h.engine.ListAdjustments(r.Context(), actor, status, limit, offset)
	if err != nil {
		h.respondError(w, "list adjustments", err)
		return
	}
	out := make([]AdjustmentResponse, 0, len(adjustments))
	for _, a := range adjustments {
		out = append(out, toAdjustmentResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	actor, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req TransferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	productID, _ := uuid.Parse(req.ProductID)
	sourceID, _ := uuid.Parse(req.SourceLocationID)
	targetID, _ := uuid.Parse(req.TargetLocationID)
	qty, err := decimal.NewFromString(req.Qty)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "qty must be a decimal amount")
		return
	}

	out, in, err := h.engine.CreateTransfer(r.Context(), actor, TransferInput{
		ProductID:        productID,
		SourceLocationID: sourceID,
		TargetLocationID: targetID,
		Qty:              qty,
		Reason:           req.Reason,
	})
	if err != nil {
		h.respondError(w, "create transfer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]MovementResponse{
		"out": toMovementResponse(out),
		"in":  toMovementResponse(in),
	})
}

func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	actor, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, offset := pagination(r)
	var productID uuid.UUID
	if v := r.URL.Query().Get("product_id"); v != "" {
		productID, err = uuid.Parse(v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
			return
		}
	}
	movements, err := h.engine.ListMovements(r.Context(), actor, productID, limit, offset)
	if err != nil {
		h.respondError(w, "list stock movements", err)
		return
	}
	out := make([]MovementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
