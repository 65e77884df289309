package cashshift

import (
	"errors"
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

// Handler serves the shift and movement endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	actor, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req OpenShiftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	openingFloat, err := decimal.NewFromString(req.OpeningFloat)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "opening_float must be a decimal amount")
		return
	}

	shift, err := h.service.OpenShift(r.Context(), actor, OpenShiftInput{OpeningFloat: openingFloat, Notes: req.Notes})
	if err != nil {
		h.respondError(w, "open shift", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toShiftResponse(shift))
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	actor, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shiftID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid shift id")
		return
	}
	var req CloseShiftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	declared, err := decimal.NewFromString(req.DeclaredCash)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "declared_cash must be a decimal amount")
		return
	}

	shift, err := h.service.CloseShift(r.Context(), actor, CloseShiftInput{
		ShiftID:       shiftID,
		DeclaredCash:  declared,
		Justification: req.Justification,
		Notes:         req.Notes,
	})
	if err != nil {
		h.respondError(w, "close shift", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toShiftResponse(shift))
}

func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	actor, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shift, err := h.service.GetCurrentShift(r.Context(), actor)
	if err != nil {
		h.respondError(w, "current shift", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toShiftResponse(shift))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, offset := pagination(r)
	shifts, err := h.service.ListShifts(r.Context(), actor, limit, offset)
	if err != nil {
		h.respondError(w, "list shifts", err)
		return
	}
	out := make([]ShiftResponse, 0, len(shifts))
	for _, s := range shifts {
		out = append(out, toShiftResponse(s))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Movements(w http.ResponseWriter, r *http.Request) {
	actor, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shiftID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid shift id")
		return
	}
	limit, offset := pagination(r)
	movements, err := h.service.ListMovements(r.Context(), actor, shiftID, limit, offset)
	if err != nil {
		h.respondError(w, "list movements", err)
		return
	}
	out := make([]MovementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) PostManual(w http.ResponseWriter, r *http.Request) {
	actor, err := shared.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ManualMovementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal amount")
		return
	}

	mv, err := h.service.PostManualMovement(r.Context(), actor, ManualMovementInput{
		Type:   MovementType(req.Type),
		Method: shared.PaymentMethod(req.Method),
		Amount: amount,
		Note:   req.Note,
	})
	if err != nil {
		h.respondError(w, "post manual movement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMovementResponse(mv))
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError && !errors.Is(err, shared.ErrNoActor) {
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
