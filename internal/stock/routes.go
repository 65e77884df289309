package stock

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes attaches the stock endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/stock/adjustments", h.CreateAdjustment)
	r.Post("/stock/adjustments/{id}/approve", h.Approve)
	r.Post("/stock/adjustments/{id}/reject", h.Reject)
	r.Get("/stock/adjustments", h.ListAdjustments)
	r.Get("/stock/adjustments/{id}", h.GetAdjustment)
	r.Post("/stock/transfers", h.CreateTransfer)
	r.Get("/stock/movements", h.ListMovements)
}
