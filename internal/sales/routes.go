package sales

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes attaches sale and quote-conversion endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales", h.Create)
	r.Get("/sales", h.List)
	r.Get("/sales/{id}", h.Get)
	r.Post("/sales/{id}/cancel", h.Cancel)
	r.Post("/quotes/{id}/convert", h.ConvertQuote)
}
