package cashshift

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes attaches shift and movement endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/shifts/open", h.Open)
	r.Post("/shifts/{id}/close", h.Close)
	r.Get("/shifts/current", h.Current)
	r.Get("/shifts", h.List)
	r.Get("/shifts/{id}/movements", h.Movements)
	r.Post("/movements", h.PostManual)
}
