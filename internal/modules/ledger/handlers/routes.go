package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all ledger routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/history", func(r chi.Router) {
		r.Get("/", h.HandleGetHistory)
		r.Get("/latest", h.HandleGetLatest)
		r.Get("/{cycleID}/indicators", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetCycleIndicators(w, r, chi.URLParam(r, "cycleID"))
		})
	})
	r.Get("/regime", h.HandleGetRegime)
}
