// Package handlers provides HTTP handlers for the cycle history and regime state.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/riskpilot/internal/market_regime"
	"github.com/aristath/riskpilot/internal/modules/ledger"
	"github.com/aristath/riskpilot/internal/modules/policy"
	"github.com/rs/zerolog"
)

const (
	defaultLimit = 30
	maxLimit     = 1000
)

// Handler handles ledger HTTP requests
type Handler struct {
	history      *ledger.HistoryRepository
	observations *ledger.ObservationRepository
	regimes      *market_regime.RegimePersistence
	policy       *policy.Policy
	log          zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(
	history *ledger.HistoryRepository,
	observations *ledger.ObservationRepository,
	regimes *market_regime.RegimePersistence,
	p *policy.Policy,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		history:      history,
		observations: observations,
		regimes:      regimes,
		policy:       p,
		log:          log.With().Str("handler", "ledger").Logger(),
	}
}

// HandleGetHistory handles GET /api/history
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = min(parsed, maxLimit)
		}
	}

	records, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query history")
		http.Error(w, "Failed to query history", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// HandleGetLatest handles GET /api/history/latest
func (h *Handler) HandleGetLatest(w http.ResponseWriter, r *http.Request) {
	rec, err := h.history.Latest(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query latest record")
		http.Error(w, "Failed to query history", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "No cycle recorded yet", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// HandleGetCycleIndicators handles GET /api/history/{cycleID}/indicators
func (h *Handler) HandleGetCycleIndicators(w http.ResponseWriter, r *http.Request, cycleID string) {
	indicators, err := h.observations.ForCycle(r.Context(), cycleID)
	if err != nil {
		h.log.Error().Err(err).Str("cycle_id", cycleID).Msg("Failed to query indicators")
		http.Error(w, "Failed to query indicators", http.StatusInternalServerError)
		return
	}
	if len(indicators) == 0 {
		http.Error(w, "Cycle not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"cycle_id":   cycleID,
		"indicators": indicators,
	})
}

// HandleGetRegime handles GET /api/regime
func (h *Handler) HandleGetRegime(w http.ResponseWriter, r *http.Request) {
	state, err := h.regimes.Load(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load regime state")
		http.Error(w, "Failed to load regime state", http.StatusInternalServerError)
		return
	}
	if state == nil {
		http.Error(w, "No regime assigned yet", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":    state,
		"guidance": h.policy.Guidance(state.Regime),
		"bands":    h.policy.Regimes,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
