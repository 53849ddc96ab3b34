package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/riskpilot/internal/database"
	"github.com/aristath/riskpilot/internal/market_regime"
	"github.com/aristath/riskpilot/internal/modules/allocation"
	"github.com/aristath/riskpilot/internal/modules/ledger"
	"github.com/aristath/riskpilot/internal/scheduler"
	"github.com/aristath/riskpilot/internal/services"
)

// SystemHandlers serves health, targets, validation and job endpoints
type SystemHandlers struct {
	ledgerDB   *database.DB
	history    *ledger.HistoryRepository
	regimes    *market_regime.RegimePersistence
	allocation *allocation.Engine
	validation *services.ValidationService
	scheduler  *scheduler.Scheduler
	log        zerolog.Logger
	startedAt  time.Time
}

// NewSystemHandlers creates a new SystemHandlers
func NewSystemHandlers(
	ledgerDB *database.DB,
	history *ledger.HistoryRepository,
	regimes *market_regime.RegimePersistence,
	alloc *allocation.Engine,
	validation *services.ValidationService,
	sched *scheduler.Scheduler,
	log zerolog.Logger,
) *SystemHandlers {
	return &SystemHandlers{
		ledgerDB:   ledgerDB,
		history:    history,
		regimes:    regimes,
		allocation: alloc,
		validation: validation,
		scheduler:  sched,
		log:        log.With().Str("handler", "system").Logger(),
		startedAt:  time.Now(),
	}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	LastCycle     *time.Time `json:"last_cycle,omitempty"`
	Status        string     `json:"status"`
	Error         string     `json:"error,omitempty"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	LedgerBytes   int64      `json:"ledger_bytes"`
	CPUPercent    float64    `json:"cpu_percent"`
	MemoryPercent float64    `json:"memory_percent"`
}

// HandleHealth handles GET /health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}
	resp.CPUPercent, resp.MemoryPercent = h.getSystemStats()

	status := http.StatusOK
	if err := h.ledgerDB.HealthCheck(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Ledger health check failed")
		resp.Status = "degraded"
		resp.Error = err.Error()
		status = http.StatusServiceUnavailable
	}

	if stats, err := h.ledgerDB.GetStats(); err == nil {
		resp.LedgerBytes = stats.SizeBytes + stats.WALSizeBytes
	}
	if latest, err := h.history.Latest(r.Context()); err == nil && latest != nil {
		resp.LastCycle = &latest.Timestamp
	}

	h.writeJSON(w, status, resp)
}

// HandleTargets handles GET /api/targets.
// Returns the full regime table and the row for the current regime.
func (h *SystemHandlers) HandleTargets(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"table": h.allocation.Table(),
	}

	state, err := h.regimes.Load(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load regime state")
		http.Error(w, "Failed to load regime state", http.StatusInternalServerError)
		return
	}
	if state != nil {
		current, err := h.allocation.Targets(state.Regime)
		if err != nil {
			h.log.Warn().Err(err).Str("regime", string(state.Regime)).Msg("Persisted regime has no targets")
		} else {
			body["regime"] = state.Regime
			body["current"] = current
		}
	}

	h.writeJSON(w, http.StatusOK, body)
}

// HandleValidation handles GET /api/validation
func (h *SystemHandlers) HandleValidation(w http.ResponseWriter, r *http.Request) {
	if h.validation == nil {
		http.Error(w, "Validation not configured", http.StatusNotFound)
		return
	}
	rep := h.validation.Last()
	if rep == nil {
		http.Error(w, "No validation report yet", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

// JobStatus describes one scheduled job
type JobStatus struct {
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev,omitempty"`
	Name string    `json:"name"`
}

// HandleJobs handles GET /api/jobs
func (h *SystemHandlers) HandleJobs(w http.ResponseWriter, r *http.Request) {
	jobs := make([]JobStatus, 0)
	if h.scheduler != nil {
		for name, entry := range h.scheduler.Jobs() {
			jobs = append(jobs, JobStatus{Name: name, Next: entry.Next, Prev: entry.Prev})
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// getSystemStats returns CPU and RAM usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	// 100ms sample, single aggregate value
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
