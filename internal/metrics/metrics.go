// Package metrics exposes cycle metrics for Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Recorder records cycle metrics into its own registry
type Recorder struct {
	registry    *prometheus.Registry
	cycles      *prometheus.CounterVec
	degraded    *prometheus.CounterVec
	alerts      *prometheus.CounterVec
	score       prometheus.Gauge
	regime      prometheus.Gauge
	drift       prometheus.Gauge
	correlation *prometheus.GaugeVec
	duration    prometheus.Histogram
}

// New creates a recorder with a fresh registry
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		cycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskpilot_cycles_total",
				Help: "Scoring cycles by outcome",
			},
			[]string{"outcome"},
		),
		degraded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskpilot_degraded_total",
				Help: "Degraded conditions raised by completed cycles",
			},
			[]string{"reason"},
		),
		alerts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskpilot_alerts_total",
				Help: "Alerts fired by type and severity",
			},
			[]string{"type", "severity"},
		),
		score: factory.NewGauge(prometheus.GaugeOpts{
			Name: "riskpilot_composite_score",
			Help: "Composite risk score of the last cycle (0-100, higher is riskier)",
		}),
		regime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "riskpilot_regime_index",
			Help: "Index of the current regime band, 0 is the calmest",
		}),
		drift: factory.NewGauge(prometheus.GaugeOpts{
			Name: "riskpilot_aggregate_drift",
			Help: "Aggregate absolute drift from target weights (0-200)",
		}),
		correlation: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "riskpilot_validation_correlation",
				Help: "Score vs forward benchmark return correlation by horizon",
			},
			[]string{"horizon"},
		),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskpilot_cycle_duration_seconds",
			Help:    "Duration of completed cycles",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Registry returns the registry backing the recorder
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// CycleCompleted records the outcome of a committed cycle.
// drift is nil when the drift step was skipped.
func (r *Recorder) CycleCompleted(score float64, regimeIndex int, drift *float64, degraded []string, alerts []domain.Alert, took time.Duration) {
	r.cycles.WithLabelValues(OutcomeCompleted).Inc()
	r.score.Set(score)
	r.regime.Set(float64(regimeIndex))
	if drift != nil {
		r.drift.Set(*drift)
	}
	for _, reason := range degraded {
		r.degraded.WithLabelValues(reason).Inc()
	}
	for _, a := range alerts {
		r.alerts.WithLabelValues(a.Type, string(a.Severity)).Inc()
	}
	r.duration.Observe(took.Seconds())
}

// CycleSkipped records a cycle that did not run because another held the lock
func (r *Recorder) CycleSkipped() {
	r.cycles.WithLabelValues(OutcomeSkipped).Inc()
}

// CycleFailed records a cycle that aborted without committing
func (r *Recorder) CycleFailed() {
	r.cycles.WithLabelValues(OutcomeFailed).Inc()
}

// ValidationCorrelation records the correlation measured for a horizon
func (r *Recorder) ValidationCorrelation(horizon int, value float64) {
	r.correlation.WithLabelValues(strconv.Itoa(horizon)).Set(value)
}
