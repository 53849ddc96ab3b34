package domain

import "time"

// HistorySchemaVersion is written into every history record.
// Bump it when a field changes meaning; new optional fields do not need a bump.
const HistorySchemaVersion = 1

// AlertSeverity ranks divergence alerts
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityHigh     AlertSeverity = "high"
	SeverityMedium   AlertSeverity = "medium"
	SeveritySafe     AlertSeverity = "safe"
)

// Alert is a divergence alert raised from raw indicator values
type Alert struct {
	Type     string        `json:"type"`
	Severity AlertSeverity `json:"severity"`
	Message  string        `json:"message"`
	Action   string        `json:"action,omitempty"`
}

// Degraded condition codes recorded on a cycle
const (
	DegradedDriftUnavailable     = "drift_unavailable"
	DegradedIndicatorStale       = "indicator_stale"
	DegradedIndicatorNeutral     = "indicator_neutral"
	DegradedPositionsUnavailable = "positions_unavailable"
	DegradedRegimeStale          = "regime_stale"
)

// HistoryRecord is one append-only entry of the cycle history.
// Records are never updated or deleted once written.
type HistoryRecord struct {
	Timestamp      time.Time          `json:"timestamp"`
	CategoryScores map[string]float64 `json:"category_scores"`
	CycleID        string             `json:"cycle_id"`
	Regime         Regime             `json:"regime"`
	PreviousRegime Regime             `json:"previous_regime,omitempty"`
	Transition     Transition         `json:"transition,omitempty"`
	Alerts         []Alert            `json:"alerts,omitempty"`
	Degraded       []string           `json:"degraded,omitempty"`
	ID             int64              `json:"id"`
	Score          float64            `json:"score"`
	SchemaVersion  int                `json:"schema_version"`
	// ScoreUnavailable marks a cycle where no indicator produced a reading.
	// Score then holds the neutral filler and carries no signal.
	ScoreUnavailable bool `json:"score_unavailable,omitempty"`
}

// HasScore reports whether Score reflects real indicator readings
func (r HistoryRecord) HasScore() bool {
	return !r.ScoreUnavailable
}

// HasCriticalAlert reports whether any alert on the record is critical
func (r HistoryRecord) HasCriticalAlert() bool {
	for _, a := range r.Alerts {
		if a.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
