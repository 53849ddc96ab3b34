// Package alerts raises divergence alerts from raw indicator readings.
//
// A divergence is a combination of readings that the composite score alone
// would hide, e.g. a calm volatility index while credit spreads widen. Rules
// come from the policy and are evaluated against fresh readings only: a
// stale or neutral indicator never satisfies a condition.
package alerts

import (
	"strings"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/modules/policy"
	"github.com/rs/zerolog"
)

// AllClearType is the alert type raised when nothing else fired
const AllClearType = "ALL_CLEAR"

// Detector evaluates the policy alert rules
type Detector struct {
	cfg policy.Alerts
	log zerolog.Logger
}

// NewDetector creates a detector for the policy's alert table
func NewDetector(cfg policy.Alerts, log zerolog.Logger) *Detector {
	return &Detector{
		cfg: cfg,
		log: log.With().Str("component", "alert_detector").Logger(),
	}
}

// Detect returns the alerts fired by a composite score, in rule order
func (d *Detector) Detect(score domain.CompositeScore) []domain.Alert {
	var fired []domain.Alert
	for _, rule := range d.cfg.Rules {
		if !d.matches(rule, score) {
			continue
		}
		fired = append(fired, domain.Alert{
			Type:     rule.Type,
			Severity: rule.Severity,
			Message:  rule.Message,
			Action:   rule.Action,
		})
		d.log.Info().
			Str("type", rule.Type).
			Str("severity", string(rule.Severity)).
			Msg("Divergence alert fired")
	}

	if len(fired) == 0 && d.cfg.AllClear != nil && score.Score <= d.cfg.AllClear.MaxScore {
		fired = append(fired, domain.Alert{
			Type:     AllClearType,
			Severity: domain.SeveritySafe,
			Message:  d.cfg.AllClear.Message,
			Action:   d.cfg.AllClear.Action,
		})
	}
	return fired
}

func (d *Detector) matches(rule policy.AlertRule, score domain.CompositeScore) bool {
	for _, c := range rule.All {
		if !holds(c, score) {
			return false
		}
	}
	if len(rule.Any) == 0 {
		return len(rule.All) > 0
	}

	hits := 0
	for _, c := range rule.Any {
		if holds(c, score) {
			hits++
		}
	}
	return hits >= rule.MinAny
}

// holds evaluates one condition against a fresh reading
func holds(c policy.Condition, score domain.CompositeScore) bool {
	ind, ok := score.Indicator(c.Indicator)
	if !ok || !ind.Fresh() {
		return false
	}

	if c.Status != "" {
		return c.Op == "eq" && strings.EqualFold(ind.Status, c.Status)
	}
	if ind.Raw == nil {
		return false
	}

	v := *ind.Raw
	switch c.Op {
	case "lt":
		return v < c.Value
	case "lte":
		return v <= c.Value
	case "gt":
		return v > c.Value
	case "gte":
		return v >= c.Value
	case "eq":
		return v == c.Value
	}
	return false
}

// Critical returns only the critical alerts
func Critical(alerts []domain.Alert) []domain.Alert {
	var out []domain.Alert
	for _, a := range alerts {
		if a.Severity == domain.SeverityCritical {
			out = append(out, a)
		}
	}
	return out
}
