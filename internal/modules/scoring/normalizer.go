// Package scoring turns raw indicator observations into sub-scores and the
// weighted composite risk score.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/modules/policy"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// NeutralScore is used when an indicator has neither a current value nor a
// last-known sub-score
const NeutralScore = 50.0

// History is what the normalizer remembers about one indicator
type History struct {
	LastAt       time.Time
	LastSubScore *float64
	Window       []float64 // prior fresh raw values, oldest first
}

// Memory maps indicator names to their history.
// It is loaded from the ledger before scoring so that scoring never blocks.
type Memory map[string]History

// Normalizer maps raw observations onto the 0-100 risk scale
type Normalizer struct {
	log zerolog.Logger
}

// NewNormalizer creates a new signal normalizer
func NewNormalizer(log zerolog.Logger) *Normalizer {
	return &Normalizer{
		log: log.With().Str("component", "normalizer").Logger(),
	}
}

// Normalize produces the sub-score for one indicator.
// It never fails: unusable input falls back to the last-known sub-score
// (flagged Stale) or to NeutralScore (flagged Neutral).
func (n *Normalizer) Normalize(
	cfg policy.Indicator,
	category string,
	weight float64,
	obs *domain.Observation,
	hist History,
	now time.Time,
) domain.Indicator {
	ind := domain.Indicator{
		Category: category,
		Name:     cfg.Name,
		Weight:   weight,
		Critical: cfg.Critical,
	}

	if obs == nil {
		return n.fallback(ind, hist, "no observation")
	}
	ind.ObservedAt = obs.Timestamp
	ind.Status = obs.Status

	if cfg.StaleAfter > 0 && !obs.Timestamp.IsZero() && now.Sub(obs.Timestamp) > cfg.StaleAfter {
		return n.fallback(ind, hist, fmt.Sprintf("observation is %s old", now.Sub(obs.Timestamp).Round(time.Minute)))
	}

	if cfg.Rule.Kind == policy.RuleStatus {
		score, ok := statusScore(cfg.Rule.Statuses, obs.Status)
		if !ok {
			return n.fallback(ind, hist, fmt.Sprintf("unknown status %q", obs.Status))
		}
		ind.SubScore = clamp(score)
		return ind
	}

	if !obs.HasValue() {
		return n.fallback(ind, hist, "no numeric value")
	}
	raw := *obs.Value
	ind.Raw = &raw

	if !cfg.InRange(raw) {
		return n.fallback(ind, hist, fmt.Sprintf("value %.4g outside valid range [%g, %g]", raw, cfg.ValidRange[0], cfg.ValidRange[1]))
	}

	ind.SubScore = ScoreValue(cfg.Rule, raw, hist.Window)
	return ind
}

func (n *Normalizer) fallback(ind domain.Indicator, hist History, reason string) domain.Indicator {
	ind.Warning = reason
	if hist.LastSubScore != nil {
		ind.SubScore = clamp(*hist.LastSubScore)
		ind.Stale = true
	} else {
		ind.SubScore = NeutralScore
		ind.Neutral = true
	}

	n.log.Warn().
		Str("indicator", ind.Name).
		Str("reason", reason).
		Bool("stale", ind.Stale).
		Float64("sub_score", ind.SubScore).
		Msg("Indicator unavailable, using fallback")
	return ind
}

// ScoreValue applies a numeric rule to a raw value.
// The result is clamped to [0,100].
func ScoreValue(rule policy.Rule, raw float64, window []float64) float64 {
	switch rule.Kind {
	case policy.RuleLinear:
		return linearScore(raw, rule.Low, rule.High, rule.Inverse)
	case policy.RulePercentile:
		return percentileScore(rule, raw, window)
	case policy.RuleThresholds:
		return thresholdScore(rule, raw)
	}
	return NeutralScore
}

func linearScore(raw, low, high float64, inverse bool) float64 {
	if high <= low {
		return NeutralScore
	}
	score := clamp((raw - low) / (high - low) * 100)
	if inverse {
		score = 100 - score
	}
	return score
}

// percentileScore ranks raw within the trailing window of prior values.
// Short windows fall back to the linear bounds when they are configured.
func percentileScore(rule policy.Rule, raw float64, window []float64) float64 {
	if len(window) > rule.Window {
		window = window[len(window)-rule.Window:]
	}
	if len(window) < rule.MinSamples {
		if rule.High > rule.Low {
			return linearScore(raw, rule.Low, rule.High, rule.Inverse)
		}
		return NeutralScore
	}

	sorted := make([]float64, len(window))
	copy(sorted, window)
	sort.Float64s(sorted)

	score := clamp(stat.CDF(raw, stat.Empirical, sorted, nil) * 100)
	if rule.Inverse {
		score = 100 - score
	}
	return score
}

func thresholdScore(rule policy.Rule, raw float64) float64 {
	for _, step := range rule.Steps {
		if !rule.Inverse && raw < step.Bound {
			return clamp(step.Score)
		}
		if rule.Inverse && raw > step.Bound {
			return clamp(step.Score)
		}
	}
	return clamp(rule.Otherwise)
}

func statusScore(statuses map[string]float64, status string) (float64, bool) {
	if status == "" {
		return 0, false
	}
	if score, ok := statuses[status]; ok {
		return score, true
	}
	for name, score := range statuses {
		if strings.EqualFold(name, strings.TrimSpace(status)) {
			return score, true
		}
	}
	return 0, false
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return NeutralScore
	}
	return math.Max(0, math.Min(100, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
