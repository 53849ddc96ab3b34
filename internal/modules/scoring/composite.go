package scoring

import (
	"sort"
	"time"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/modules/policy"
	"github.com/rs/zerolog"
)

// Verification summarises how many indicators produced a fresh reading
type Verification struct {
	Warnings []string `json:"warnings,omitempty"`
	Critical []string `json:"critical,omitempty"`
	Passed   int      `json:"passed"`
	Total    int      `json:"total"`
}

// Result is the output of one scoring pass
type Result struct {
	Composite    domain.CompositeScore `json:"composite"`
	Verification Verification          `json:"verification"`
}

// Degraded returns the degraded-condition codes raised by scoring
func (r Result) Degraded() []string {
	var stale, neutral bool
	for _, ind := range r.Composite.Indicators {
		stale = stale || ind.Stale
		neutral = neutral || ind.Neutral
	}
	var out []string
	if stale {
		out = append(out, domain.DegradedIndicatorStale)
	}
	if neutral {
		out = append(out, domain.DegradedIndicatorNeutral)
	}
	return out
}

// Scorer computes the weighted composite score over all categories
type Scorer struct {
	policy     *policy.Policy
	normalizer *Normalizer
	log        zerolog.Logger
}

// NewScorer creates a composite scorer for a validated policy
func NewScorer(p *policy.Policy, log zerolog.Logger) *Scorer {
	return &Scorer{
		policy:     p,
		normalizer: NewNormalizer(log),
		log:        log.With().Str("component", "composite_scorer").Logger(),
	}
}

// Score normalizes every configured indicator and aggregates them.
// aggregate = sum(category weight * mean sub-score of category),
// clamped to [0,100] and rounded to one decimal.
func (s *Scorer) Score(at time.Time, observations map[string]domain.Observation, memory Memory) Result {
	composite := domain.CompositeScore{
		Timestamp:      at,
		CategoryScores: make(map[string]float64, len(s.policy.Categories)),
	}
	verification := Verification{}

	var aggregate float64
	for _, cat := range s.policy.Categories {
		var sum float64
		for _, cfg := range cat.Indicators {
			var obs *domain.Observation
			if o, ok := observations[cfg.Name]; ok {
				obs = &o
			}
			ind := s.normalizer.Normalize(cfg, cat.Name, cat.Weight, obs, memory[cfg.Name], at)
			composite.Indicators = append(composite.Indicators, ind)
			sum += ind.SubScore

			verification.Total++
			switch {
			case ind.Fresh():
				verification.Passed++
			case cfg.Critical:
				verification.Critical = append(verification.Critical, cfg.DisplayName()+": "+ind.Warning)
			default:
				verification.Warnings = append(verification.Warnings, cfg.DisplayName()+": "+ind.Warning)
			}
		}

		// Empty categories are rejected at load time
		mean := sum / float64(len(cat.Indicators))
		composite.CategoryScores[cat.Name] = round1(mean)
		aggregate += cat.Weight * mean
	}

	composite.Score = round1(clamp(aggregate))

	s.log.Info().
		Float64("score", composite.Score).
		Int("passed", verification.Passed).
		Int("total", verification.Total).
		Int("critical_issues", len(verification.Critical)).
		Msg("Composite score computed")

	return Result{Composite: composite, Verification: verification}
}

// NewHistoryRecord builds the record appended to the history log for a cycle
func NewHistoryRecord(
	cycleID string,
	score domain.CompositeScore,
	regime, previous domain.Regime,
	transition domain.Transition,
	alerts []domain.Alert,
	degraded []string,
) domain.HistoryRecord {
	categories := make(map[string]float64, len(score.CategoryScores))
	for k, v := range score.CategoryScores {
		categories[k] = v
	}

	deg := append([]string(nil), degraded...)
	sort.Strings(deg)

	return domain.HistoryRecord{
		CycleID:        cycleID,
		Timestamp:      score.Timestamp,
		Score:          score.Score,
		CategoryScores: categories,
		Regime:         regime,
		PreviousRegime: previous,
		Transition:     transition,
		Alerts:         append([]domain.Alert(nil), alerts...),
		Degraded:       deg,
		SchemaVersion:  domain.HistorySchemaVersion,
	}
}
