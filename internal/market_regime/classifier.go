// Package market_regime maps the composite risk score onto a discrete regime
// using a hysteresis state machine.
package market_regime

import (
	"time"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/modules/policy"
	"github.com/rs/zerolog"
)

// Band is one regime with its lower score bound
type Band struct {
	Name  domain.Regime
	Lower float64
}

// Assessment describes what the classifier decided for one cycle
type Assessment struct {
	Regime           domain.Regime     `json:"regime"`
	Previous         domain.Regime     `json:"previous,omitempty"`
	RawTarget        domain.Regime     `json:"raw_target,omitempty"`
	Transition       domain.Transition `json:"transition"`
	PendingDirection int               `json:"pending_direction"`
	PendingCount     int               `json:"pending_count"`
	Stale            bool              `json:"stale,omitempty"`
}

// Classifier is the regime hysteresis state machine.
// It is pure: state goes in, state comes out, persistence is the caller's job.
type Classifier struct {
	log         zerolog.Logger
	bands       []Band
	margin      float64
	confirmUp   int
	confirmDown int
}

// NewClassifier creates a classifier from the policy's band table
func NewClassifier(p *policy.Policy, log zerolog.Logger) *Classifier {
	bands := make([]Band, len(p.Regimes))
	for i, r := range p.Regimes {
		bands[i] = Band{Name: r.Name, Lower: r.Lower}
	}
	return &Classifier{
		log:         log.With().Str("component", "regime_classifier").Logger(),
		bands:       bands,
		margin:      p.Hysteresis.Margin,
		confirmUp:   p.Hysteresis.ConfirmUp,
		confirmDown: p.Hysteresis.ConfirmDown,
	}
}

// BandIndex returns the index of the band containing score
func (c *Classifier) BandIndex(score float64) int {
	idx := 0
	for i, b := range c.bands {
		if score >= b.Lower {
			idx = i
		}
	}
	return idx
}

// RegimeFor returns the regime implied by a score without hysteresis
func (c *Classifier) RegimeFor(score float64) domain.Regime {
	return c.bands[c.BandIndex(score)].Name
}

func (c *Classifier) indexOf(r domain.Regime) (int, bool) {
	for i, b := range c.bands {
		if b.Name == r {
			return i, true
		}
	}
	return -1, false
}

// Classify advances the state machine by one cycle.
//
// prev is nil when no state has been persisted yet; the first score then
// assigns the regime directly. A nil score leaves the state untouched and
// reports the assessment as stale.
func (c *Classifier) Classify(prev *domain.RegimeState, score *float64, at time.Time) (domain.RegimeState, Assessment) {
	if score == nil {
		if prev == nil {
			first := c.bands[0].Name
			return domain.RegimeState{Regime: first}, Assessment{Regime: first, Transition: domain.TransitionNone, Stale: true}
		}
		c.log.Warn().Str("regime", string(prev.Regime)).Msg("Score unavailable, holding regime")
		return *prev, Assessment{
			Regime:           prev.Regime,
			Previous:         prev.Regime,
			Transition:       domain.TransitionNone,
			PendingDirection: prev.PendingDirection,
			PendingCount:     prev.PendingCount,
			Stale:            true,
		}
	}

	s := *score
	raw := c.BandIndex(s)
	next := domain.RegimeState{UpdatedAt: at, LastScore: &s}

	cur := -1
	if prev != nil {
		cur, _ = c.indexOf(prev.Regime)
	}
	if cur < 0 {
		// No state yet, or the persisted regime no longer exists in the policy
		next.Regime = c.bands[raw].Name
		a := Assessment{Regime: next.Regime, RawTarget: next.Regime, Transition: domain.TransitionInitial}
		if prev != nil {
			a.Previous = prev.Regime
		}
		c.log.Info().Str("regime", string(next.Regime)).Float64("score", s).Msg("Initial regime assigned")
		return next, a
	}

	next.Regime = prev.Regime
	a := Assessment{
		Regime:     prev.Regime,
		Previous:   prev.Regime,
		RawTarget:  c.bands[raw].Name,
		Transition: domain.TransitionNone,
	}

	switch {
	case raw > cur:
		count, target := 1, raw
		if prev.PendingDirection > 0 {
			count = prev.PendingCount + 1
			if p, ok := c.indexOf(prev.PendingTarget); ok && p < target {
				target = p
			}
		}
		if count >= c.confirmUp {
			next.Regime = c.bands[target].Name
			a.Transition = domain.TransitionUp
		} else {
			next.PendingDirection, next.PendingCount, next.PendingTarget = 1, count, c.bands[target].Name
		}

	case cur > 0 && s < c.bands[cur].Lower-c.margin:
		target := c.BandIndex(s + c.margin)
		count := 1
		if prev.PendingDirection < 0 {
			count = prev.PendingCount + 1
			if p, ok := c.indexOf(prev.PendingTarget); ok && p > target {
				target = p
			}
		}
		if count >= c.confirmDown {
			next.Regime = c.bands[target].Name
			a.Transition = domain.TransitionDown
		} else {
			next.PendingDirection, next.PendingCount, next.PendingTarget = -1, count, c.bands[target].Name
		}
	}

	a.Regime = next.Regime
	a.PendingDirection = next.PendingDirection
	a.PendingCount = next.PendingCount

	if a.Transition != domain.TransitionNone {
		c.log.Info().
			Str("from", string(prev.Regime)).
			Str("to", string(next.Regime)).
			Float64("score", s).
			Msg("Regime transition")
	}
	return next, a
}
