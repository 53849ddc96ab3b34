// Package allocation resolves regime-dependent target weights per bucket.
package allocation

import (
	"fmt"
	"math"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/modules/policy"
)

// Engine holds the precomputed target table for every regime.
// The table is built and checked once; lookups never fail for a known regime.
type Engine struct {
	table map[domain.Regime]domain.AllocationTarget
	order []domain.Regime
}

// NewEngine precomputes the target table from a validated policy
func NewEngine(p *policy.Policy) (*Engine, error) {
	e := &Engine{
		table: make(map[domain.Regime]domain.AllocationTarget, len(p.Regimes)),
		order: p.RegimeNames(),
	}

	for _, regime := range e.order {
		if _, ok := p.Allocation.Regimes[regime]; !ok {
			return nil, fmt.Errorf("no allocation entry for regime %s", regime)
		}
		target := p.Allocation.Resolve(regime)
		if err := Validate(target); err != nil {
			return nil, fmt.Errorf("allocation for regime %s: %w", regime, err)
		}
		e.table[regime] = target
	}

	return e, nil
}

// Targets returns a copy of the target weights for a regime
func (e *Engine) Targets(regime domain.Regime) (domain.AllocationTarget, error) {
	target, ok := e.table[regime]
	if !ok {
		return nil, fmt.Errorf("unknown regime %s", regime)
	}
	out := make(domain.AllocationTarget, len(target))
	for b, w := range target {
		out[b] = round(w, 4)
	}
	return out, nil
}

// Table returns every regime's targets in band order
func (e *Engine) Table() []RegimeTargets {
	rows := make([]RegimeTargets, 0, len(e.order))
	for _, regime := range e.order {
		target, _ := e.Targets(regime)
		rows = append(rows, RegimeTargets{Regime: regime, Targets: target})
	}
	return rows
}

// RegimeTargets is one row of the target table
type RegimeTargets struct {
	Regime  domain.Regime           `json:"regime"`
	Targets domain.AllocationTarget `json:"targets"`
}

// Validate checks a target table: known buckets, no negative weight, sum 100 ± 0.01
func Validate(target domain.AllocationTarget) error {
	for bucket, w := range target {
		if !bucket.Valid() {
			return fmt.Errorf("unknown bucket %s", bucket)
		}
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("invalid weight %.4f for %s", w, bucket)
		}
	}
	if sum := target.Total(); math.Abs(sum-100) > 0.01 {
		return fmt.Errorf("weights sum to %.4f, expected 100", sum)
	}
	return nil
}

// round rounds a float64 to n decimal places
func round(val float64, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(val*multiplier) / multiplier
}
