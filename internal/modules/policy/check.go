package policy

import (
	"math"
	"sort"
	"strings"

	"github.com/aristath/riskpilot/internal/domain"
)

const (
	weightTolerance     = 1e-9
	allocationTolerance = 0.01
)

// check runs the semantic validation that struct tags cannot express
func (p *Policy) check(cerr *ConfigError) {
	p.checkCategories(cerr)
	p.checkRegimes(cerr)
	p.checkAllocation(cerr)
	p.checkClassification(cerr)
	p.checkAlerts(cerr)
}

func (p *Policy) checkCategories(cerr *ConfigError) {
	var weightSum float64
	seenCategories := make(map[string]bool)
	seenIndicators := make(map[string]bool)

	for _, cat := range p.Categories {
		if seenCategories[cat.Name] {
			cerr.add("category %s: duplicate name", cat.Name)
		}
		seenCategories[cat.Name] = true
		weightSum += cat.Weight

		if len(cat.Indicators) == 0 {
			cerr.add("category %s: has no indicators", cat.Name)
		}
		for _, ind := range cat.Indicators {
			if seenIndicators[ind.Name] {
				cerr.add("indicator %s: duplicate name", ind.Name)
			}
			seenIndicators[ind.Name] = true
			checkRule(cerr, ind)
			if len(ind.ValidRange) == 2 && ind.ValidRange[0] >= ind.ValidRange[1] {
				cerr.add("indicator %s: valid_range min must be below max", ind.Name)
			}
		}
	}

	if math.Abs(weightSum-1.0) > weightTolerance {
		cerr.add("category weights sum to %.6f, expected 1.0", weightSum)
	}
}

func checkRule(cerr *ConfigError, ind Indicator) {
	r := ind.Rule
	switch r.Kind {
	case RuleLinear:
		if r.High <= r.Low {
			cerr.add("indicator %s: linear rule needs high > low", ind.Name)
		}
	case RulePercentile:
		if r.Window < 2 {
			cerr.add("indicator %s: percentile window must be at least 2", ind.Name)
		}
		if r.MinSamples < 2 || r.MinSamples > r.Window {
			cerr.add("indicator %s: percentile min_samples must be within [2, window]", ind.Name)
		}
		if r.High < r.Low {
			cerr.add("indicator %s: percentile fallback needs high >= low", ind.Name)
		}
	case RuleThresholds:
		if len(r.Steps) == 0 {
			cerr.add("indicator %s: thresholds rule has no steps", ind.Name)
		}
		for i := 1; i < len(r.Steps); i++ {
			prev, cur := r.Steps[i-1].Bound, r.Steps[i].Bound
			if !r.Inverse && cur <= prev {
				cerr.add("indicator %s: threshold bounds must be strictly ascending", ind.Name)
				break
			}
			if r.Inverse && cur >= prev {
				cerr.add("indicator %s: inverse threshold bounds must be strictly descending", ind.Name)
				break
			}
		}
	case RuleStatus:
		if len(r.Statuses) == 0 {
			cerr.add("indicator %s: status rule has no statuses", ind.Name)
		}
		for status, score := range r.Statuses {
			if score < 0 || score > 100 {
				cerr.add("indicator %s: status %s score %.1f outside [0,100]", ind.Name, status, score)
			}
		}
	}
}

func (p *Policy) checkRegimes(cerr *ConfigError) {
	seen := make(map[domain.Regime]bool)
	for i, band := range p.Regimes {
		if seen[band.Name] {
			cerr.add("regime %s: duplicate name", band.Name)
		}
		seen[band.Name] = true

		if i == 0 && band.Lower != 0 {
			cerr.add("regime %s: first band must start at 0", band.Name)
		}
		if i > 0 && band.Lower <= p.Regimes[i-1].Lower {
			cerr.add("regime %s: lower bound must be above %s", band.Name, p.Regimes[i-1].Name)
		}
	}
}

func (p *Policy) checkAllocation(cerr *ConfigError) {
	for bucket, w := range p.Allocation.Base {
		if !bucket.Valid() {
			cerr.add("allocation.base: unknown bucket %s", bucket)
		}
		if w < 0 {
			cerr.add("allocation.base: negative weight for %s", bucket)
		}
	}

	for name, entry := range p.Allocation.Regimes {
		if _, ok := p.RegimeIndex(name); !ok {
			cerr.add("allocation.regimes: unknown regime %s", name)
		}
		for bucket, m := range entry.Multipliers {
			if !bucket.Valid() {
				cerr.add("allocation.regimes.%s: unknown bucket %s", name, bucket)
			}
			if m < 0 {
				cerr.add("allocation.regimes.%s: negative multiplier for %s", name, bucket)
			}
		}
		for bucket, o := range entry.Overrides {
			if !bucket.Valid() {
				cerr.add("allocation.regimes.%s: unknown bucket %s", name, bucket)
			}
			if o < 0 {
				cerr.add("allocation.regimes.%s: negative override for %s", name, bucket)
			}
		}
	}

	for _, band := range p.Regimes {
		if _, ok := p.Allocation.Regimes[band.Name]; !ok {
			cerr.add("allocation.regimes: missing entry for regime %s", band.Name)
			continue
		}
		target := p.Allocation.Resolve(band.Name)
		if sum := target.Total(); math.Abs(sum-100) > allocationTolerance {
			cerr.add("allocation for regime %s sums to %.4f, expected 100", band.Name, sum)
		}
	}
}

// Resolve computes the target weights for a regime:
// override when present, base times multiplier otherwise.
func (a Allocation) Resolve(regime domain.Regime) domain.AllocationTarget {
	entry := a.Regimes[regime]
	target := make(domain.AllocationTarget, len(a.Base))

	for bucket, base := range a.Base {
		m, ok := entry.Multipliers[bucket]
		if !ok {
			m = 1
		}
		target[bucket] = base * m
	}
	for bucket, o := range entry.Overrides {
		target[bucket] = o
	}
	return target
}

func (p *Policy) checkClassification(cerr *ConfigError) {
	c := p.Classification
	for _, sym := range intersect(c.CoreSymbols, c.GrowthSymbols) {
		cerr.add("classification: %s is in both core_symbols and growth_symbols", sym)
	}
	for _, sym := range intersect(c.HardAssetSymbols, c.CoreSymbols) {
		cerr.add("classification: %s is in both hard_asset_symbols and core_symbols", sym)
	}
	for _, sym := range intersect(c.HardAssetSymbols, c.GrowthSymbols) {
		cerr.add("classification: %s is in both hard_asset_symbols and growth_symbols", sym)
	}
}

func (p *Policy) checkAlerts(cerr *ConfigError) {
	seen := make(map[string]bool)
	for _, rule := range p.Alerts.Rules {
		if seen[rule.Type] {
			cerr.add("alert %s: duplicate type", rule.Type)
		}
		seen[rule.Type] = true

		if len(rule.All) == 0 && len(rule.Any) == 0 {
			cerr.add("alert %s: has no conditions", rule.Type)
		}
		if len(rule.Any) > 0 && rule.MinAny > len(rule.Any) {
			cerr.add("alert %s: min_any %d exceeds %d any-conditions", rule.Type, rule.MinAny, len(rule.Any))
		}
		for _, cond := range append(append([]Condition{}, rule.All...), rule.Any...) {
			ind, _, ok := p.LookupIndicator(cond.Indicator)
			if !ok {
				cerr.add("alert %s: unknown indicator %s", rule.Type, cond.Indicator)
				continue
			}
			if cond.Status != "" && (ind.Rule.Kind != RuleStatus || cond.Op != "eq") {
				cerr.add("alert %s: status condition on %s needs a status indicator and op eq", rule.Type, cond.Indicator)
			}
		}
	}
}

// intersect returns the upper-cased symbols present in both lists, sorted
func intersect(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[strings.ToUpper(s)] = true
	}
	var out []string
	seen := make(map[string]bool)
	for _, s := range b {
		u := strings.ToUpper(s)
		if set[u] && !seen[u] {
			out = append(out, u)
			seen[u] = true
		}
	}
	sort.Strings(out)
	return out
}
