// Package portfolio assigns holdings to allocation buckets.
package portfolio

import (
	"strings"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/modules/policy"
)

// Rule is one row of the classification table.
// Rules are evaluated top-down and the first match wins.
type Rule struct {
	Match  func(domain.Position) bool
	Name   string
	Bucket domain.Bucket
}

// CatchAllRule names the final rule that receives unmatched positions
const CatchAllRule = "catch_all"

// Classifier maps positions onto buckets through an ordered rule table
type Classifier struct {
	rules []Rule
}

// NewClassifier builds the rule table from the policy's symbol sets
func NewClassifier(c policy.Classification) *Classifier {
	hedge := symbolSet(c.HedgeSymbols)
	income := symbolSet(c.IncomeSymbols)
	core := symbolSet(c.CoreSymbols)
	growth := symbolSet(c.GrowthSymbols)
	hardAsset := symbolSet(c.HardAssetSymbols)

	rules := []Rule{
		{
			Name:   "hedge_derivative",
			Bucket: domain.BucketInsuranceHedge,
			Match: func(p domain.Position) bool {
				return p.Instrument.IsDerivative() && hedge[p.UnderlyingSymbol()]
			},
		},
		{
			Name:   "income_derivative",
			Bucket: domain.BucketIncomeStrategy,
			Match: func(p domain.Position) bool {
				return p.Instrument.IsDerivative() && income[p.UnderlyingSymbol()]
			},
		},
		{
			Name:   "core_equity",
			Bucket: domain.BucketStrategicCore,
			Match: func(p domain.Position) bool {
				return p.Instrument == domain.InstrumentEquity && core[p.UnderlyingSymbol()]
			},
		},
		{
			Name:   "growth_equity",
			Bucket: domain.BucketGrowthEngine,
			Match: func(p domain.Position) bool {
				return p.Instrument == domain.InstrumentEquity && growth[p.UnderlyingSymbol()]
			},
		},
	}

	if c.EquityIncomeAsIncome {
		rules = append(rules, Rule{
			Name:   "income_equity",
			Bucket: domain.BucketIncomeStrategy,
			Match: func(p domain.Position) bool {
				return p.Instrument == domain.InstrumentEquity && income[p.UnderlyingSymbol()]
			},
		})
	}

	rules = append(rules,
		Rule{
			Name:   "hard_asset_equity",
			Bucket: domain.BucketHardAssetReserve,
			Match: func(p domain.Position) bool {
				return p.Instrument == domain.InstrumentEquity && hardAsset[p.UnderlyingSymbol()]
			},
		},
		Rule{
			Name:   "cash",
			Bucket: domain.BucketCashReserve,
			Match: func(p domain.Position) bool {
				return p.Instrument == domain.InstrumentCash
			},
		},
		Rule{
			Name:   CatchAllRule,
			Bucket: domain.BucketSpeculativeAlpha,
			Match:  func(domain.Position) bool { return true },
		},
	)

	return &Classifier{rules: rules}
}

// Rules returns the ordered rule names, mainly for reporting
func (c *Classifier) Rules() []string {
	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.Name
	}
	return names
}

// Classify returns the bucket of the first matching rule and that rule's name
func (c *Classifier) Classify(p domain.Position) (domain.Bucket, string) {
	for _, r := range c.rules {
		if r.Match(p) {
			return r.Bucket, r.Name
		}
	}
	// Unreachable: the catch-all always matches
	return domain.BucketSpeculativeAlpha, CatchAllRule
}

// Assignment is a classified position
type Assignment struct {
	Position domain.Position `json:"position"`
	Bucket   domain.Bucket   `json:"bucket"`
	Rule     string          `json:"rule"`
}

// ClassifyAll classifies every position, preserving input order
func (c *Classifier) ClassifyAll(positions []domain.Position) []Assignment {
	out := make([]Assignment, 0, len(positions))
	for _, p := range positions {
		bucket, rule := c.Classify(p)
		out = append(out, Assignment{Position: p, Bucket: bucket, Rule: rule})
	}
	return out
}

func symbolSet(symbols []string) map[string]bool {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	return set
}
