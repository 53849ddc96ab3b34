// Package policy loads and validates the risk policy file.
//
// The policy is the single configuration surface of the engine: indicator
// categories and weights, normalization rules, regime bands, hysteresis
// parameters, allocation tables, classification symbol sets, drift and
// alert thresholds, and validation parameters. A policy that fails any
// check is rejected as a whole with a ConfigError.
package policy

import (
	"time"

	"github.com/aristath/riskpilot/internal/domain"
)

// Rule kinds understood by the normalizer
const (
	RuleLinear     = "linear"
	RulePercentile = "percentile"
	RuleThresholds = "thresholds"
	RuleStatus     = "status"
)

// Policy is the fully loaded and validated policy
type Policy struct {
	Allocation     Allocation     `yaml:"allocation"`
	Categories     []Category     `yaml:"categories" validate:"required,min=1,dive"`
	Regimes        []RegimeBand   `yaml:"regimes" validate:"required,min=2,dive"`
	Classification Classification `yaml:"classification"`
	Alerts         Alerts         `yaml:"alerts"`
	Validation     Validation     `yaml:"validation"`
	Hysteresis     Hysteresis     `yaml:"hysteresis"`
	Drift          Drift          `yaml:"drift"`
}

// Category groups indicators under one weight
type Category struct {
	Name       string      `yaml:"name" validate:"required"`
	Indicators []Indicator `yaml:"indicators" validate:"dive"`
	Weight     float64     `yaml:"weight" validate:"gte=0,lte=1"`
}

// Indicator configures how one raw series is normalized
type Indicator struct {
	Name       string        `yaml:"name" validate:"required"`
	Label      string        `yaml:"label"`
	Rule       Rule          `yaml:"rule"`
	Trend      *Trend        `yaml:"trend"`
	ValidRange []float64     `yaml:"valid_range" validate:"omitempty,len=2"`
	StaleAfter time.Duration `yaml:"stale_after" default:"36h"`
	Critical   bool          `yaml:"critical"`
}

// InRange reports whether v lies inside the declared valid range.
// Indicators without a range accept every value.
func (i Indicator) InRange(v float64) bool {
	if len(i.ValidRange) != 2 {
		return true
	}
	return v >= i.ValidRange[0] && v <= i.ValidRange[1]
}

// DisplayName returns the label, falling back to the indicator name
func (i Indicator) DisplayName() string {
	if i.Label != "" {
		return i.Label
	}
	return i.Name
}

// Rule maps a raw value onto the 0-100 risk scale (higher = riskier)
type Rule struct {
	Statuses   map[string]float64 `yaml:"statuses"`
	Kind       string             `yaml:"kind" validate:"required,oneof=linear percentile thresholds status"`
	Steps      []Step             `yaml:"steps" validate:"dive"`
	Low        float64            `yaml:"low"`
	High       float64            `yaml:"high"`
	Otherwise  float64            `yaml:"otherwise" validate:"gte=0,lte=100"`
	Window     int                `yaml:"window" default:"252"`
	MinSamples int                `yaml:"min_samples" default:"20"`
	Inverse    bool               `yaml:"inverse"`
}

// Trend derives an indicator from price files: the percent distance of the
// latest close from its simple moving average. With RelativeTo set the
// series is the ratio Symbol/RelativeTo.
type Trend struct {
	Symbol     string `yaml:"symbol" validate:"required"`
	RelativeTo string `yaml:"relative_to"`
	Period     int    `yaml:"period" default:"20" validate:"gte=2"`
}

// Step is one threshold of a step rule
type Step struct {
	Bound float64 `yaml:"bound"`
	Score float64 `yaml:"score" validate:"gte=0,lte=100"`
}

// RegimeBand is one discrete regime with its lower score bound
type RegimeBand struct {
	Name     domain.Regime `yaml:"name" validate:"required"`
	Guidance string        `yaml:"guidance"`
	Lower    float64       `yaml:"lower" validate:"gte=0,lt=100"`
}

// Hysteresis controls how eagerly the regime moves between bands
type Hysteresis struct {
	Margin      float64 `yaml:"margin" default:"5" validate:"gte=0"`
	ConfirmUp   int     `yaml:"confirm_up" default:"1" validate:"gte=1"`
	ConfirmDown int     `yaml:"confirm_down" default:"2" validate:"gte=1"`
}

// Allocation holds the base weights and the per-regime adjustments
type Allocation struct {
	Base    map[domain.Bucket]float64          `yaml:"base" validate:"required"`
	Regimes map[domain.Regime]RegimeAllocation `yaml:"regimes"`
}

// RegimeAllocation adjusts base weights for one regime.
// Overrides win over multipliers for the same bucket.
type RegimeAllocation struct {
	Multipliers map[domain.Bucket]float64 `yaml:"multipliers"`
	Overrides   map[domain.Bucket]float64 `yaml:"overrides"`
}

// Classification holds the symbol sets used by the position classifier
type Classification struct {
	HedgeSymbols         []string `yaml:"hedge_symbols"`
	IncomeSymbols        []string `yaml:"income_symbols"`
	CoreSymbols          []string `yaml:"core_symbols"`
	GrowthSymbols        []string `yaml:"growth_symbols"`
	HardAssetSymbols     []string `yaml:"hard_asset_symbols"`
	FundKeywords         []string `yaml:"fund_keywords" default:"[\"ETF\",\"ISHARES\",\"VANGUARD\",\"SPDR\",\"INVESCO\",\"XTRACKERS\",\"UBS\"]"`
	GrowthKeywords       []string `yaml:"growth_keywords" default:"[\"NASDAQ\",\"TECH\",\"GROWTH\",\"INNOVATION\"]"`
	CoreKeywords         []string `yaml:"core_keywords" default:"[\"WORLD\",\"GLOBAL\",\"ALL COUNTRY\",\"MSCI\",\"DIVIDEND\"]"`
	EquityIncomeAsIncome bool     `yaml:"equity_income_as_income"`
}

// Drift holds the drift calculator thresholds
type Drift struct {
	MaxMalformedFraction float64 `yaml:"max_malformed_fraction" default:"0.1" validate:"gte=0,lte=1"`
	RebalanceBand        float64 `yaml:"rebalance_band" default:"5" validate:"gte=0"`
	ConcentrationLimit   float64 `yaml:"concentration_limit" default:"25" validate:"gt=0,lte=100"`
}

// Alerts holds the divergence alert rules
type Alerts struct {
	AllClear *AllClear   `yaml:"all_clear"`
	Rules    []AlertRule `yaml:"rules" validate:"dive"`
}

// AlertRule fires when every All condition holds and at least MinAny of
// the Any conditions hold
type AlertRule struct {
	Type     string               `yaml:"type" validate:"required"`
	Severity domain.AlertSeverity `yaml:"severity" validate:"required,oneof=critical high medium"`
	Message  string               `yaml:"message" validate:"required"`
	Action   string               `yaml:"action"`
	All      []Condition          `yaml:"all" validate:"dive"`
	Any      []Condition          `yaml:"any" validate:"dive"`
	MinAny   int                  `yaml:"min_any" default:"1" validate:"gte=1"`
}

// Condition compares one raw indicator value against a bound
type Condition struct {
	Indicator string  `yaml:"indicator" validate:"required"`
	Op        string  `yaml:"op" validate:"required,oneof=lt lte gt gte eq"`
	Status    string  `yaml:"status"`
	Value     float64 `yaml:"value"`
}

// AllClear is raised only when no other alert fired and the score is low
type AllClear struct {
	Message  string  `yaml:"message" default:"All indicators aligned, no divergence detected"`
	Action   string  `yaml:"action" default:"Stay the course"`
	MaxScore float64 `yaml:"max_score" default:"15" validate:"gte=0,lte=100"`
}

// Validation parameterizes the offline validation report
type Validation struct {
	Horizons          []int   `yaml:"horizons" default:"[5,21]" validate:"dive,gt=0"`
	MinHistory        int     `yaml:"min_history" default:"7" validate:"gte=1"`
	MinPairs          int     `yaml:"min_pairs" default:"5" validate:"gte=3"`
	DrawdownWindow    int     `yaml:"drawdown_window" default:"21" validate:"gte=1"`
	DrawdownThreshold float64 `yaml:"drawdown_threshold" default:"3" validate:"gt=0"`
	AlertHorizon      int     `yaml:"alert_horizon" default:"5" validate:"gte=1"`
	AlertMove         float64 `yaml:"alert_move" default:"2" validate:"gt=0"`
	VolatileStdDev    float64 `yaml:"volatile_std_dev" default:"15" validate:"gt=0"`
	WhipsawFlips      int     `yaml:"whipsaw_flips" default:"5" validate:"gte=1"`
}

// RegimeIndex returns the position of a regime in the ordered band list
func (p *Policy) RegimeIndex(name domain.Regime) (int, bool) {
	for i, band := range p.Regimes {
		if band.Name == name {
			return i, true
		}
	}
	return -1, false
}

// RegimeNames returns the regime names in ascending risk order
func (p *Policy) RegimeNames() []domain.Regime {
	names := make([]domain.Regime, len(p.Regimes))
	for i, band := range p.Regimes {
		names[i] = band.Name
	}
	return names
}

// Guidance returns the positioning text configured for a regime
func (p *Policy) Guidance(name domain.Regime) string {
	if i, ok := p.RegimeIndex(name); ok {
		return p.Regimes[i].Guidance
	}
	return ""
}

// LookupIndicator finds an indicator and the category it belongs to
func (p *Policy) LookupIndicator(name string) (Indicator, string, bool) {
	for _, cat := range p.Categories {
		for _, ind := range cat.Indicators {
			if ind.Name == name {
				return ind, cat.Name, true
			}
		}
	}
	return Indicator{}, "", false
}

// IndicatorNames returns every configured indicator name in policy order
func (p *Policy) IndicatorNames() []string {
	var names []string
	for _, cat := range p.Categories {
		for _, ind := range cat.Indicators {
			names = append(names, ind.Name)
		}
	}
	return names
}
