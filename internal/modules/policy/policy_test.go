package policy

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalPolicy = `
categories:
  - name: credit
    weight: 0.6
    indicators:
      - name: hy_spread
        rule: {kind: linear, low: 3, high: 7}
        valid_range: [0, 25]
  - name: breadth
    weight: 0.4
    indicators:
      - name: ad_line
        rule:
          kind: status
          statuses: {Confirming: 10, Diverging: 90}
regimes:
  - {name: NORMAL, lower: 0}
  - {name: ELEVATED, lower: 60}
  - {name: HIGH_RISK, lower: 75}
allocation:
  base: {strategic_core: 50, growth_engine: 30, cash_reserve: 20}
  regimes:
    NORMAL: {}
    ELEVATED:
      multipliers: {growth_engine: 0.5, cash_reserve: 1.75}
    HIGH_RISK:
      overrides: {strategic_core: 40, growth_engine: 0, cash_reserve: 60}
classification:
  core_symbols: [VWRA]
  growth_symbols: [CSNDX]
`

func parse(t *testing.T, doc string) (*Policy, error) {
	t.Helper()
	return Parse([]byte(doc), "test", zerolog.Nop())
}

func requireConfigError(t *testing.T, err error, contains string) {
	t.Helper()
	require.Error(t, err)
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr), "expected ConfigError, got %T", err)
	assert.Contains(t, cerr.Error(), contains)
}

func TestParse_Minimal(t *testing.T) {
	p, err := parse(t, minimalPolicy)
	require.NoError(t, err)

	assert.Len(t, p.Categories, 2)
	assert.Equal(t, []domain.Regime{"NORMAL", "ELEVATED", "HIGH_RISK"}, p.RegimeNames())

	// Defaults
	assert.Equal(t, 5.0, p.Hysteresis.Margin)
	assert.Equal(t, 1, p.Hysteresis.ConfirmUp)
	assert.Equal(t, 2, p.Hysteresis.ConfirmDown)
	assert.Equal(t, 36*time.Hour, p.Categories[0].Indicators[0].StaleAfter)
	assert.Equal(t, []int{5, 21}, p.Validation.Horizons)
	assert.Equal(t, 7, p.Validation.MinHistory)
	assert.Equal(t, 0.1, p.Drift.MaxMalformedFraction)
	assert.Contains(t, p.Classification.FundKeywords, "ISHARES")
}

func TestDefault_EmbeddedPolicyIsValid(t *testing.T) {
	p, err := Default(zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, []domain.Regime{
		domain.RegimeNormal, domain.RegimeElevated, domain.RegimeHighRisk, domain.RegimeExtreme,
	}, p.RegimeNames())

	ind, category, ok := p.LookupIndicator("gold_spy")
	require.True(t, ok)
	assert.Equal(t, "risk_appetite", category)
	require.NotNil(t, ind.Trend)
	assert.Equal(t, "SPY", ind.Trend.RelativeTo)
	assert.Equal(t, 20, ind.Trend.Period)

	for _, name := range p.RegimeNames() {
		assert.InDelta(t, 100.0, p.Allocation.Resolve(name).Total(), 0.01, "regime %s", name)
	}
}

func TestAllocation_Resolve(t *testing.T) {
	p, err := Default(zerolog.Nop())
	require.NoError(t, err)

	elevated := p.Allocation.Resolve(domain.RegimeElevated)
	assert.InDelta(t, 18.9, elevated[domain.BucketGrowthEngine], 1e-9)
	assert.InDelta(t, 4.0, elevated[domain.BucketInsuranceHedge], 1e-9)
	assert.InDelta(t, 30.0, elevated[domain.BucketCashReserve], 1e-9)
	assert.InDelta(t, 30.0, elevated[domain.BucketStrategicCore], 1e-9)

	normal := p.Allocation.Resolve(domain.RegimeNormal)
	assert.Equal(t, p.Allocation.Base[domain.BucketGrowthEngine], normal[domain.BucketGrowthEngine])
}

func TestParse_CategoryWeightsMustSumToOne(t *testing.T) {
	doc := strings.Replace(minimalPolicy, "weight: 0.4", "weight: 0.3", 1)
	_, err := parse(t, doc)
	requireConfigError(t, err, "category weights sum to 0.900000")
}

func TestParse_EmptyCategoryRejected(t *testing.T) {
	doc := minimalPolicy + `
alerts: {}
`
	doc = strings.Replace(doc, `      - name: ad_line
        rule:
          kind: status
          statuses: {Confirming: 10, Diverging: 90}
`, "", 1)
	_, err := parse(t, doc)
	requireConfigError(t, err, "category breadth: has no indicators")
}

func TestParse_MissingRegimeAllocation(t *testing.T) {
	doc := strings.Replace(minimalPolicy, `    HIGH_RISK:
      overrides: {strategic_core: 40, growth_engine: 0, cash_reserve: 60}
`, "", 1)
	_, err := parse(t, doc)
	requireConfigError(t, err, "missing entry for regime HIGH_RISK")
}

func TestParse_AllocationMustSumToHundred(t *testing.T) {
	doc := strings.Replace(minimalPolicy, "cash_reserve: 1.75", "cash_reserve: 1.5", 1)
	_, err := parse(t, doc)
	requireConfigError(t, err, "allocation for regime ELEVATED sums to 95.0000")
}

func TestParse_UnknownBucketRejected(t *testing.T) {
	doc := strings.Replace(minimalPolicy, "cash_reserve: 20}", "war_chest: 20}", 1)
	_, err := parse(t, doc)
	requireConfigError(t, err, "unknown bucket war_chest")
}

func TestParse_RegimesMustAscend(t *testing.T) {
	doc := strings.Replace(minimalPolicy, "{name: HIGH_RISK, lower: 75}", "{name: HIGH_RISK, lower: 55}", 1)
	_, err := parse(t, doc)
	requireConfigError(t, err, "regime HIGH_RISK: lower bound must be above ELEVATED")
}

func TestParse_CoreGrowthConflict(t *testing.T) {
	doc := strings.Replace(minimalPolicy, "growth_symbols: [CSNDX]", "growth_symbols: [CSNDX, vwra]", 1)
	_, err := parse(t, doc)
	requireConfigError(t, err, "VWRA is in both core_symbols and growth_symbols")
}

func TestParse_HedgeIncomeOverlapAllowed(t *testing.T) {
	doc := minimalPolicy + `  hedge_symbols: [SPY]
  income_symbols: [SPY]
`
	_, err := parse(t, doc)
	require.NoError(t, err)
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	doc := minimalPolicy + "\nhysterisis: {margin: 3}\n"
	_, err := parse(t, doc)
	requireConfigError(t, err, "decode")
}

func TestParse_StructValidation(t *testing.T) {
	doc := strings.Replace(minimalPolicy, "kind: linear", "kind: sigmoid", 1)
	_, err := parse(t, doc)
	requireConfigError(t, err, "oneof")
}

func TestParse_ThresholdsMustBeOrdered(t *testing.T) {
	doc := strings.Replace(minimalPolicy, "rule: {kind: linear, low: 3, high: 7}", `rule:
          kind: thresholds
          steps:
            - {bound: 5, score: 50}
            - {bound: 4, score: 80}
          otherwise: 100`, 1)
	_, err := parse(t, doc)
	requireConfigError(t, err, "strictly ascending")
}

func TestParse_AlertUnknownIndicator(t *testing.T) {
	doc := minimalPolicy + `
alerts:
  rules:
    - type: HIDDEN_DANGER
      severity: critical
      message: calm vix
      all:
        - {indicator: vix, op: lt, value: 15}
`
	_, err := parse(t, doc)
	requireConfigError(t, err, "unknown indicator vix")
}

func TestParse_CollectsEveryProblem(t *testing.T) {
	doc := strings.Replace(minimalPolicy, "weight: 0.4", "weight: 0.3", 1)
	doc = strings.Replace(doc, "growth_symbols: [CSNDX]", "growth_symbols: [VWRA]", 1)
	_, err := parse(t, doc)

	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.GreaterOrEqual(t, len(cerr.Problems), 2)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalPolicy), 0644))

	p, err := Load(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "hy_spread", p.IndicatorNames()[0])

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), zerolog.Nop())
	assert.Error(t, err)
}

func TestIndicator_InRange(t *testing.T) {
	ind := Indicator{ValidRange: []float64{0, 100}}
	assert.True(t, ind.InRange(0))
	assert.True(t, ind.InRange(100))
	assert.False(t, ind.InRange(-0.1))
	assert.True(t, Indicator{}.InRange(-1e9))
}
