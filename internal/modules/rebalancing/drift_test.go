package rebalancing

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/modules/policy"
	"github.com/aristath/riskpilot/internal/modules/portfolio"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultDrift() policy.Drift {
	return policy.Drift{MaxMalformedFraction: 0.1, RebalanceBand: 5, ConcentrationLimit: 25}
}

func assign(bucket domain.Bucket, symbol string, value float64) portfolio.Assignment {
	instrument := domain.InstrumentEquity
	if bucket == domain.BucketCashReserve {
		instrument = domain.InstrumentCash
	}
	return portfolio.Assignment{
		Position: domain.Position{Symbol: symbol, Instrument: instrument, MarketValue: value},
		Bucket:   bucket,
	}
}

var target = domain.AllocationTarget{
	domain.BucketStrategicCore: 50,
	domain.BucketGrowthEngine:  30,
	domain.BucketCashReserve:   20,
}

func TestCalculate_SignedAndAbsoluteDrift(t *testing.T) {
	c := NewCalculator(defaultDrift(), zerolog.Nop())

	report, err := c.Calculate([]portfolio.Assignment{
		assign(domain.BucketStrategicCore, "VWRA", 6000),
		assign(domain.BucketGrowthEngine, "CSNDX", 2000),
		assign(domain.BucketCashReserve, "", 1000),
		assign(domain.BucketSpeculativeAlpha, "PLTR", 1000),
	}, target, nil)
	require.NoError(t, err)

	core, _ := report.Item(domain.BucketStrategicCore)
	assert.Equal(t, 60.0, core.Actual)
	assert.Equal(t, 10.0, core.Signed)
	assert.Equal(t, 5000.0, core.TargetValue)

	growth, _ := report.Item(domain.BucketGrowthEngine)
	assert.Equal(t, -10.0, growth.Signed)
	assert.Equal(t, 10.0, growth.Absolute)

	// Held but untargeted buckets are included
	spec, ok := report.Item(domain.BucketSpeculativeAlpha)
	require.True(t, ok)
	assert.Equal(t, 0.0, spec.Target)
	assert.Equal(t, 10.0, spec.Signed)

	assert.Equal(t, 40.0, report.Aggregate)
	assert.Equal(t, 10000.0, report.TotalValue)
	assert.False(t, report.HasPrior)
	assert.Equal(t, 0.0, report.Trend)
}

func TestCalculate_ZeroWhenOnTarget(t *testing.T) {
	c := NewCalculator(defaultDrift(), zerolog.Nop())

	report, err := c.Calculate([]portfolio.Assignment{
		assign(domain.BucketStrategicCore, "VWRA", 500),
		assign(domain.BucketGrowthEngine, "CSNDX", 300),
		assign(domain.BucketCashReserve, "", 200),
	}, target, nil)
	require.NoError(t, err)

	assert.Equal(t, 0.0, report.Aggregate)
	for _, item := range report.Items {
		assert.Equal(t, 0.0, item.Absolute)
	}
}

func TestCalculate_ZeroWhenOnTargetWithPrior(t *testing.T) {
	c := NewCalculator(defaultDrift(), zerolog.Nop())
	prior := &domain.DriftSnapshot{Aggregate: 17.5}

	report, err := c.Calculate([]portfolio.Assignment{
		assign(domain.BucketStrategicCore, "VWRA", 500),
		assign(domain.BucketGrowthEngine, "CSNDX", 300),
		assign(domain.BucketCashReserve, "", 200),
	}, target, prior)
	require.NoError(t, err)

	assert.Equal(t, 0.0, report.Aggregate)
	assert.True(t, report.HasPrior)
	assert.Equal(t, -17.5, report.Trend)
}

func TestCalculate_ShortLegKeepsWeightsPartitioned(t *testing.T) {
	c := NewCalculator(defaultDrift(), zerolog.Nop())

	shortPut := portfolio.Assignment{
		Position: domain.Position{
			Symbol:      "AAPL P",
			Underlying:  "AAPL",
			Instrument:  domain.InstrumentOption,
			Leg:         &domain.OptionLeg{Side: "short", Right: "put"},
			Quantity:    -1,
			MarketValue: -900,
		},
		Bucket: domain.BucketIncomeStrategy,
	}

	report, err := c.Calculate([]portfolio.Assignment{
		assign(domain.BucketCashReserve, "", 1000),
		shortPut,
	}, target, nil)
	require.NoError(t, err)

	assert.LessOrEqual(t, report.Aggregate, 200.0)
	assert.GreaterOrEqual(t, report.Aggregate, 0.0)
	assert.Equal(t, []domain.Bucket{domain.BucketIncomeStrategy}, report.ShortBuckets)
	assert.Equal(t, 100.0, report.NetValue)
	assert.Equal(t, 1000.0, report.TotalValue)

	var weights, absolute float64
	for _, item := range report.Items {
		assert.GreaterOrEqual(t, item.Actual, 0.0)
		assert.LessOrEqual(t, item.Actual, 100.0)
		weights += item.Actual
		absolute += item.Absolute
	}
	assert.InDelta(t, 100.0, weights, 0.01)
	assert.InDelta(t, report.Aggregate, absolute, 0.01)

	income, ok := report.Item(domain.BucketIncomeStrategy)
	require.True(t, ok)
	assert.Equal(t, 0.0, income.Actual)
	cash, _ := report.Item(domain.BucketCashReserve)
	assert.Equal(t, 100.0, cash.Actual)
	assert.Equal(t, 160.0, report.Aggregate)
}

func TestCalculate_NetShortSnapshotIsCorrupt(t *testing.T) {
	c := NewCalculator(defaultDrift(), zerolog.Nop())

	_, err := c.Calculate([]portfolio.Assignment{
		assign(domain.BucketCashReserve, "", 500),
		{
			Position: domain.Position{Symbol: "AAPL P", Instrument: domain.InstrumentOption, MarketValue: -900},
			Bucket:   domain.BucketIncomeStrategy,
		},
	}, target, nil)
	assert.True(t, errors.Is(err, ErrFeedCorrupt))
}

func TestCalculate_AggregateBounded(t *testing.T) {
	c := NewCalculator(defaultDrift(), zerolog.Nop())

	// Everything in an untargeted bucket: maximal drift
	report, err := c.Calculate([]portfolio.Assignment{
		assign(domain.BucketSpeculativeAlpha, "PLTR", 1000),
	}, target, nil)
	require.NoError(t, err)
	assert.Equal(t, 200.0, report.Aggregate)
}

func TestCalculate_Trend(t *testing.T) {
	c := NewCalculator(defaultDrift(), zerolog.Nop())
	prior := &domain.DriftSnapshot{Aggregate: 25}

	report, err := c.Calculate([]portfolio.Assignment{
		assign(domain.BucketStrategicCore, "VWRA", 6000),
		assign(domain.BucketGrowthEngine, "CSNDX", 2000),
		assign(domain.BucketCashReserve, "", 2000),
	}, target, prior)
	require.NoError(t, err)

	assert.True(t, report.HasPrior)
	assert.Equal(t, 20.0, report.Aggregate)
	assert.Equal(t, -5.0, report.Trend)
}

func TestCalculate_FeedCorrupt(t *testing.T) {
	c := NewCalculator(defaultDrift(), zerolog.Nop())

	_, err := c.Calculate(nil, target, nil)
	assert.True(t, errors.Is(err, ErrFeedCorrupt))

	bad := portfolio.Assignment{Position: domain.Position{Symbol: "", Instrument: domain.InstrumentEquity, MarketValue: 100}}
	nan := portfolio.Assignment{Position: domain.Position{Symbol: "X", Instrument: domain.InstrumentEquity, MarketValue: math.NaN()}}
	_, err = c.Calculate([]portfolio.Assignment{
		assign(domain.BucketStrategicCore, "VWRA", 100), bad, nan,
	}, target, nil)
	assert.True(t, errors.Is(err, ErrFeedCorrupt))

	_, err = c.Calculate([]portfolio.Assignment{assign(domain.BucketCashReserve, "", 0)}, target, nil)
	assert.True(t, errors.Is(err, ErrFeedCorrupt))
}

func TestCalculate_ToleratesFewMalformed(t *testing.T) {
	c := NewCalculator(defaultDrift(), zerolog.Nop())

	assignments := []portfolio.Assignment{
		{Position: domain.Position{Symbol: "BOND", Instrument: "bond", MarketValue: 1e6}},
	}
	for i := 0; i < 10; i++ {
		assignments = append(assignments, assign(domain.BucketStrategicCore, "VWRA", 100))
	}

	report, err := c.Calculate(assignments, target, nil)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, report.TotalValue)
}

func TestCapitalMoves(t *testing.T) {
	report := &domain.DriftReport{
		TotalValue: 123456.78,
		Items: []domain.BucketDrift{
			{Bucket: domain.BucketStrategicCore, Signed: 10, Absolute: 10},
			{Bucket: domain.BucketGrowthEngine, Signed: -12.5, Absolute: 12.5},
			{Bucket: domain.BucketCashReserve, Signed: 2.5, Absolute: 2.5},
		},
	}

	moves := CapitalMoves(report, 5)
	require.Len(t, moves, 2)

	assert.Equal(t, domain.BucketGrowthEngine, moves[0].Bucket)
	assert.Equal(t, DirectionAdd, moves[0].Direction)
	assert.True(t, decimal.RequireFromString("15432.10").Equal(moves[0].Amount), moves[0].Amount.String())

	assert.Equal(t, domain.BucketStrategicCore, moves[1].Bucket)
	assert.Equal(t, DirectionReduce, moves[1].Direction)
	assert.True(t, decimal.RequireFromString("12345.68").Equal(moves[1].Amount), moves[1].Amount.String())

	assert.Nil(t, CapitalMoves(nil, 5))
}

func TestConcentrationWarnings(t *testing.T) {
	assignments := []portfolio.Assignment{
		assign(domain.BucketStrategicCore, "VWRA", 4000),
		assign(domain.BucketSpeculativeAlpha, "PLTR", 2000),
		{Position: domain.Position{Symbol: "PLTR C", Underlying: "PLTR", Instrument: domain.InstrumentOption, MarketValue: 1000}},
		assign(domain.BucketCashReserve, "", 3000),
	}

	warnings := ConcentrationWarnings(assignments, 10000, 25)
	require.Len(t, warnings, 2)
	assert.Equal(t, "VWRA", warnings[0].Symbol)
	assert.Equal(t, 40.0, warnings[0].Weight)
	assert.Equal(t, "PLTR", warnings[1].Symbol)
	assert.Equal(t, 30.0, warnings[1].Weight)

	assert.Nil(t, ConcentrationWarnings(assignments, 0, 25))
}

func TestSnapshot(t *testing.T) {
	at := time.Now()
	report := &domain.DriftReport{Aggregate: 12.5, Items: []domain.BucketDrift{{Bucket: domain.BucketCashReserve}}}
	snap := Snapshot(report, at)
	assert.Equal(t, 12.5, snap.Aggregate)
	assert.Len(t, snap.Items, 1)
	assert.Equal(t, at, snap.RecordedAt)
}
