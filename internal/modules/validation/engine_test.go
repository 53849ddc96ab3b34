package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/modules/policy"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func testPolicy() *policy.Policy {
	return &policy.Policy{
		Regimes: []policy.RegimeBand{
			{Name: domain.RegimeNormal, Lower: 0},
			{Name: domain.RegimeElevated, Lower: 60},
			{Name: domain.RegimeHighRisk, Lower: 75},
			{Name: domain.RegimeExtreme, Lower: 90},
		},
		Validation: policy.Validation{
			Horizons:          []int{5, 36},
			MinHistory:        7,
			MinPairs:          5,
			DrawdownWindow:    21,
			DrawdownThreshold: 3,
			AlertHorizon:      5,
			AlertMove:         2,
			VolatileStdDev:    15,
			WhipsawFlips:      5,
		},
	}
}

func series(n int, closeAt func(i int) float64) domain.PriceSeries {
	s := make(domain.PriceSeries, n)
	for i := range s {
		s[i] = domain.PricePoint{Date: day0.AddDate(0, 0, i), Close: closeAt(i)}
	}
	return s
}

func record(id int64, day int, score float64, regime domain.Regime) domain.HistoryRecord {
	return domain.HistoryRecord{
		ID:        id,
		Timestamp: day0.AddDate(0, 0, day).Add(17 * time.Hour),
		Score:     score,
		Regime:    regime,
	}
}

func TestRun_InsufficientData(t *testing.T) {
	e := NewEngine(testPolicy(), zerolog.Nop())

	_, err := e.Run([]domain.HistoryRecord{record(1, 0, 10, domain.RegimeNormal)}, nil)
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func TestRun_Correlation(t *testing.T) {
	e := NewEngine(testPolicy(), zerolog.Nop())

	var records []domain.HistoryRecord
	for i := 0; i < 10; i++ {
		records = append(records, record(int64(i+1), i, float64(i*10), domain.RegimeNormal))
	}
	// Steady rise: forward returns shrink as the base grows while scores rise
	prices := series(40, func(i int) float64 { return 100 + float64(i) })

	report, err := e.Run(records, prices)
	require.NoError(t, err)
	require.Len(t, report.Horizons, 2)

	short := report.Horizons[0]
	assert.Equal(t, 5, short.Horizon)
	assert.Equal(t, 10, short.Samples)
	require.NotNil(t, short.Correlation)
	assert.Less(t, *short.Correlation, -0.9)
	require.NotNil(t, short.HighScoreReturn)
	require.NotNil(t, short.LowScoreReturn)
	assert.Less(t, *short.HighScoreReturn, *short.LowScoreReturn)

	long := report.Horizons[1]
	assert.Equal(t, 4, long.Samples)
	assert.True(t, long.Insufficient)
	assert.Nil(t, long.Correlation)
}

func TestRun_RegimeChangesAndAlerts(t *testing.T) {
	e := NewEngine(testPolicy(), zerolog.Nop())

	prices := series(60, func(i int) float64 {
		switch {
		case i >= 5 && i <= 10:
			return 95
		case i >= 30:
			return 101
		}
		return 100
	})

	critical := []domain.Alert{{Type: "HIDDEN_DANGER", Severity: domain.SeverityCritical}}
	records := []domain.HistoryRecord{
		record(1, 0, 50, domain.RegimeNormal),
		record(2, 1, 50, domain.RegimeNormal),
		record(3, 2, 50, domain.RegimeNormal),
		record(4, 3, 50, domain.RegimeNormal),
		record(5, 4, 80, domain.RegimeHighRisk),
		record(6, 25, 65, domain.RegimeElevated),
		record(7, 57, 80, domain.RegimeHighRisk),
	}
	records[4].Transition, records[4].PreviousRegime, records[4].Alerts = domain.TransitionUp, domain.RegimeNormal, critical
	records[5].Transition, records[5].PreviousRegime = domain.TransitionUp, domain.RegimeNormal
	records[5].Alerts = append(critical, domain.Alert{Type: "CREDIT_WARNING", Severity: domain.SeverityHigh})
	records[6].Transition, records[6].PreviousRegime = domain.TransitionUp, domain.RegimeElevated
	records[6].Alerts = critical

	report, err := e.Run(records, prices)
	require.NoError(t, err)

	require.Len(t, report.RegimeChanges, 3)
	assert.Equal(t, OutcomeCorrect, report.RegimeChanges[0].Outcome)
	assert.Equal(t, -5.0, *report.RegimeChanges[0].MaxDrawdown)
	assert.Equal(t, OutcomeFalseAlarm, report.RegimeChanges[1].Outcome)
	assert.Equal(t, OutcomePending, report.RegimeChanges[2].Outcome)
	assert.Nil(t, report.RegimeChanges[2].MaxDrawdown)

	require.Len(t, report.Alerts, 3)
	assert.Equal(t, OutcomeConfirmed, report.Alerts[0].Outcome)
	assert.Equal(t, -5.0, *report.Alerts[0].Return)
	assert.Equal(t, OutcomeNeutral, report.Alerts[1].Outcome)
	assert.Equal(t, OutcomePending, report.Alerts[2].Outcome)
}

func TestRun_Quality(t *testing.T) {
	e := NewEngine(testPolicy(), zerolog.Nop())

	regimes := []domain.Regime{
		domain.RegimeNormal, domain.RegimeElevated, domain.RegimeNormal, domain.RegimeElevated,
		domain.RegimeNormal, domain.RegimeElevated, domain.RegimeNormal, domain.RegimeElevated,
	}
	var records []domain.HistoryRecord
	for i, r := range regimes {
		records = append(records, record(int64(i+1), i, float64(i*10), r))
	}

	report, err := e.Run(records, nil)
	require.NoError(t, err)

	q := report.Quality
	assert.Equal(t, 8, q.Samples)
	assert.Equal(t, 35.0, q.Mean)
	assert.Equal(t, 22.91, q.StdDev)
	assert.Equal(t, 0.0, q.Min)
	assert.Equal(t, 70.0, q.Max)
	assert.Equal(t, 7, q.Flips)
	assert.True(t, q.Volatile)
	assert.True(t, q.Whipsaw)
}

func TestRun_ExcludesUnscoredRecords(t *testing.T) {
	e := NewEngine(testPolicy(), zerolog.Nop())

	// Real readings at 10 interleaved with neutral fillers at 50
	var records []domain.HistoryRecord
	for i := 0; i < 20; i++ {
		rec := record(int64(i+1), i, 10, domain.RegimeNormal)
		if i%2 == 1 {
			rec.Score = 50
			rec.ScoreUnavailable = true
		}
		records = append(records, rec)
	}
	prices := series(40, func(i int) float64 { return 100 + float64(i) })

	report, err := e.Run(records, prices)
	require.NoError(t, err)

	assert.Equal(t, 20, report.Records)
	assert.Equal(t, 10, report.Unscored)
	assert.Equal(t, 10, report.Horizons[0].Samples)
	assert.Nil(t, report.Horizons[0].Correlation)

	q := report.Quality
	assert.Equal(t, 10, q.Samples)
	assert.Equal(t, 10.0, q.Mean)
	assert.Equal(t, 0.0, q.StdDev)
	assert.Equal(t, 10.0, q.Min)
	assert.Equal(t, 10.0, q.Max)
	assert.False(t, q.Volatile)

	assert.Contains(t, Render(report), "10 records had no indicator readings")
}

func TestRun_AllUnscored(t *testing.T) {
	e := NewEngine(testPolicy(), zerolog.Nop())

	var records []domain.HistoryRecord
	for i := 0; i < 8; i++ {
		rec := record(int64(i+1), i, 50, domain.RegimeNormal)
		rec.ScoreUnavailable = true
		records = append(records, rec)
	}

	report, err := e.Run(records, series(40, func(i int) float64 { return 100 }))
	require.NoError(t, err)

	assert.Equal(t, 0, report.Quality.Samples)
	assert.Equal(t, 0.0, report.Quality.Min)
	assert.Equal(t, 0.0, report.Quality.Max)
	assert.True(t, report.Horizons[0].Insufficient)
	assert.Zero(t, report.Horizons[0].Samples)
}

func TestRun_DeterministicOrder(t *testing.T) {
	e := NewEngine(testPolicy(), zerolog.Nop())

	var records []domain.HistoryRecord
	for i := 0; i < 8; i++ {
		records = append(records, record(int64(i+1), i, float64(i*5), domain.RegimeNormal))
	}
	reversed := make([]domain.HistoryRecord, len(records))
	for i := range records {
		reversed[len(records)-1-i] = records[i]
	}
	prices := series(40, func(i int) float64 { return 100 + float64(i%3) })

	a, err := e.Run(records, prices)
	require.NoError(t, err)
	b, err := e.Run(reversed, prices)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, Render(a), Render(b))
}

func TestRender(t *testing.T) {
	e := NewEngine(testPolicy(), zerolog.Nop())

	var records []domain.HistoryRecord
	for i := 0; i < 10; i++ {
		records = append(records, record(int64(i+1), i, float64(i*10), domain.RegimeNormal))
	}
	report, err := e.Run(records, series(40, func(i int) float64 { return 100 + float64(i) }))
	require.NoError(t, err)

	out := Render(report)
	assert.Contains(t, out, "RISK SCORE VALIDATION REPORT")
	assert.Contains(t, out, "5-day forward returns")
	assert.Contains(t, out, "36-day forward returns")
	assert.Contains(t, out, "insufficient data (4 pairs)")
	assert.Contains(t, out, "STRONG")
	assert.Contains(t, out, "No upward regime changes recorded")
}
