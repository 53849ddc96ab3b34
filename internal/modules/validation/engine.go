// Package validation measures how well the recorded risk scores anticipated
// benchmark moves: forward-return correlation, drawdowns after upward regime
// changes, the follow-through of critical alerts and the stability of the
// score itself.
//
// All horizons are counted in trading days, i.e. rows of the benchmark
// price series. The engine is deterministic for a given history and price
// series.
package validation

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/modules/alerts"
	"github.com/aristath/riskpilot/internal/modules/policy"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientData is returned when the history is shorter than the
// configured minimum
var ErrInsufficientData = errors.New("insufficient history for validation")

// Outcomes of regime change and alert checks
const (
	OutcomeCorrect      = "correct"
	OutcomeFalseAlarm   = "false_alarm"
	OutcomeConfirmed    = "confirmed"
	OutcomeContradicted = "contradicted"
	OutcomeNeutral      = "neutral"
	OutcomePending      = "pending"
)

// HorizonResult is the score/forward-return relationship for one horizon
type HorizonResult struct {
	Correlation     *float64 `json:"correlation,omitempty"`
	MeanReturn      *float64 `json:"mean_return,omitempty"`
	HighScoreReturn *float64 `json:"high_score_return,omitempty"`
	LowScoreReturn  *float64 `json:"low_score_return,omitempty"`
	Horizon         int      `json:"horizon"`
	Samples         int      `json:"samples"`
	Insufficient    bool     `json:"insufficient"`
}

// RegimeCheck evaluates one upward regime transition
type RegimeCheck struct {
	Timestamp   time.Time     `json:"timestamp"`
	MaxDrawdown *float64      `json:"max_drawdown,omitempty"`
	From        domain.Regime `json:"from"`
	To          domain.Regime `json:"to"`
	Outcome     string        `json:"outcome"`
	Score       float64       `json:"score"`
}

// AlertCheck evaluates one critical alert
type AlertCheck struct {
	Timestamp time.Time `json:"timestamp"`
	Return    *float64  `json:"return,omitempty"`
	Type      string    `json:"type"`
	Outcome   string    `json:"outcome"`
}

// Quality summarises the score series
type Quality struct {
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Flips    int     `json:"flips"`
	Samples  int     `json:"samples"`
	Volatile bool    `json:"volatile"`
	Whipsaw  bool    `json:"whipsaw"`
}

// Report is the full validation result
type Report struct {
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	Horizons      []HorizonResult `json:"horizons"`
	RegimeChanges []RegimeCheck   `json:"regime_changes"`
	Alerts        []AlertCheck    `json:"alerts"`
	Quality       Quality         `json:"quality"`
	Records       int             `json:"records"`
	Unscored      int             `json:"unscored"`
	PricePoints   int             `json:"price_points"`
	HighScoreMin  float64         `json:"high_score_min"`
	LowScoreMax   float64         `json:"low_score_max"`
}

// Engine runs the validation analyses
type Engine struct {
	cfg          policy.Validation
	highScoreMin float64
	lowScoreMax  float64
	log          zerolog.Logger
}

// NewEngine creates a validation engine.
// High scores start at the third regime band, low scores end below the second.
func NewEngine(p *policy.Policy, log zerolog.Logger) *Engine {
	e := &Engine{
		cfg:          p.Validation,
		highScoreMin: 75,
		lowScoreMax:  60,
		log:          log.With().Str("component", "validation").Logger(),
	}
	if len(p.Regimes) > 1 {
		e.lowScoreMax = p.Regimes[1].Lower
	}
	if len(p.Regimes) > 2 {
		e.highScoreMin = p.Regimes[2].Lower
	}
	return e
}

// Run validates the history against the benchmark price series
func (e *Engine) Run(records []domain.HistoryRecord, prices domain.PriceSeries) (*Report, error) {
	if len(records) < e.cfg.MinHistory {
		return nil, fmt.Errorf("%w: %d records, need %d", ErrInsufficientData, len(records), e.cfg.MinHistory)
	}

	sorted := make([]domain.HistoryRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].ID < sorted[j].ID
	})

	series := make(domain.PriceSeries, len(prices))
	copy(series, prices)
	series.Sort()

	report := &Report{
		Start:        sorted[0].Timestamp,
		End:          sorted[len(sorted)-1].Timestamp,
		Records:      len(sorted),
		PricePoints:  len(series),
		HighScoreMin: e.highScoreMin,
		LowScoreMax:  e.lowScoreMax,
	}

	// Cycles without any indicator reading carry a neutral filler score
	scored := make([]domain.HistoryRecord, 0, len(sorted))
	for _, rec := range sorted {
		if rec.HasScore() {
			scored = append(scored, rec)
		}
	}
	report.Unscored = len(sorted) - len(scored)

	for _, h := range e.cfg.Horizons {
		report.Horizons = append(report.Horizons, e.correlation(scored, series, h))
	}
	report.RegimeChanges = e.regimeChanges(sorted, series)
	report.Alerts = e.alertTiming(sorted, series)
	report.Quality = e.quality(sorted, scored)

	e.log.Info().
		Int("records", report.Records).
		Int("unscored", report.Unscored).
		Int("price_points", report.PricePoints).
		Int("regime_changes", len(report.RegimeChanges)).
		Int("alerts", len(report.Alerts)).
		Msg("Validation completed")

	return report, nil
}

// correlation pairs each score with the benchmark return over h trading days
func (e *Engine) correlation(records []domain.HistoryRecord, series domain.PriceSeries, h int) HorizonResult {
	result := HorizonResult{Horizon: h}

	var scores, returns, high, low []float64
	for _, rec := range records {
		ret, ok := forwardReturn(series, rec.Timestamp, h)
		if !ok {
			continue
		}
		scores = append(scores, rec.Score)
		returns = append(returns, ret)
		if rec.Score >= e.highScoreMin {
			high = append(high, ret)
		}
		if rec.Score < e.lowScoreMax {
			low = append(low, ret)
		}
	}

	result.Samples = len(scores)
	if result.Samples < e.cfg.MinPairs {
		result.Insufficient = true
		return result
	}

	if corr := stat.Correlation(scores, returns, nil); !math.IsNaN(corr) {
		corr = round(corr, 3)
		result.Correlation = &corr
	}
	result.MeanReturn = meanOf(returns)
	result.HighScoreReturn = meanOf(high)
	result.LowScoreReturn = meanOf(low)
	return result
}

// regimeChanges checks the drawdown following every upward transition
func (e *Engine) regimeChanges(records []domain.HistoryRecord, series domain.PriceSeries) []RegimeCheck {
	var checks []RegimeCheck
	for _, rec := range records {
		if rec.Transition != domain.TransitionUp {
			continue
		}
		check := RegimeCheck{
			Timestamp: rec.Timestamp,
			From:      rec.PreviousRegime,
			To:        rec.Regime,
			Score:     rec.Score,
			Outcome:   OutcomePending,
		}

		i := series.IndexAt(rec.Timestamp)
		if i >= 0 && i+e.cfg.DrawdownWindow < len(series) {
			base := series[i].Close
			lowest := base
			for _, p := range series[i+1 : i+e.cfg.DrawdownWindow+1] {
				lowest = math.Min(lowest, p.Close)
			}
			dd := round((lowest-base)/base*100, 2)
			check.MaxDrawdown = &dd

			switch {
			case dd <= -e.cfg.DrawdownThreshold:
				check.Outcome = OutcomeCorrect
			case dd >= 0:
				check.Outcome = OutcomeFalseAlarm
			default:
				check.Outcome = OutcomeNeutral
			}
		}
		checks = append(checks, check)
	}
	return checks
}

// alertTiming checks the benchmark return after every critical alert
func (e *Engine) alertTiming(records []domain.HistoryRecord, series domain.PriceSeries) []AlertCheck {
	var checks []AlertCheck
	for _, rec := range records {
		for _, alert := range alerts.Critical(rec.Alerts) {
			check := AlertCheck{Timestamp: rec.Timestamp, Type: alert.Type, Outcome: OutcomePending}

			if ret, ok := forwardReturn(series, rec.Timestamp, e.cfg.AlertHorizon); ok {
				ret = round(ret, 2)
				check.Return = &ret
				switch {
				case ret <= -e.cfg.AlertMove:
					check.Outcome = OutcomeConfirmed
				case ret >= e.cfg.AlertMove:
					check.Outcome = OutcomeContradicted
				default:
					check.Outcome = OutcomeNeutral
				}
			}
			checks = append(checks, check)
		}
	}
	return checks
}

// quality computes statistics over the scored records and counts
// regime flips across the whole history
func (e *Engine) quality(records, scored []domain.HistoryRecord) Quality {
	q := Quality{Samples: len(scored)}
	for i := 1; i < len(records); i++ {
		if records[i].Regime != records[i-1].Regime {
			q.Flips++
		}
	}
	q.Whipsaw = q.Flips > e.cfg.WhipsawFlips

	if len(scored) == 0 {
		return q
	}
	scores := make([]float64, len(scored))
	q.Min, q.Max = math.Inf(1), math.Inf(-1)
	for i, rec := range scored {
		scores[i] = rec.Score
		q.Min = math.Min(q.Min, rec.Score)
		q.Max = math.Max(q.Max, rec.Score)
	}

	q.Mean = round(stat.Mean(scores, nil), 2)
	q.StdDev = round(math.Sqrt(stat.PopVariance(scores, nil)), 2)
	q.Volatile = q.StdDev > e.cfg.VolatileStdDev
	return q
}

// forwardReturn is the percent change of the benchmark from t over h
// trading days. ok is false when either end is outside the series.
func forwardReturn(series domain.PriceSeries, t time.Time, h int) (float64, bool) {
	i := series.IndexAt(t)
	if i < 0 || i+h >= len(series) || series[i].Close <= 0 {
		return 0, false
	}
	return (series[i+h].Close - series[i].Close) / series[i].Close * 100, true
}

func meanOf(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	m := round(stat.Mean(values, nil), 2)
	return &m
}

// round rounds a float64 to n decimal places
func round(val float64, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(val*multiplier) / multiplier
}
