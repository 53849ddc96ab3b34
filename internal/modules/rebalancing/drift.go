// Package rebalancing measures how far actual holdings drift from the
// regime targets and turns the drift into rebalancing guidance.
package rebalancing

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/modules/policy"
	"github.com/aristath/riskpilot/internal/modules/portfolio"
	"github.com/rs/zerolog"
)

// ErrFeedCorrupt is returned when the position snapshot cannot be trusted.
// The cycle continues without drift and is marked degraded.
var ErrFeedCorrupt = errors.New("position feed corrupt")

// Calculator computes per-bucket drift against allocation targets
type Calculator struct {
	cfg policy.Drift
	log zerolog.Logger
}

// NewCalculator creates a new drift calculator
func NewCalculator(cfg policy.Drift, log zerolog.Logger) *Calculator {
	return &Calculator{
		cfg: cfg,
		log: log.With().Str("component", "drift_calculator").Logger(),
	}
}

// Calculate computes the drift report for classified positions.
// prior is the previous cycle's snapshot, nil when none exists.
func (c *Calculator) Calculate(
	assignments []portfolio.Assignment,
	target domain.AllocationTarget,
	prior *domain.DriftSnapshot,
) (*domain.DriftReport, error) {
	if len(assignments) == 0 {
		return nil, fmt.Errorf("%w: empty snapshot", ErrFeedCorrupt)
	}

	malformed := 0
	values := make(map[domain.Bucket]float64)
	var net float64
	for _, a := range assignments {
		if a.Position.Malformed() {
			malformed++
			continue
		}
		values[a.Bucket] += a.Position.MarketValue
		net += a.Position.MarketValue
	}

	fraction := float64(malformed) / float64(len(assignments))
	if fraction > c.cfg.MaxMalformedFraction {
		return nil, fmt.Errorf("%w: %d of %d positions malformed", ErrFeedCorrupt, malformed, len(assignments))
	}
	if malformed > 0 {
		c.log.Warn().Int("malformed", malformed).Int("total", len(assignments)).Msg("Skipping malformed positions")
	}
	if net <= 0 {
		return nil, fmt.Errorf("%w: total market value %.2f", ErrFeedCorrupt, net)
	}

	// Short legs (written puts, spread shorts) can leave a bucket net
	// negative. Such buckets count as empty so weights stay a partition.
	var total float64
	var short []domain.Bucket
	for _, b := range domain.AllBuckets() {
		v, ok := values[b]
		if !ok {
			continue
		}
		if v < 0 {
			short = append(short, b)
			values[b] = 0
			continue
		}
		total += v
	}
	if len(short) > 0 {
		c.log.Warn().
			Interface("buckets", short).
			Float64("net_value", net).
			Float64("long_value", total).
			Msg("Buckets with net short value counted as empty")
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: no long market value", ErrFeedCorrupt)
	}

	report := &domain.DriftReport{
		Items:        buildBucketDrifts(values, target, total),
		TotalValue:   round(total, 2),
		NetValue:     round(net, 2),
		ShortBuckets: short,
	}

	var aggregate float64
	for _, item := range report.Items {
		aggregate += item.Absolute
	}
	report.Aggregate = round(aggregate, 2)

	if prior != nil {
		report.HasPrior = true
		report.Trend = round(report.Aggregate-prior.Aggregate, 2)
	}

	c.log.Info().
		Float64("aggregate", report.Aggregate).
		Float64("trend", report.Trend).
		Bool("has_prior", report.HasPrior).
		Msg("Drift calculated")

	return report, nil
}

// buildBucketDrifts covers the union of target and held buckets in reporting order
func buildBucketDrifts(values map[domain.Bucket]float64, target domain.AllocationTarget, total float64) []domain.BucketDrift {
	var buckets []domain.Bucket
	for _, b := range domain.AllBuckets() {
		_, held := values[b]
		_, targeted := target[b]
		if held || targeted {
			buckets = append(buckets, b)
		}
	}

	var items []domain.BucketDrift
	for _, b := range buckets {
		actual := values[b] / total * 100
		signed := actual - target[b]
		items = append(items, domain.BucketDrift{
			Bucket:      b,
			Actual:      round(actual, 2),
			Target:      round(target[b], 2),
			Signed:      round(signed, 2),
			Absolute:    round(math.Abs(signed), 2),
			ActualValue: round(values[b], 2),
			TargetValue: round(target[b]*total/100, 2),
		})
	}
	return items
}

// Snapshot converts a report into the state persisted for the next cycle
func Snapshot(report *domain.DriftReport, at time.Time) domain.DriftSnapshot {
	return domain.DriftSnapshot{
		RecordedAt: at,
		Items:      append([]domain.BucketDrift(nil), report.Items...),
		Aggregate:  report.Aggregate,
	}
}

// round rounds a float64 to n decimal places
func round(val float64, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(val*multiplier) / multiplier
}
