package feeds

import (
	"context"
	"fmt"
	"math"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/modules/policy"
	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
)

// TrendSource derives indicators from price series: the percent distance
// of the latest close from its simple moving average. Indicators with a
// RelativeTo symbol use the ratio series Symbol/RelativeTo, so a positive
// value means Symbol is outperforming.
type TrendSource struct {
	prices PriceSource
	trends map[string]policy.Trend
	log    zerolog.Logger
}

// NewTrendSource creates a trend source for every policy indicator that
// declares a trend
func NewTrendSource(p *policy.Policy, prices PriceSource, log zerolog.Logger) *TrendSource {
	trends := make(map[string]policy.Trend)
	for _, cat := range p.Categories {
		for _, ind := range cat.Indicators {
			if ind.Trend != nil {
				trends[ind.Name] = *ind.Trend
			}
		}
	}
	return &TrendSource{
		prices: prices,
		trends: trends,
		log:    log.With().Str("source", "price_trend").Logger(),
	}
}

// Handles reports whether name is a trend-derived indicator
func (s *TrendSource) Handles(name string) bool {
	_, ok := s.trends[name]
	return ok
}

// Fetch computes the trend reading for name
func (s *TrendSource) Fetch(ctx context.Context, name string) (domain.Observation, error) {
	trend, ok := s.trends[name]
	if !ok {
		return domain.Observation{}, fmt.Errorf("%w: %s has no trend definition", ErrNotAvailable, name)
	}

	series, err := s.prices.Prices(ctx, trend.Symbol)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("failed to load prices for %s: %w", trend.Symbol, err)
	}
	if trend.RelativeTo != "" {
		base, err := s.prices.Prices(ctx, trend.RelativeTo)
		if err != nil {
			return domain.Observation{}, fmt.Errorf("failed to load prices for %s: %w", trend.RelativeTo, err)
		}
		series = RatioSeries(series, base)
	}

	value, err := SMADistance(series.Closes(), trend.Period)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("%s: %w", name, err)
	}

	s.log.Debug().
		Str("indicator", name).
		Str("symbol", trend.Symbol).
		Str("relative_to", trend.RelativeTo).
		Float64("value", value).
		Msg("Trend computed")

	return domain.Observation{
		Indicator: name,
		Timestamp: series[len(series)-1].Date,
		Value:     &value,
	}, nil
}

// SMADistance returns (last close - SMA) / SMA * 100 over period closes
func SMADistance(closes []float64, period int) (float64, error) {
	if len(closes) < period {
		return 0, fmt.Errorf("%w: %d closes, need %d", ErrNotAvailable, len(closes), period)
	}

	sma := talib.Sma(closes, period)
	last := sma[len(sma)-1]
	if math.IsNaN(last) || last == 0 {
		return 0, fmt.Errorf("%w: moving average undefined", ErrNotAvailable)
	}
	return (closes[len(closes)-1] - last) / last * 100, nil
}

// RatioSeries divides a by b on the dates both series share
func RatioSeries(a, b domain.PriceSeries) domain.PriceSeries {
	byDate := make(map[string]float64, len(b))
	for _, p := range b {
		byDate[p.Date.Format("2006-01-02")] = p.Close
	}

	var out domain.PriceSeries
	for _, p := range a {
		if denom, ok := byDate[p.Date.Format("2006-01-02")]; ok && denom > 0 {
			out = append(out, domain.PricePoint{Date: p.Date, Close: p.Close / denom})
		}
	}
	return out
}
