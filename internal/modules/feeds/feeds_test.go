package feeds

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/modules/policy"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestJSONFileSource_Fetch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "indicators.json", `{
		"as_of": "2026-03-02T21:00:00Z",
		"indicators": {
			"hy_spread": {"value": 3.4},
			"vix_struct": {"status": " Contango "},
			"ted_spread": {"value": 0.2, "timestamp": "2026-02-27T21:00:00Z"}
		}
	}`)

	src := NewJSONFileSource(path, zerolog.Nop())
	ctx := context.Background()

	obs, err := src.Fetch(ctx, "hy_spread")
	require.NoError(t, err)
	require.NotNil(t, obs.Value)
	assert.Equal(t, 3.4, *obs.Value)
	assert.Equal(t, time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC), obs.Timestamp.UTC())

	obs, err = src.Fetch(ctx, "vix_struct")
	require.NoError(t, err)
	assert.Nil(t, obs.Value)
	assert.Equal(t, "Contango", obs.Status)

	obs, err = src.Fetch(ctx, "ted_spread")
	require.NoError(t, err)
	assert.Equal(t, 27, obs.Timestamp.UTC().Day())

	_, err = src.Fetch(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotAvailable))
}

func TestJSONFileSource_MissingFile(t *testing.T) {
	src := NewJSONFileSource(filepath.Join(t.TempDir(), "nope.json"), zerolog.Nop())
	_, err := src.Fetch(context.Background(), "x")
	assert.Error(t, err)
}

func TestReadPrices(t *testing.T) {
	series, err := ReadPrices(strings.NewReader("Date,Open,Close\n2026-01-06,1,101\n2026-01-05,1,100\nbad,1,1\n2026-01-07,1,n/a\n"))
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 100.0, series[0].Close)
	assert.Equal(t, 101.0, series[1].Close)

	_, err = ReadPrices(strings.NewReader("day,price\n"))
	assert.Error(t, err)
}

func TestSMADistance(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 12}
	d, err := SMADistance(closes, 5)
	require.NoError(t, err)
	// SMA 10.4, last 12
	assert.InDelta(t, 15.3846, d, 1e-3)

	_, err = SMADistance(closes, 6)
	assert.True(t, errors.Is(err, ErrNotAvailable))
}

func TestRatioSeries(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC) }
	a := domain.PriceSeries{{Date: day(1), Close: 10}, {Date: day(2), Close: 12}, {Date: day(3), Close: 9}}
	b := domain.PriceSeries{{Date: day(1), Close: 5}, {Date: day(3), Close: 3}}

	out := RatioSeries(a, b)
	require.Len(t, out, 2)
	assert.Equal(t, 2.0, out[0].Close)
	assert.Equal(t, 3.0, out[1].Close)
}

func TestTrendSource_Fetch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "XLU.csv", "date,close\n2026-01-05,20\n2026-01-06,20\n2026-01-07,24\n")
	writeFile(t, dir, "XLK.csv", "date,close\n2026-01-05,10\n2026-01-06,10\n2026-01-07,10\n")

	p := &policy.Policy{Categories: []policy.Category{{
		Name: "risk_appetite", Weight: 1,
		Indicators: []policy.Indicator{
			{Name: "sector_rot", Trend: &policy.Trend{Symbol: "XLU", RelativeTo: "XLK", Period: 3}},
			{Name: "plain"},
		},
	}}}
	src := NewTrendSource(p, NewCSVPriceSource(dir), zerolog.Nop())
	assert.True(t, src.Handles("sector_rot"))
	assert.False(t, src.Handles("plain"))

	obs, err := src.Fetch(context.Background(), "sector_rot")
	require.NoError(t, err)
	require.NotNil(t, obs.Value)
	// Ratio 2, 2, 2.4 -> SMA 2.1333, distance 12.5%
	assert.InDelta(t, 12.5, *obs.Value, 1e-6)
	assert.Equal(t, 7, obs.Timestamp.Day())
}

func TestReadPositions(t *testing.T) {
	csv := strings.Join([]string{
		"Symbol,Underlying,Type,Side,Put_Call,Strike,Quantity,Market Value,Account,Description",
		"VWRA,,ETF,,,,100,\"12,500.00\",U1,VANGUARD FTSE ALL-WORLD",
		"SPY 250620P500,SPY,option,,put,500,2,\"$1,200\",U1,",
		"AAPL C,AAPL,option,short,call,200,-1,(350.00),U1,",
		"CASH,,cash,,,,,3000,U1,",
		",,,,,,,,,",
		"BROKEN,,equity,,,,1,n/a,U1,",
	}, "\n")

	positions, err := ReadPositions(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, positions, 5)

	assert.Equal(t, domain.InstrumentEquity, positions[0].Instrument)
	assert.Equal(t, 12500.0, positions[0].MarketValue)

	put := positions[1]
	assert.Equal(t, domain.InstrumentOption, put.Instrument)
	require.NotNil(t, put.Leg)
	assert.Equal(t, "long", put.Leg.Side)
	assert.Equal(t, "put", put.Leg.Right)
	assert.Equal(t, 500.0, put.Leg.Strike)
	assert.Equal(t, 1200.0, put.MarketValue)

	call := positions[2]
	assert.Equal(t, "short", call.Leg.Side)
	assert.Equal(t, -350.0, call.MarketValue)

	assert.Equal(t, domain.InstrumentCash, positions[3].Instrument)
	assert.False(t, positions[3].Malformed())

	assert.True(t, math.IsNaN(positions[4].MarketValue))
	assert.True(t, positions[4].Malformed())
}

func TestCSVPositionSource_Snapshot(t *testing.T) {
	path := writeFile(t, t.TempDir(), "positions.csv", "symbol,instrument,market_value\nVWRA,equity,100\n")
	positions, err := NewCSVPositionSource(path, zerolog.Nop()).Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "VWRA", positions[0].Symbol)
}

type stubSource struct {
	calls atomic.Int32
	fetch func(ctx context.Context, name string) (domain.Observation, error)
}

func (s *stubSource) Fetch(ctx context.Context, name string) (domain.Observation, error) {
	s.calls.Add(1)
	return s.fetch(ctx, name)
}

func fetchPolicy() *policy.Policy {
	return &policy.Policy{Categories: []policy.Category{
		{Name: "credit", Weight: 0.5, Indicators: []policy.Indicator{{Name: "a"}, {Name: "b"}}},
		{Name: "breadth", Weight: 0.5, Indicators: []policy.Indicator{{Name: "slow"}, {Name: "broken"}}},
	}}
}

func TestFetcher_FetchAll_DegradesPerIndicator(t *testing.T) {
	v := 1.0
	src := &stubSource{fetch: func(ctx context.Context, name string) (domain.Observation, error) {
		switch name {
		case "broken":
			return domain.Observation{}, errors.New("boom")
		case "slow":
			<-ctx.Done()
			return domain.Observation{}, ctx.Err()
		}
		return domain.Observation{Value: &v}, nil
	}}

	f := NewFetcher(src, 20*time.Millisecond, zerolog.Nop())
	out, err := f.FetchAll(context.Background(), fetchPolicy())
	require.NoError(t, err)

	assert.Len(t, out, 2)
	assert.Equal(t, "credit", out["a"].Category)
	assert.Equal(t, "b", out["b"].Indicator)
	assert.Equal(t, int32(4), src.calls.Load())
}

func TestFetcher_FetchAll_Cancelled(t *testing.T) {
	src := &stubSource{fetch: func(ctx context.Context, name string) (domain.Observation, error) {
		return domain.Observation{}, nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFetcher(src, time.Second, zerolog.Nop()).FetchAll(ctx, fetchPolicy())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRouter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "DXY.csv", "date,close\n2026-01-05,100\n2026-01-06,100\n")

	p := &policy.Policy{Categories: []policy.Category{{
		Name: "c", Weight: 1,
		Indicators: []policy.Indicator{{Name: "dxy_trend", Trend: &policy.Trend{Symbol: "DXY", Period: 2}}},
	}}}
	primary := &stubSource{fetch: func(ctx context.Context, name string) (domain.Observation, error) {
		return domain.Observation{Status: "primary"}, nil
	}}
	r := NewRouter(primary, NewTrendSource(p, NewCSVPriceSource(dir), zerolog.Nop()))

	obs, err := r.Fetch(context.Background(), "dxy_trend")
	require.NoError(t, err)
	assert.Equal(t, 0.0, *obs.Value)

	obs, err = r.Fetch(context.Background(), "other")
	require.NoError(t, err)
	assert.Equal(t, "primary", obs.Status)
	assert.Equal(t, int32(1), primary.calls.Load())
}
