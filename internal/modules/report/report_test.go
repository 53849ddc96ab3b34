package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/modules/rebalancing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload() Payload {
	raw := 4.8
	return Payload{
		GeneratedAt:    time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC),
		CycleID:        "c1",
		Score:          78.4,
		CategoryScores: map[string]float64{"credit_liquidity": 82, "breadth": 70.5},
		Regime:         domain.RegimeHighRisk,
		PreviousRegime: domain.RegimeElevated,
		Transition:     domain.TransitionUp,
		Guidance:       "Raise cash",
		Indicators: []domain.Indicator{
			{Name: "hy_spread", Raw: &raw, SubScore: 85},
			{Name: "vix_struct", Status: "Backwardation", SubScore: 90, Stale: true},
		},
		Alerts:  []domain.Alert{{Type: "CREDIT_WARNING", Severity: domain.SeverityHigh, Message: "Credit stress", Action: "Go defensive"}},
		Targets: domain.AllocationTarget{domain.BucketStrategicCore: 24, domain.BucketCashReserve: 41},
		Drift: &domain.DriftReport{
			Items:     []domain.BucketDrift{{Bucket: domain.BucketCashReserve, Actual: 10, Target: 41, Signed: -31}},
			Aggregate: 62, Trend: 4, HasPrior: true,
		},
		Moves:    []rebalancing.CapitalMove{{Bucket: domain.BucketCashReserve, Direction: rebalancing.DirectionAdd, Amount: decimal.RequireFromString("31000")}},
		Degraded: []string{domain.DegradedIndicatorStale},
	}
}

func TestRender(t *testing.T) {
	out := Render(samplePayload())

	assert.Contains(t, out, "Risk score: 78.4/100")
	assert.Contains(t, out, "HIGH_RISK (up from ELEVATED)")
	assert.Contains(t, out, "Guidance:   Raise cash")
	assert.Contains(t, out, "hy_spread")
	assert.Contains(t, out, "Backwardation")
	assert.Contains(t, out, "(stale)")
	assert.Contains(t, out, "[HIGH] CREDIT_WARNING: Credit stress")
	assert.Contains(t, out, "drift -31.00")
	assert.Contains(t, out, "(+4.00 vs last cycle)")
	assert.Contains(t, out, "31000.00")
	assert.Contains(t, out, "DEGRADED: indicator_stale")

	// Categories are listed alphabetically
	assert.Less(t, strings.Index(out, "breadth"), strings.Index(out, "credit_liquidity"))
}

func TestRender_NetShortBucket(t *testing.T) {
	p := samplePayload()
	p.Drift.ShortBuckets = []domain.Bucket{domain.BucketIncomeStrategy}

	out := Render(p)
	assert.Contains(t, out, string(domain.BucketIncomeStrategy)+" is net short, counted as empty")
	assert.NotContains(t, Render(samplePayload()), "net short")
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteFile(dir, samplePayload())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "reports", "risk_report_20260302.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "RISK REPORT")
}
