package alerts

import (
	"testing"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/modules/policy"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fresh(name string, raw float64) domain.Indicator {
	return domain.Indicator{Name: name, Raw: &raw}
}

func testAlerts() policy.Alerts {
	return policy.Alerts{
		AllClear: &policy.AllClear{Message: "ok", Action: "hold", MaxScore: 15},
		Rules: []policy.AlertRule{
			{
				Type: "HIDDEN_DANGER", Severity: domain.SeverityCritical, Message: "hidden", MinAny: 1,
				All: []policy.Condition{{Indicator: "vix", Op: "lt", Value: 15}},
				Any: []policy.Condition{
					{Indicator: "hy_spread", Op: "gt", Value: 4.5},
					{Indicator: "breadth", Op: "lt", Value: 50},
				},
			},
			{
				Type: "CREDIT_WARNING", Severity: domain.SeverityHigh, Message: "credit", MinAny: 1,
				Any: []policy.Condition{{Indicator: "hy_spread", Op: "gt", Value: 5}},
			},
			{
				Type: "BACKWARDATION", Severity: domain.SeverityMedium, Message: "curve", MinAny: 1,
				All: []policy.Condition{{Indicator: "vix_struct", Op: "eq", Status: "Backwardation"}},
			},
		},
	}
}

func TestDetect_HiddenDanger(t *testing.T) {
	d := NewDetector(testAlerts(), zerolog.Nop())

	fired := d.Detect(domain.CompositeScore{
		Score:      40,
		Indicators: []domain.Indicator{fresh("vix", 13), fresh("hy_spread", 4.8), fresh("breadth", 60)},
	})

	require.Len(t, fired, 1)
	assert.Equal(t, "HIDDEN_DANGER", fired[0].Type)
	assert.Equal(t, domain.SeverityCritical, fired[0].Severity)
	assert.Len(t, Critical(fired), 1)
}

func TestDetect_RuleOrderAndMultiple(t *testing.T) {
	d := NewDetector(testAlerts(), zerolog.Nop())

	fired := d.Detect(domain.CompositeScore{
		Score:      70,
		Indicators: []domain.Indicator{fresh("vix", 12), fresh("hy_spread", 6)},
	})

	require.Len(t, fired, 2)
	assert.Equal(t, "HIDDEN_DANGER", fired[0].Type)
	assert.Equal(t, "CREDIT_WARNING", fired[1].Type)
}

func TestDetect_StaleIndicatorNeverMatches(t *testing.T) {
	d := NewDetector(testAlerts(), zerolog.Nop())

	hy := fresh("hy_spread", 9)
	hy.Stale = true
	vix := fresh("vix", 10)
	vix.Neutral = true

	fired := d.Detect(domain.CompositeScore{Score: 50, Indicators: []domain.Indicator{vix, hy}})
	assert.Empty(t, fired)
}

func TestDetect_StatusCondition(t *testing.T) {
	d := NewDetector(testAlerts(), zerolog.Nop())

	fired := d.Detect(domain.CompositeScore{
		Score:      50,
		Indicators: []domain.Indicator{{Name: "vix_struct", Status: "backwardation"}},
	})
	require.Len(t, fired, 1)
	assert.Equal(t, "BACKWARDATION", fired[0].Type)

	fired = d.Detect(domain.CompositeScore{
		Score:      50,
		Indicators: []domain.Indicator{{Name: "vix_struct", Status: "Contango"}},
	})
	assert.Empty(t, fired)
}

func TestDetect_AllClear(t *testing.T) {
	d := NewDetector(testAlerts(), zerolog.Nop())

	fired := d.Detect(domain.CompositeScore{Score: 12, Indicators: []domain.Indicator{fresh("vix", 20)}})
	require.Len(t, fired, 1)
	assert.Equal(t, AllClearType, fired[0].Type)
	assert.Equal(t, domain.SeveritySafe, fired[0].Severity)

	// Score above the all-clear level: nothing
	assert.Empty(t, d.Detect(domain.CompositeScore{Score: 15.1}))

	// Another alert suppresses all-clear even at a low score
	fired = d.Detect(domain.CompositeScore{Score: 10, Indicators: []domain.Indicator{fresh("hy_spread", 5.5)}})
	require.Len(t, fired, 1)
	assert.Equal(t, "CREDIT_WARNING", fired[0].Type)
}

func TestDetect_MinAny(t *testing.T) {
	cfg := testAlerts()
	cfg.Rules[0].MinAny = 2
	d := NewDetector(cfg, zerolog.Nop())

	fired := d.Detect(domain.CompositeScore{
		Score:      40,
		Indicators: []domain.Indicator{fresh("vix", 13), fresh("hy_spread", 4.8), fresh("breadth", 60)},
	})
	assert.Empty(t, fired)

	fired = d.Detect(domain.CompositeScore{
		Score:      40,
		Indicators: []domain.Indicator{fresh("vix", 13), fresh("hy_spread", 4.8), fresh("breadth", 45)},
	})
	require.Len(t, fired, 1)
}

func TestDetect_DefaultPolicy(t *testing.T) {
	p, err := policy.Default(zerolog.Nop())
	require.NoError(t, err)
	d := NewDetector(p.Alerts, zerolog.Nop())

	fired := d.Detect(domain.CompositeScore{
		Score: 55,
		Indicators: []domain.Indicator{
			fresh("vix", 14), fresh("hy_spread", 5.2), fresh("ted_spread", 0.3),
		},
	})
	require.Len(t, fired, 2)
	assert.Equal(t, "HIDDEN_DANGER", fired[0].Type)
	assert.Equal(t, "CREDIT_WARNING", fired[1].Type)
}
