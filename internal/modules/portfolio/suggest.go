package portfolio

import (
	"strings"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/modules/policy"
)

// Suggestion proposes a bucket for an equity that fell through to the catch-all
type Suggestion struct {
	Symbol      string        `json:"symbol"`
	Description string        `json:"description,omitempty"`
	Bucket      domain.Bucket `json:"bucket"`
	Reason      string        `json:"reason"`
	MarketValue float64       `json:"market_value"`
}

// Suggester guesses buckets for uncategorized equities from their description
type Suggester struct {
	fund   []string
	growth []string
	core   []string
}

// NewSuggester creates a suggester from the policy's keyword lists
func NewSuggester(c policy.Classification) *Suggester {
	return &Suggester{
		fund:   upper(c.FundKeywords),
		growth: upper(c.GrowthKeywords),
		core:   upper(c.CoreKeywords),
	}
}

// SuggestBucket returns the proposed bucket for one position.
// Funds go to growth or core by keyword, individual stocks stay speculative.
func (s *Suggester) SuggestBucket(p domain.Position) Suggestion {
	desc := strings.ToUpper(p.Description)
	sug := Suggestion{
		Symbol:      p.UnderlyingSymbol(),
		Description: p.Description,
		MarketValue: p.MarketValue,
	}

	switch {
	case !containsAny(desc, s.fund):
		sug.Bucket, sug.Reason = domain.BucketSpeculativeAlpha, "individual stock"
	case containsAny(desc, s.growth):
		sug.Bucket, sug.Reason = domain.BucketGrowthEngine, "growth or tech fund"
	case containsAny(desc, s.core):
		sug.Bucket, sug.Reason = domain.BucketStrategicCore, "broad market fund"
	default:
		sug.Bucket, sug.Reason = domain.BucketStrategicCore, "fund, defaulting to core"
	}
	return sug
}

// Uncategorized returns suggestions for equities that only matched the catch-all
func (s *Suggester) Uncategorized(assignments []Assignment) []Suggestion {
	var out []Suggestion
	for _, a := range assignments {
		if a.Rule != CatchAllRule || a.Position.Instrument != domain.InstrumentEquity || a.Position.Malformed() {
			continue
		}
		out = append(out, s.SuggestBucket(a.Position))
	}
	return out
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func upper(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(s)
	}
	return out
}
