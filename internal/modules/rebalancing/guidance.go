package rebalancing

import (
	"math"
	"sort"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/modules/portfolio"
	"github.com/shopspring/decimal"
)

// Move directions
const (
	DirectionAdd    = "add"
	DirectionReduce = "reduce"
)

// CapitalMove is the amount to shift into or out of a bucket
type CapitalMove struct {
	Bucket    domain.Bucket   `json:"bucket"`
	Direction string          `json:"direction"`
	Amount    decimal.Decimal `json:"amount"`
	Drift     float64         `json:"drift"`
}

// CapitalMoves returns moves for buckets whose absolute drift exceeds band.
// Amount = |signed drift| * total value / 100, rounded to cents.
func CapitalMoves(report *domain.DriftReport, band float64) []CapitalMove {
	if report == nil {
		return nil
	}

	total := decimal.NewFromFloat(report.TotalValue)
	hundred := decimal.NewFromInt(100)

	var moves []CapitalMove
	for _, item := range report.Items {
		if item.Absolute <= band {
			continue
		}
		direction := DirectionAdd
		if item.Signed > 0 {
			direction = DirectionReduce
		}
		amount := decimal.NewFromFloat(item.Absolute).Mul(total).Div(hundred).Round(2)
		moves = append(moves, CapitalMove{
			Bucket:    item.Bucket,
			Direction: direction,
			Amount:    amount,
			Drift:     item.Signed,
		})
	}

	sort.SliceStable(moves, func(i, j int) bool {
		return math.Abs(moves[i].Drift) > math.Abs(moves[j].Drift)
	})
	return moves
}

// ConcentrationWarning flags a single underlying above the concentration limit
type ConcentrationWarning struct {
	Symbol string  `json:"symbol"`
	Weight float64 `json:"weight"`
	Value  float64 `json:"value"`
	Limit  float64 `json:"limit"`
}

// ConcentrationWarnings groups holdings by underlying (cash excluded) and
// returns those weighing more than limit percent of the portfolio
func ConcentrationWarnings(assignments []portfolio.Assignment, totalValue, limit float64) []ConcentrationWarning {
	if totalValue <= 0 {
		return nil
	}

	bySymbol := make(map[string]float64)
	for _, a := range assignments {
		if a.Position.Instrument == domain.InstrumentCash || a.Position.Malformed() {
			continue
		}
		bySymbol[a.Position.UnderlyingSymbol()] += a.Position.MarketValue
	}

	var warnings []ConcentrationWarning
	for symbol, value := range bySymbol {
		weight := value / totalValue * 100
		if weight > limit {
			warnings = append(warnings, ConcentrationWarning{
				Symbol: symbol,
				Weight: round(weight, 2),
				Value:  round(value, 2),
				Limit:  limit,
			})
		}
	}

	sort.Slice(warnings, func(i, j int) bool {
		if warnings[i].Weight != warnings[j].Weight {
			return warnings[i].Weight > warnings[j].Weight
		}
		return warnings[i].Symbol < warnings[j].Symbol
	})
	return warnings
}
