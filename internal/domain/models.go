// Package domain provides core domain models and types.
package domain

import (
	"math"
	"strings"
	"time"
)

// InstrumentType represents the kind of instrument a position holds
type InstrumentType string

const (
	// InstrumentEquity represents shares and exchange traded funds
	InstrumentEquity InstrumentType = "equity"
	// InstrumentOption represents listed equity or index options
	InstrumentOption InstrumentType = "option"
	// InstrumentFuturesOption represents options on futures (e.g. /ES)
	InstrumentFuturesOption InstrumentType = "futures_option"
	// InstrumentCash represents cash balances and money market sweeps
	InstrumentCash InstrumentType = "cash"
)

// Valid reports whether the instrument type is one the engine understands
func (t InstrumentType) Valid() bool {
	switch t {
	case InstrumentEquity, InstrumentOption, InstrumentFuturesOption, InstrumentCash:
		return true
	}
	return false
}

// IsDerivative reports whether the instrument is an option of any kind
func (t InstrumentType) IsDerivative() bool {
	return t == InstrumentOption || t == InstrumentFuturesOption
}

// ParseInstrumentType maps custodian spellings to an InstrumentType.
// Unknown values are returned verbatim so callers can flag them as malformed.
func ParseInstrumentType(s string) InstrumentType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equity", "stock", "etf", "share", "shares":
		return InstrumentEquity
	case "option", "options", "equity_option":
		return InstrumentOption
	case "futures_option", "future_option", "futures option", "fop":
		return InstrumentFuturesOption
	case "cash", "money_market", "sweep":
		return InstrumentCash
	}
	return InstrumentType(strings.ToLower(strings.TrimSpace(s)))
}

// OptionLeg describes the derivative details of an option position
type OptionLeg struct {
	Side      string  `json:"side"`      // long or short
	Right     string  `json:"right"`     // call or put
	Moneyness string  `json:"moneyness"` // ITM, ATM, OTM
	Strike    float64 `json:"strike,omitempty"`
}

// Position represents a single holding from the custodian snapshot
type Position struct {
	Leg         *OptionLeg     `json:"leg,omitempty"`
	Symbol      string         `json:"symbol"`
	Underlying  string         `json:"underlying,omitempty"`
	Instrument  InstrumentType `json:"instrument"`
	AccountID   string         `json:"account_id,omitempty"`
	Description string         `json:"description,omitempty"`
	Quantity    float64        `json:"quantity"`
	MarketValue float64        `json:"market_value"`
}

// UnderlyingSymbol returns the symbol used for classification.
// Options resolve to their underlying, everything else to its own symbol.
func (p Position) UnderlyingSymbol() string {
	if p.Underlying != "" {
		return strings.ToUpper(strings.TrimSpace(p.Underlying))
	}
	return strings.ToUpper(strings.TrimSpace(p.Symbol))
}

// Malformed reports whether the position cannot be used for drift
func (p Position) Malformed() bool {
	if p.Instrument != InstrumentCash && strings.TrimSpace(p.Symbol) == "" {
		return true
	}
	if !p.Instrument.Valid() {
		return true
	}
	return math.IsNaN(p.MarketValue) || math.IsInf(p.MarketValue, 0)
}

// Observation is a raw indicator reading as delivered by an indicator source
type Observation struct {
	Timestamp time.Time `json:"timestamp"`
	Value     *float64  `json:"value,omitempty"`
	Category  string    `json:"category"`
	Indicator string    `json:"indicator"`
	Status    string    `json:"status,omitempty"` // string-valued indicators (e.g. "Contango")
}

// HasValue reports whether the observation carries a usable numeric value
func (o Observation) HasValue() bool {
	return o.Value != nil && !math.IsNaN(*o.Value) && !math.IsInf(*o.Value, 0)
}

// Indicator is a normalized indicator reading owned by the composite score
type Indicator struct {
	ObservedAt time.Time `json:"observed_at"`
	Raw        *float64  `json:"raw,omitempty"`
	Category   string    `json:"category"`
	Name       string    `json:"name"`
	Status     string    `json:"status,omitempty"`
	Warning    string    `json:"warning,omitempty"`
	SubScore   float64   `json:"sub_score"`
	Weight     float64   `json:"weight"`
	Stale      bool      `json:"stale,omitempty"`
	Neutral    bool      `json:"neutral,omitempty"`
	Critical   bool      `json:"critical,omitempty"`
}

// Fresh reports whether the sub-score came from a current observation
func (i Indicator) Fresh() bool {
	return !i.Stale && !i.Neutral
}

// CompositeScore is the weighted aggregate risk score of one cycle
type CompositeScore struct {
	Timestamp      time.Time          `json:"timestamp"`
	CategoryScores map[string]float64 `json:"category_scores"`
	Indicators     []Indicator        `json:"indicators"`
	Score          float64            `json:"score"`
}

// Indicator returns the named indicator reading, if present
func (c CompositeScore) Indicator(name string) (Indicator, bool) {
	for _, ind := range c.Indicators {
		if ind.Name == name {
			return ind, true
		}
	}
	return Indicator{}, false
}
