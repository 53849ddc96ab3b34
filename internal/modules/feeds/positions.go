package feeds

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/rs/zerolog"
)

// CSVPositionSource reads a custodian position export.
//
// Recognized columns (header names are case-insensitive): symbol,
// underlying, instrument (or type), side, right (or put_call), moneyness,
// strike, quantity, market_value (or value), account, description.
// Rows that cannot be parsed are kept with a NaN market value so the drift
// calculator counts them as malformed.
type CSVPositionSource struct {
	path string
	log  zerolog.Logger
}

// NewCSVPositionSource creates a position source over the file at path
func NewCSVPositionSource(path string, log zerolog.Logger) *CSVPositionSource {
	return &CSVPositionSource{
		path: path,
		log:  log.With().Str("source", "position_csv").Logger(),
	}
}

// Snapshot reads the current holdings
func (s *CSVPositionSource) Snapshot(ctx context.Context) ([]domain.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open position file: %w", err)
	}
	defer f.Close()

	positions, err := ReadPositions(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}

	s.log.Debug().Int("positions", len(positions)).Msg("Position snapshot loaded")
	return positions, nil
}

// ReadPositions parses a position export stream
func ReadPositions(r io.Reader) ([]domain.Position, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read position header: %w", err)
	}
	cols := columnIndex(header)
	if _, ok := lookup(cols, "symbol"); !ok {
		return nil, errors.New("position file has no symbol column")
	}

	var positions []domain.Position
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read position row: %w", err)
		}
		if blank(row) {
			continue
		}
		positions = append(positions, parsePosition(cols, row))
	}
	return positions, nil
}

func parsePosition(cols map[string]int, row []string) domain.Position {
	field := func(names ...string) string {
		if i, ok := lookup(cols, names...); ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	p := domain.Position{
		Symbol:      field("symbol"),
		Underlying:  field("underlying"),
		Instrument:  domain.ParseInstrumentType(field("instrument", "type", "asset_class")),
		AccountID:   field("account", "account_id"),
		Description: field("description", "name"),
		MarketValue: parseNumber(field("market_value", "value")),
	}
	if qty := parseNumber(field("quantity", "qty")); !math.IsNaN(qty) {
		p.Quantity = qty
	}

	if p.Instrument.IsDerivative() {
		leg := &domain.OptionLeg{
			Side:      strings.ToLower(field("side")),
			Right:     strings.ToLower(field("right", "put_call")),
			Moneyness: strings.ToLower(field("moneyness")),
		}
		if strike := parseNumber(field("strike")); !math.IsNaN(strike) {
			leg.Strike = strike
		}
		if leg.Side == "" {
			leg.Side = "long"
			if p.Quantity < 0 {
				leg.Side = "short"
			}
		}
		p.Leg = leg
	}
	return p
}

// parseNumber accepts values such as "1,234.50", "$980" or "(12.00)".
// Unparsable input yields NaN.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	s = strings.Trim(s, "()")
	s = strings.NewReplacer(",", "", "$", "", "€", "", " ", "").Replace(s)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	if negative {
		v = -v
	}
	return v
}

func lookup(cols map[string]int, names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := cols[n]; ok {
			return i, true
		}
	}
	return 0, false
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
