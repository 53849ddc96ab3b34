package feeds

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/riskpilot/internal/domain"
)

// priceDateLayouts are the date formats accepted in price files
var priceDateLayouts = []string{"2006-01-02", "2006-01-02T15:04:05Z07:00", "01/02/2006"}

// CSVPriceSource reads <dir>/<SYMBOL>.csv files with date and close columns
type CSVPriceSource struct {
	dir string
}

// NewCSVPriceSource creates a price source over a directory of CSV files
func NewCSVPriceSource(dir string) *CSVPriceSource {
	return &CSVPriceSource{dir: dir}
}

// Prices returns the series for symbol, ordered by date
func (s *CSVPriceSource) Prices(ctx context.Context, symbol string) (domain.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.ToUpper(strings.TrimSpace(symbol)) + ".csv"
	return ReadPriceFile(filepath.Join(s.dir, name))
}

// ReadPriceFile reads a date,close CSV file.
// The header row is required; extra columns are ignored. Rows with an
// unparsable close are skipped.
func ReadPriceFile(path string) (domain.PriceSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open price file: %w", err)
	}
	defer f.Close()

	series, err := ReadPrices(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return series, nil
}

// ReadPrices parses a date,close CSV stream
func ReadPrices(r io.Reader) (domain.PriceSeries, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read price header: %w", err)
	}
	cols := columnIndex(header)
	dateCol, ok := cols["date"]
	if !ok {
		return nil, errors.New("price file has no date column")
	}
	closeCol, ok := cols["close"]
	if !ok {
		if closeCol, ok = cols["adj_close"]; !ok {
			return nil, errors.New("price file has no close column")
		}
	}

	var series domain.PriceSeries
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read price row: %w", err)
		}
		if len(row) <= dateCol || len(row) <= closeCol {
			continue
		}

		date, err := parseDate(row[dateCol])
		if err != nil {
			continue
		}
		closePrice, err := strconv.ParseFloat(strings.TrimSpace(row[closeCol]), 64)
		if err != nil || closePrice <= 0 {
			continue
		}
		series = append(series, domain.PricePoint{Date: date, Close: closePrice})
	}

	series.Sort()
	return series, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range priceDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// columnIndex maps normalized header names to column positions
func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.ReplaceAll(key, " ", "_")
		key = strings.TrimPrefix(key, "\ufeff")
		cols[key] = i
	}
	return cols
}
