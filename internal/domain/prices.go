package domain

import (
	"sort"
	"time"
)

// PricePoint is one daily close of a price series
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// PriceSeries is a daily close series ordered by date ascending
type PriceSeries []PricePoint

// Sort orders the series by date
func (s PriceSeries) Sort() {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Date.Before(s[j].Date) })
}

// IndexAt returns the index of the last close dated on or before t's
// UTC calendar day, or -1 when the series starts after t
func (s PriceSeries) IndexAt(t time.Time) int {
	y, m, d := t.UTC().Date()
	day := time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
	i := sort.Search(len(s), func(i int) bool { return s[i].Date.After(day) })
	return i - 1
}

// Closes returns the close values in order
func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Close
	}
	return out
}
