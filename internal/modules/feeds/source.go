// Package feeds adapts external data into engine inputs: indicator
// observations, price series and position snapshots.
//
// Real data providers live outside the engine. The adapters here read the
// files those providers drop into the data directory.
package feeds

import (
	"context"
	"errors"

	"github.com/aristath/riskpilot/internal/domain"
)

// ErrNotAvailable is returned when a source has no reading for an indicator
var ErrNotAvailable = errors.New("indicator not available")

// IndicatorSource delivers the latest observation of one indicator
type IndicatorSource interface {
	Fetch(ctx context.Context, name string) (domain.Observation, error)
}

// PositionSource delivers the current holdings snapshot
type PositionSource interface {
	Snapshot(ctx context.Context) ([]domain.Position, error)
}

// PriceSource delivers a daily close series for a symbol
type PriceSource interface {
	Prices(ctx context.Context, symbol string) (domain.PriceSeries, error)
}
