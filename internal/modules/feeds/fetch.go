package feeds

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/modules/policy"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentFetches bounds the number of in-flight indicator fetches
const maxConcurrentFetches = 8

// Router sends trend-derived indicators to the trend source and every
// other indicator to the primary source
type Router struct {
	primary IndicatorSource
	trend   *TrendSource
}

// NewRouter creates a router. trend may be nil.
func NewRouter(primary IndicatorSource, trend *TrendSource) *Router {
	return &Router{primary: primary, trend: trend}
}

// Fetch implements IndicatorSource
func (r *Router) Fetch(ctx context.Context, name string) (domain.Observation, error) {
	if r.trend != nil && r.trend.Handles(name) {
		return r.trend.Fetch(ctx, name)
	}
	if r.primary == nil {
		return domain.Observation{}, ErrNotAvailable
	}
	return r.primary.Fetch(ctx, name)
}

// Fetcher gathers every policy indicator concurrently
type Fetcher struct {
	source  IndicatorSource
	timeout time.Duration
	log     zerolog.Logger
}

// NewFetcher creates a fetcher with a per-indicator timeout
func NewFetcher(source IndicatorSource, timeout time.Duration, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		source:  source,
		timeout: timeout,
		log:     log.With().Str("component", "indicator_fetcher").Logger(),
	}
}

// FetchAll returns the observations that could be fetched, keyed by
// indicator name. A failed fetch only drops that indicator; the scorer
// substitutes its fallback. The error is non-nil only when ctx itself is
// done.
func (f *Fetcher) FetchAll(ctx context.Context, p *policy.Policy) (map[string]domain.Observation, error) {
	var mu sync.Mutex
	out := make(map[string]domain.Observation)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)

	for _, cat := range p.Categories {
		for _, ind := range cat.Indicators {
			category, name := cat.Name, ind.Name
			g.Go(func() error {
				fctx := gctx
				if f.timeout > 0 {
					var cancel context.CancelFunc
					fctx, cancel = context.WithTimeout(gctx, f.timeout)
					defer cancel()
				}

				obs, err := f.source.Fetch(fctx, name)
				if err != nil {
					f.log.Warn().Err(err).Str("indicator", name).Msg("Indicator fetch failed")
					return nil // degrade this indicator only
				}
				obs.Indicator = name
				obs.Category = category

				mu.Lock()
				out[name] = obs
				mu.Unlock()
				return nil
			})
		}
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.log.Info().
		Int("fetched", len(out)).
		Int("configured", len(p.IndicatorNames())).
		Msg("Indicators fetched")
	return out, nil
}
