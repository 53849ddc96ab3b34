/**
 * Package services orchestrates the scoring cycle and the validation pass.
 *
 * CycleService runs one advisory cycle end to end:
 * - fetch every indicator concurrently
 * - score, classify the regime, detect divergence alerts
 * - compute targets and drift against the position snapshot
 * - commit history, observations, regime state and drift snapshot in one transaction
 *
 * Everything before the commit is read-only, so a cancelled cycle leaves the ledger untouched.
 */
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/riskpilot/internal/database"
	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/market_regime"
	"github.com/aristath/riskpilot/internal/metrics"
	"github.com/aristath/riskpilot/internal/modules/alerts"
	"github.com/aristath/riskpilot/internal/modules/allocation"
	"github.com/aristath/riskpilot/internal/modules/feeds"
	"github.com/aristath/riskpilot/internal/modules/ledger"
	"github.com/aristath/riskpilot/internal/modules/policy"
	"github.com/aristath/riskpilot/internal/modules/portfolio"
	"github.com/aristath/riskpilot/internal/modules/rebalancing"
	"github.com/aristath/riskpilot/internal/modules/report"
	"github.com/aristath/riskpilot/internal/modules/scoring"
	"github.com/aristath/riskpilot/internal/reliability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CycleResult is the outcome of a committed cycle
type CycleResult struct {
	Payload    report.Payload       `json:"payload"`
	Record     domain.HistoryRecord `json:"record"`
	ReportPath string               `json:"report_path,omitempty"`
	Degraded   []string             `json:"degraded,omitempty"`
}

/**
 * CycleService runs the scheduled scoring cycle.
 *
 * All collaborators are built from one validated policy; the service holds
 * no mutable state of its own. Regime and drift state live in the ledger.
 */
type CycleService struct {
	policy      *policy.Policy
	ledgerDB    *database.DB
	fetcher     *feeds.Fetcher
	positions   feeds.PositionSource
	lock        *reliability.RunLock
	recorder    *metrics.Recorder
	scorer      *scoring.Scorer
	regimes     *market_regime.Classifier
	detector    *alerts.Detector
	allocator   *allocation.Engine
	classifier  *portfolio.Classifier
	suggester   *portfolio.Suggester
	drift       *rebalancing.Calculator
	history     *ledger.HistoryRepository
	observation *ledger.ObservationRepository
	snapshots   *ledger.SnapshotRepository
	regimeStore *market_regime.RegimePersistence
	dataDir     string
	log         zerolog.Logger
	now         func() time.Time
}

/**
 * NewCycleService creates a new CycleService.
 *
 * Parameters:
 *   - p: Validated policy
 *   - ledgerDB: Migrated ledger database
 *   - fetcher: Concurrent indicator fetcher
 *   - positions: Position snapshot source
 *   - lock: Cycle run lock
 *   - recorder: Metrics recorder
 *   - dataDir: Directory receiving the rendered reports
 *   - log: Structured logger
 */
func NewCycleService(
	p *policy.Policy,
	ledgerDB *database.DB,
	fetcher *feeds.Fetcher,
	positions feeds.PositionSource,
	lock *reliability.RunLock,
	recorder *metrics.Recorder,
	dataDir string,
	log zerolog.Logger,
) (*CycleService, error) {
	allocator, err := allocation.NewEngine(p)
	if err != nil {
		return nil, fmt.Errorf("failed to build allocation table: %w", err)
	}

	conn := ledgerDB.Conn()
	return &CycleService{
		policy:      p,
		ledgerDB:    ledgerDB,
		fetcher:     fetcher,
		positions:   positions,
		lock:        lock,
		recorder:    recorder,
		scorer:      scoring.NewScorer(p, log),
		regimes:     market_regime.NewClassifier(p, log),
		detector:    alerts.NewDetector(p.Alerts, log),
		allocator:   allocator,
		classifier:  portfolio.NewClassifier(p.Classification),
		suggester:   portfolio.NewSuggester(p.Classification),
		drift:       rebalancing.NewCalculator(p.Drift, log),
		history:     ledger.NewHistoryRepository(conn, log),
		observation: ledger.NewObservationRepository(conn, log),
		snapshots:   ledger.NewSnapshotRepository(conn, log),
		regimeStore: market_regime.NewRegimePersistence(conn, log),
		dataDir:     dataDir,
		log:         log.With().Str("service", "cycle").Logger(),
		now:         time.Now,
	}, nil
}

// portfolioView is the position-dependent part of a cycle
type portfolioView struct {
	drift         *domain.DriftReport
	moves         []rebalancing.CapitalMove
	concentration []rebalancing.ConcentrationWarning
	uncategorized []portfolio.Suggestion
	degraded      []string
}

/**
 * Run executes one cycle.
 *
 * Returns reliability.ErrCycleInProgress (wrapped) when another cycle holds
 * the lock. Data problems never abort the cycle: they are recorded as
 * degraded conditions on the result and on the history record.
 */
func (s *CycleService) Run(ctx context.Context) (*CycleResult, error) {
	if err := s.lock.Acquire("cycle"); err != nil {
		if errors.Is(err, reliability.ErrCycleInProgress) {
			s.recorder.CycleSkipped()
			s.log.Warn().Err(err).Msg("Skipping cycle")
		}
		return nil, err
	}
	defer func() {
		if err := s.lock.Release(); err != nil {
			s.log.Error().Err(err).Msg("Failed to release run lock")
		}
	}()

	res, err := s.run(ctx)
	if err != nil {
		s.recorder.CycleFailed()
		return nil, err
	}
	return res, nil
}

func (s *CycleService) run(ctx context.Context) (*CycleResult, error) {
	start := s.now()
	cycleID := uuid.NewString()
	log := s.log.With().Str("cycle_id", cycleID).Logger()
	log.Info().Msg("Starting cycle")

	observations, err := s.fetcher.FetchAll(ctx, s.policy)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch indicators: %w", err)
	}

	memory, err := s.observation.LoadMemory(ctx, s.policy)
	if err != nil {
		return nil, err
	}
	prevState, err := s.regimeStore.Load(ctx)
	if err != nil {
		return nil, err
	}
	prior, err := s.snapshots.Load(ctx)
	if err != nil {
		return nil, err
	}

	scored := s.scorer.Score(start, observations, memory)
	composite := scored.Composite
	degraded := scored.Degraded()

	available := availableScore(composite)
	state, assessment := s.regimes.Classify(prevState, available, start)
	persistState := !(assessment.Stale && prevState == nil)
	if assessment.Stale {
		degraded = append(degraded, domain.DegradedRegimeStale)
	}

	fired := s.detector.Detect(composite)

	targets, err := s.allocator.Targets(state.Regime)
	if err != nil {
		return nil, err
	}

	view := s.portfolio(ctx, targets, prior)
	degraded = append(degraded, view.degraded...)

	// Nothing has been written yet; a cancelled cycle leaves no trace
	if err := ctx.Err(); err != nil {
		log.Warn().Err(err).Msg("Cycle cancelled before commit")
		return nil, err
	}

	degraded = uniqueSorted(degraded)
	record := scoring.NewHistoryRecord(cycleID, composite, state.Regime, assessment.Previous, assessment.Transition, fired, degraded)
	record.ScoreUnavailable = available == nil

	err = database.WithTransaction(ctx, s.ledgerDB.Conn(), func(tx *sql.Tx) error {
		if err := s.history.AppendTx(tx, &record); err != nil {
			return err
		}
		if err := s.observation.RecordTx(tx, cycleID, composite); err != nil {
			return err
		}
		if persistState {
			if err := s.regimeStore.SaveTx(tx, state); err != nil {
				return err
			}
		}
		if view.drift != nil {
			if err := s.snapshots.SaveTx(tx, rebalancing.Snapshot(view.drift, start)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to commit cycle: %w", err)
	}

	payload := report.Payload{
		GeneratedAt:    start,
		CycleID:        cycleID,
		Score:          composite.Score,
		CategoryScores: composite.CategoryScores,
		Indicators:     composite.Indicators,
		Verification:   scored.Verification,
		Regime:         state.Regime,
		PreviousRegime: assessment.Previous,
		Transition:     assessment.Transition,
		PendingCount:   assessment.PendingCount,
		Guidance:       s.policy.Guidance(state.Regime),
		Alerts:         fired,
		Targets:        targets,
		Drift:          view.drift,
		Moves:          view.moves,
		Concentration:  view.concentration,
		Uncategorized:  view.uncategorized,
		Degraded:       degraded,
	}

	result := &CycleResult{Payload: payload, Record: record, Degraded: degraded}
	if path, err := report.WriteFile(s.dataDir, payload); err != nil {
		log.Error().Err(err).Msg("Failed to write report file")
	} else {
		result.ReportPath = path
	}

	regimeIndex, _ := s.policy.RegimeIndex(state.Regime)
	var aggregate *float64
	if view.drift != nil {
		aggregate = &view.drift.Aggregate
	}
	took := s.now().Sub(start)
	s.recorder.CycleCompleted(composite.Score, regimeIndex, aggregate, degraded, fired, took)

	log.Info().
		Float64("score", composite.Score).
		Str("regime", string(state.Regime)).
		Str("transition", string(assessment.Transition)).
		Int("alerts", len(fired)).
		Strs("degraded", degraded).
		Dur("duration", took).
		Msg("Cycle committed")

	return result, nil
}

// portfolio classifies the position snapshot and measures drift.
// Feed problems degrade the cycle instead of failing it.
func (s *CycleService) portfolio(ctx context.Context, targets domain.AllocationTarget, prior *domain.DriftSnapshot) portfolioView {
	var view portfolioView

	positions, err := s.positions.Snapshot(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Position snapshot unavailable, skipping drift")
		view.degraded = []string{domain.DegradedPositionsUnavailable, domain.DegradedDriftUnavailable}
		return view
	}

	assignments := s.classifier.ClassifyAll(positions)
	view.uncategorized = s.suggester.Uncategorized(assignments)

	drift, err := s.drift.Calculate(assignments, targets, prior)
	if err != nil {
		s.log.Warn().Err(err).Msg("Drift skipped")
		view.degraded = []string{domain.DegradedDriftUnavailable}
		return view
	}

	view.drift = drift
	view.moves = rebalancing.CapitalMoves(drift, s.policy.Drift.RebalanceBand)
	view.concentration = rebalancing.ConcentrationWarnings(assignments, drift.TotalValue, s.policy.Drift.ConcentrationLimit)
	return view
}

// availableScore returns nil when no indicator produced any reading,
// fresh or carried over, so the regime is held instead of reset to neutral
func availableScore(c domain.CompositeScore) *float64 {
	for _, ind := range c.Indicators {
		if !ind.Neutral {
			score := c.Score
			return &score
		}
	}
	return nil
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
