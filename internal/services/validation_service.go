package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/aristath/riskpilot/internal/database"
	"github.com/aristath/riskpilot/internal/metrics"
	"github.com/aristath/riskpilot/internal/modules/feeds"
	"github.com/aristath/riskpilot/internal/modules/ledger"
	"github.com/aristath/riskpilot/internal/modules/policy"
	"github.com/aristath/riskpilot/internal/modules/validation"
	"github.com/rs/zerolog"
)

// ValidationService runs the validation engine over the whole ledger and
// keeps the last successful report for the read API
type ValidationService struct {
	engine    *validation.Engine
	history   *ledger.HistoryRepository
	benchmark string
	recorder  *metrics.Recorder
	log       zerolog.Logger

	mu   sync.RWMutex
	last *validation.Report
}

// NewValidationService creates a validation service reading benchmark
// closes from benchmarkPath
func NewValidationService(
	p *policy.Policy,
	ledgerDB *database.DB,
	benchmarkPath string,
	recorder *metrics.Recorder,
	log zerolog.Logger,
) *ValidationService {
	return &ValidationService{
		engine:    validation.NewEngine(p, log),
		history:   ledger.NewHistoryRepository(ledgerDB.Conn(), log),
		benchmark: benchmarkPath,
		recorder:  recorder,
		log:       log.With().Str("service", "validation").Logger(),
	}
}

// Validate reads the history and benchmark series and runs every analysis.
// It returns validation.ErrInsufficientData while the ledger is too short.
func (s *ValidationService) Validate(ctx context.Context) (*validation.Report, error) {
	records, err := s.history.All(ctx)
	if err != nil {
		return nil, err
	}

	prices, err := feeds.ReadPriceFile(s.benchmark)
	if err != nil {
		return nil, fmt.Errorf("failed to read benchmark prices: %w", err)
	}

	rep, err := s.engine.Run(records, prices)
	if err != nil {
		return nil, err
	}

	for _, h := range rep.Horizons {
		if h.Correlation != nil {
			s.recorder.ValidationCorrelation(h.Horizon, *h.Correlation)
		}
	}

	s.mu.Lock()
	s.last = rep
	s.mu.Unlock()
	return rep, nil
}

// Last returns the most recent successful report, nil before the first run
func (s *ValidationService) Last() *validation.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}
