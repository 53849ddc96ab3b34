package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/modules/policy"
	"github.com/aristath/riskpilot/internal/modules/scoring"
	"github.com/rs/zerolog"
)

// ObservationRepository stores the normalized indicator readings of each
// cycle and rebuilds the normalizer's memory from them
type ObservationRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewObservationRepository creates a new observation repository
func NewObservationRepository(ledgerDB *sql.DB, log zerolog.Logger) *ObservationRepository {
	return &ObservationRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "observations").Logger(),
	}
}

// RecordTx stores every indicator of a composite score under the cycle id
func (r *ObservationRepository) RecordTx(tx *sql.Tx, cycleID string, score domain.CompositeScore) error {
	stmt, err := tx.Prepare(`
		INSERT INTO indicator_observations
		(cycle_id, indicator, recorded_at, observed_at, raw_value, status, sub_score, fresh)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare observation insert: %w", err)
	}
	defer stmt.Close()

	recordedAt := score.Timestamp.Unix()
	for _, ind := range score.Indicators {
		var observedAt sql.NullInt64
		if !ind.ObservedAt.IsZero() {
			observedAt = sql.NullInt64{Int64: ind.ObservedAt.Unix(), Valid: true}
		}
		var raw sql.NullFloat64
		if ind.Raw != nil {
			raw = sql.NullFloat64{Float64: *ind.Raw, Valid: true}
		}
		var status sql.NullString
		if ind.Status != "" {
			status = sql.NullString{String: ind.Status, Valid: true}
		}

		if _, err := stmt.Exec(cycleID, ind.Name, recordedAt, observedAt, raw, status,
			ind.SubScore, boolToInt(ind.Fresh())); err != nil {
			return fmt.Errorf("failed to record observation %s: %w", ind.Name, err)
		}
	}
	return nil
}

// LoadMemory rebuilds the normalizer memory for every indicator in the
// policy: the last fresh sub-score and the trailing window of fresh raw
// values used by percentile rules.
func (r *ObservationRepository) LoadMemory(ctx context.Context, p *policy.Policy) (scoring.Memory, error) {
	memory := make(scoring.Memory)
	for _, cat := range p.Categories {
		for _, ind := range cat.Indicators {
			hist, err := r.history(ctx, ind)
			if err != nil {
				return nil, err
			}
			memory[ind.Name] = hist
		}
	}
	return memory, nil
}

func (r *ObservationRepository) history(ctx context.Context, ind policy.Indicator) (scoring.History, error) {
	var hist scoring.History

	var (
		subScore   float64
		recordedAt int64
	)
	err := r.ledgerDB.QueryRowContext(ctx, `
		SELECT sub_score, recorded_at FROM indicator_observations
		WHERE indicator = ? AND fresh = 1
		ORDER BY recorded_at DESC, id DESC LIMIT 1
	`, ind.Name).Scan(&subScore, &recordedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return hist, fmt.Errorf("failed to load last sub-score for %s: %w", ind.Name, err)
	default:
		hist.LastSubScore = &subScore
		hist.LastAt = time.Unix(recordedAt, 0).UTC()
	}

	if ind.Rule.Kind != policy.RulePercentile {
		return hist, nil
	}

	rows, err := r.ledgerDB.QueryContext(ctx, `
		SELECT raw_value FROM indicator_observations
		WHERE indicator = ? AND fresh = 1 AND raw_value IS NOT NULL
		ORDER BY recorded_at DESC, id DESC LIMIT ?
	`, ind.Name, ind.Rule.Window)
	if err != nil {
		return hist, fmt.Errorf("failed to load window for %s: %w", ind.Name, err)
	}
	defer rows.Close()

	var window []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return hist, fmt.Errorf("failed to scan window value: %w", err)
		}
		window = append(window, v)
	}
	if err := rows.Err(); err != nil {
		return hist, fmt.Errorf("error iterating window for %s: %w", ind.Name, err)
	}

	// Oldest first
	for i, j := 0, len(window)-1; i < j; i, j = i+1, j-1 {
		window[i], window[j] = window[j], window[i]
	}
	hist.Window = window
	return hist, nil
}

// ForCycle returns the stored readings of one cycle in insertion order
func (r *ObservationRepository) ForCycle(ctx context.Context, cycleID string) ([]domain.Indicator, error) {
	rows, err := r.ledgerDB.QueryContext(ctx, `
		SELECT indicator, observed_at, raw_value, status, sub_score, fresh
		FROM indicator_observations WHERE cycle_id = ? ORDER BY id ASC
	`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var out []domain.Indicator
	for rows.Next() {
		var (
			ind        domain.Indicator
			observedAt sql.NullInt64
			raw        sql.NullFloat64
			status     sql.NullString
			fresh      int
		)
		if err := rows.Scan(&ind.Name, &observedAt, &raw, &status, &ind.SubScore, &fresh); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		if observedAt.Valid {
			ind.ObservedAt = time.Unix(observedAt.Int64, 0).UTC()
		}
		if raw.Valid {
			v := raw.Float64
			ind.Raw = &v
		}
		ind.Status = status.String
		// Stored rows only know whether the reading was fresh
		ind.Stale = fresh == 0
		out = append(out, ind)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
