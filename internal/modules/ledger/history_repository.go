// Package ledger provides the repositories over ledger.db: the append-only
// cycle history, per-cycle indicator observations and the small engine
// state entities carried from one cycle to the next.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/rs/zerolog"
)

// historyColumns is the column list read back for history records.
// Column order must match scanRecord().
const historyColumns = `id, recorded_at, data`

// HistoryRepository appends and reads cycle history records.
// Records are immutable: the repository has no update or delete path and
// the schema triggers reject both.
type HistoryRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(ledgerDB *sql.DB, log zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "history").Logger(),
	}
}

// AppendTx appends one record inside the cycle commit transaction.
// The assigned row id is written back into rec.
func (r *HistoryRepository) AppendTx(tx *sql.Tx, rec *domain.HistoryRecord) error {
	if rec.CycleID == "" {
		return fmt.Errorf("history record requires a cycle id")
	}
	if rec.SchemaVersion == 0 {
		rec.SchemaVersion = domain.HistorySchemaVersion
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode history record: %w", err)
	}

	result, err := tx.Exec(`
		INSERT INTO history_records (cycle_id, recorded_at, schema_version, score, regime, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.CycleID, rec.Timestamp.Unix(), rec.SchemaVersion, rec.Score, string(rec.Regime), string(data))
	if err != nil {
		return fmt.Errorf("failed to append history record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	rec.ID = id

	r.log.Debug().
		Int64("id", id).
		Str("cycle_id", rec.CycleID).
		Float64("score", rec.Score).
		Msg("History record appended")
	return nil
}

// All returns every record ordered by timestamp, then id
func (r *HistoryRepository) All(ctx context.Context) ([]domain.HistoryRecord, error) {
	return r.query(ctx, `SELECT `+historyColumns+` FROM history_records ORDER BY recorded_at ASC, id ASC`)
}

// Since returns the records at or after t, oldest first
func (r *HistoryRepository) Since(ctx context.Context, t time.Time) ([]domain.HistoryRecord, error) {
	return r.query(ctx, `SELECT `+historyColumns+` FROM history_records
		WHERE recorded_at >= ? ORDER BY recorded_at ASC, id ASC`, t.Unix())
}

// Recent returns the newest limit records, oldest first
func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]domain.HistoryRecord, error) {
	if limit <= 0 {
		limit = 30
	}
	records, err := r.query(ctx, `SELECT `+historyColumns+` FROM history_records
		ORDER BY recorded_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Latest returns the newest record, or nil when the history is empty
func (r *HistoryRepository) Latest(ctx context.Context) (*domain.HistoryRecord, error) {
	row := r.ledgerDB.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM history_records
		ORDER BY recorded_at DESC, id DESC LIMIT 1`)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Count returns the number of stored records
func (r *HistoryRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.ledgerDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM history_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count history records: %w", err)
	}
	return n, nil
}

func (r *HistoryRepository) query(ctx context.Context, query string, args ...interface{}) ([]domain.HistoryRecord, error) {
	rows, err := r.ledgerDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history records: %w", err)
	}
	defer rows.Close()

	var records []domain.HistoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history records: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (domain.HistoryRecord, error) {
	var (
		rec        domain.HistoryRecord
		id         int64
		recordedAt int64
		data       string
	)
	if err := s.Scan(&id, &recordedAt, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan history record: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return rec, fmt.Errorf("failed to decode history record %d: %w", id, err)
	}

	// Columns are authoritative for identity and ordering
	rec.ID = id
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Unix(recordedAt, 0).UTC()
	}
	return rec, nil
}
