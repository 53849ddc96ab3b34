package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// driftSnapshotKey is the engine_state row holding the last drift snapshot
const driftSnapshotKey = "drift_snapshot"

// SnapshotRepository persists the drift snapshot used for the next
// cycle's trend
type SnapshotRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewSnapshotRepository creates a new drift snapshot repository
func NewSnapshotRepository(ledgerDB *sql.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "drift_snapshot").Logger(),
	}
}

// Load returns the last snapshot, or nil when none exists
func (r *SnapshotRepository) Load(ctx context.Context) (*domain.DriftSnapshot, error) {
	var blob []byte
	err := r.ledgerDB.QueryRowContext(ctx,
		`SELECT data FROM engine_state WHERE key = ?`, driftSnapshotKey).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load drift snapshot: %w", err)
	}

	var snap domain.DriftSnapshot
	if err := msgpack.Unmarshal(blob, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode drift snapshot: %w", err)
	}
	return &snap, nil
}

// SaveTx replaces the snapshot inside the cycle commit transaction
func (r *SnapshotRepository) SaveTx(tx *sql.Tx, snap domain.DriftSnapshot) error {
	blob, err := msgpack.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("failed to encode drift snapshot: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO engine_state (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, driftSnapshotKey, blob, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store drift snapshot: %w", err)
	}

	r.log.Debug().Float64("aggregate", snap.Aggregate).Msg("Drift snapshot stored")
	return nil
}
