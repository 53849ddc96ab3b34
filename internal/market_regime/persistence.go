package market_regime

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

// regimeStateKey is the engine_state row holding the classifier state
const regimeStateKey = "regime_state"

// RegimePersistence loads and stores the single regime state entity
type RegimePersistence struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRegimePersistence creates a new regime persistence manager
func NewRegimePersistence(db *sql.DB, log zerolog.Logger) *RegimePersistence {
	return &RegimePersistence{
		db:  db,
		log: log.With().Str("component", "regime_persistence").Logger(),
	}
}

// Load returns the persisted state, or nil when none has been stored yet
func (rp *RegimePersistence) Load(ctx context.Context) (*domain.RegimeState, error) {
	var blob []byte
	err := rp.db.QueryRowContext(ctx,
		`SELECT data FROM engine_state WHERE key = ?`, regimeStateKey).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load regime state: %w", err)
	}

	var state domain.RegimeState
	if err := msgpack.Unmarshal(blob, &state); err != nil {
		return nil, fmt.Errorf("failed to decode regime state: %w", err)
	}
	return &state, nil
}

// SaveTx stores the state inside the cycle commit transaction
func (rp *RegimePersistence) SaveTx(tx *sql.Tx, state domain.RegimeState) error {
	blob, err := msgpack.Marshal(&state)
	if err != nil {
		return fmt.Errorf("failed to encode regime state: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO engine_state (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, regimeStateKey, blob, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store regime state: %w", err)
	}

	rp.log.Debug().
		Str("regime", string(state.Regime)).
		Int("pending_direction", state.PendingDirection).
		Int("pending_count", state.PendingCount).
		Msg("Regime state stored")
	return nil
}
