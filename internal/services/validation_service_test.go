package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aristath/riskpilot/internal/database"
	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/metrics"
	"github.com/aristath/riskpilot/internal/modules/ledger"
	"github.com/aristath/riskpilot/internal/modules/policy"
	"github.com/aristath/riskpilot/internal/modules/validation"
	testingpkg "github.com/aristath/riskpilot/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBenchmark(t *testing.T, start time.Time, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("date,close\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%s,%.2f\n", start.AddDate(0, 0, i).Format("2006-01-02"), 100+float64(i))
	}
	path := filepath.Join(t.TempDir(), "SPY.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

func seedHistory(t *testing.T, db *database.DB, start time.Time, n int) {
	t.Helper()
	history := ledger.NewHistoryRepository(db.Conn(), zerolog.Nop())
	err := database.WithTransaction(context.Background(), db.Conn(), func(tx *sql.Tx) error {
		for i := 0; i < n; i++ {
			rec := &domain.HistoryRecord{
				Timestamp: start.AddDate(0, 0, i).Add(21 * time.Hour),
				CycleID:   fmt.Sprintf("cycle-%02d", i),
				Score:     float64(i * 10),
				Regime:    domain.RegimeNormal,
			}
			if err := history.AppendTx(tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestValidationService_Validate(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	defer cleanup()

	p, err := policy.Default(zerolog.Nop())
	require.NoError(t, err)

	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	seedHistory(t, db, start, 10)
	svc := NewValidationService(p, db, writeBenchmark(t, start, 40), metrics.New(), zerolog.Nop())

	assert.Nil(t, svc.Last())

	rep, err := svc.Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, rep.Records)
	assert.Equal(t, 40, rep.PricePoints)
	assert.Len(t, rep.Horizons, len(p.Validation.Horizons))
	assert.Same(t, rep, svc.Last())
}

func TestValidationService_InsufficientHistory(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	defer cleanup()

	p, err := policy.Default(zerolog.Nop())
	require.NoError(t, err)

	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	seedHistory(t, db, start, 2)
	svc := NewValidationService(p, db, writeBenchmark(t, start, 40), metrics.New(), zerolog.Nop())

	_, err = svc.Validate(context.Background())
	assert.True(t, errors.Is(err, validation.ErrInsufficientData))
	assert.Nil(t, svc.Last())
}

func TestValidationService_MissingBenchmark(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	defer cleanup()

	p, err := policy.Default(zerolog.Nop())
	require.NoError(t, err)

	seedHistory(t, db, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), 10)
	svc := NewValidationService(p, db, filepath.Join(t.TempDir(), "missing.csv"), metrics.New(), zerolog.Nop())

	_, err = svc.Validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read benchmark prices")
}
