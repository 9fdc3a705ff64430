package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairwaybets/tracker/internal/models"
)

func TestEnsureDailyRunCreatesOncePerDay(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock(time.Date(2026, 6, 12, 9, 0, 0, 0, time.UTC))
	ledger := NewRunLedger(db, clock)

	first, err := ledger.EnsureDailyRun([]string{"pga"})
	require.NoError(t, err)
	assert.Equal(t, "2026-06-12", first.Day)

	// Later calls the same day return the same run.
	clock.Advance(6 * time.Hour)
	second, err := ledger.EnsureDailyRun([]string{"pga", "euro"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	db.Model(&models.TrackingRun{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestEnsureDailyRunRollsOverAtMidnight(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock(time.Date(2026, 6, 12, 23, 30, 0, 0, time.UTC))
	ledger := NewRunLedger(db, clock)

	today, err := ledger.EnsureDailyRun([]string{"pga"})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	tomorrow, err := ledger.EnsureDailyRun([]string{"pga"})
	require.NoError(t, err)

	assert.NotEqual(t, today.ID, tomorrow.ID)
	assert.Equal(t, "2026-06-13", tomorrow.Day)
}
