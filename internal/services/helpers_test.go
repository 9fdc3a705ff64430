package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fairwaybets/tracker/internal/models"
	"github.com/fairwaybets/tracker/internal/providers"
	"github.com/fairwaybets/tracker/pkg/database"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return database.Wrap(db)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func intPtr(n int) *int { return &n }

func floatPtr(f float64) *float64 { return &f }

func strPtr(s string) *string { return &s }

func seedTournament(t *testing.T, db *database.DB, tour models.TourCode, externalID string, start, end time.Time) *models.TrackedTournament {
	t.Helper()
	tournament := &models.TrackedTournament{
		Tour:       tour,
		ExternalID: externalID,
		Name:       "Test Open",
		StartDate:  start,
		EndDate:    end,
		RunID:      uuid.New(),
	}
	require.NoError(t, db.Create(tournament).Error)
	return tournament
}

func seedRecommendation(t *testing.T, db *database.DB, tournamentID uuid.UUID, player string, market models.MarketKey, mutate func(*models.Recommendation)) *models.Recommendation {
	t.Helper()
	rec := &models.Recommendation{
		TournamentID: tournamentID,
		PlayerName:   player,
		Market:       market,
		Tier:         "A",
		RunID:        uuid.New(),
		RunStatus:    models.PublishRunCompleted,
	}
	if mutate != nil {
		mutate(rec)
	}
	require.NoError(t, db.Create(rec).Error)
	return rec
}

func newTestIssues(t *testing.T, db *database.DB) *IssueTracker {
	t.Helper()
	return NewIssueTracker(db, uuid.New(), models.TourPGA)
}

// fakeScoring serves canned leaderboard feeds keyed by external event id.
type fakeScoring struct {
	feeds map[string]*providers.ScoringFeed
	err   error
	calls int
}

func (f *fakeScoring) FetchLeaderboard(_ context.Context, _ models.TourCode, eventID string) (*providers.ScoringFeed, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if feed, ok := f.feeds[eventID]; ok {
		return feed, nil
	}
	return &providers.ScoringFeed{EventID: eventID}, nil
}

// fakeOdds serves canned odds rows keyed by market.
type fakeOdds struct {
	mu      sync.Mutex
	rows    map[models.MarketKey][]models.OddsRow
	errs    map[models.MarketKey]error
	panics  map[models.MarketKey]bool
	fetched []models.MarketKey
}

func (f *fakeOdds) FetchMarketOdds(_ context.Context, _ models.TourCode, _ string, market models.MarketKey) ([]models.OddsRow, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, market)
	f.mu.Unlock()
	if f.panics[market] {
		panic("odds client blew up")
	}
	if err, ok := f.errs[market]; ok {
		return nil, err
	}
	return f.rows[market], nil
}
