package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairwaybets/tracker/internal/models"
	"github.com/fairwaybets/tracker/internal/providers"
)

func liveFeed(eventID string, players ...string) *providers.ScoringFeed {
	feed := &providers.ScoringFeed{EventID: eventID}
	for i, name := range players {
		feed.Rows = append(feed.Rows, models.ScoringRow{PlayerName: name, Position: intPtr(i + 1)})
	}
	return feed
}

func TestDiscoverOnlyPublishedTournaments(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock(time.Date(2026, 6, 12, 12, 0, 0, 0, time.UTC))
	scoring := &fakeScoring{feeds: map[string]*providers.ScoringFeed{"evt1": liveFeed("evt1", "A B")}}
	s := NewDiscoveryService(db, scoring, clock)

	tracked := seedTournament(t, db, models.TourPGA, "evt1", clock.Now().AddDate(0, 0, -1), clock.Now().AddDate(0, 0, 2))
	seedRecommendation(t, db, tracked.ID, "A B", models.MarketWin, nil)

	// Same window, but its only recommendation never finished publishing.
	pending := seedTournament(t, db, models.TourPGA, "evt2", clock.Now().AddDate(0, 0, -1), clock.Now().AddDate(0, 0, 2))
	seedRecommendation(t, db, pending.ID, "C D", models.MarketWin, func(rec *models.Recommendation) {
		rec.RunStatus = "running"
	})

	// Long gone.
	old := seedTournament(t, db, models.TourPGA, "evt3", clock.Now().AddDate(0, 0, -30), clock.Now().AddDate(0, 0, -27))
	seedRecommendation(t, db, old.ID, "E F", models.MarketWin, nil)

	resp, err := s.Discover(context.Background(), []models.TourCode{models.TourPGA}, true, nil)
	require.NoError(t, err)
	require.Len(t, resp.Tournaments, 1)
	assert.Equal(t, "evt1", resp.Tournaments[0].ExternalID)
	assert.Equal(t, models.TrackingLive, resp.Tournaments[0].Status)
	assert.Equal(t, 1, resp.Tournaments[0].TrackedCount)
}

func TestDiscoverMergesDuplicateRecords(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock(time.Date(2026, 6, 12, 12, 0, 0, 0, time.UTC))
	scoring := &fakeScoring{feeds: map[string]*providers.ScoringFeed{"evt1": liveFeed("evt1", "A B")}}
	s := NewDiscoveryService(db, scoring, clock)

	first := seedTournament(t, db, models.TourPGA, "evt1", clock.Now().AddDate(0, 0, -1), clock.Now().AddDate(0, 0, 2))
	seedRecommendation(t, db, first.ID, "A B", models.MarketWin, nil)

	second := seedTournament(t, db, models.TourPGA, "evt1", clock.Now().AddDate(0, 0, -1), clock.Now().AddDate(0, 0, 2))
	second.Name = "US Open"
	require.NoError(t, db.Save(second).Error)
	seedRecommendation(t, db, second.ID, "C D", models.MarketWin, nil)
	seedRecommendation(t, db, second.ID, "E F", "top_5", nil)

	resp, err := s.Discover(context.Background(), []models.TourCode{models.TourPGA}, true, nil)
	require.NoError(t, err)
	require.Len(t, resp.Tournaments, 1)

	merged := resp.Tournaments[0]
	assert.Equal(t, 3, merged.TrackedCount, "counts summed across duplicate records")
	assert.Equal(t, "US Open", merged.Name, "metadata from the record with more recommendations")
	assert.Equal(t, 1, scoring.calls, "live probe memoized per event")
}

func TestDiscoverUpcomingHandling(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock(time.Date(2026, 6, 12, 12, 0, 0, 0, time.UTC))
	s := NewDiscoveryService(db, &fakeScoring{}, clock)

	future := seedTournament(t, db, models.TourEuro, "evt9", clock.Now().AddDate(0, 0, 5), clock.Now().AddDate(0, 0, 8))
	seedRecommendation(t, db, future.ID, "A B", models.MarketWin, nil)

	withUpcoming, err := s.Discover(context.Background(), []models.TourCode{models.TourEuro}, true, nil)
	require.NoError(t, err)
	require.Len(t, withUpcoming.Tournaments, 1)
	entry := withUpcoming.Tournaments[0]
	assert.Equal(t, models.TrackingUpcoming, entry.Status)
	require.NotNil(t, entry.DaysUntilStart)
	assert.Equal(t, 5, *entry.DaysUntilStart)

	withoutUpcoming, err := s.Discover(context.Background(), []models.TourCode{models.TourEuro}, false, nil)
	require.NoError(t, err)
	assert.Empty(t, withoutUpcoming.Tournaments)
}

func TestDiscoverProbeFailureDegrades(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock(time.Date(2026, 6, 12, 12, 0, 0, 0, time.UTC))
	// Feed knows nothing about the event, so the probe returns no rows.
	s := NewDiscoveryService(db, &fakeScoring{}, clock)
	issues := newTestIssues(t, db)

	tournament := seedTournament(t, db, models.TourPGA, "evt1", clock.Now().AddDate(0, 0, -1), clock.Now().AddDate(0, 0, 2))
	seedRecommendation(t, db, tournament.ID, "A B", models.MarketWin, nil)

	resp, err := s.Discover(context.Background(), []models.TourCode{models.TourPGA}, true, issues)
	require.NoError(t, err)
	require.Len(t, resp.Tournaments, 1)
	assert.Equal(t, models.TrackingNoData, resp.Tournaments[0].Status)

	recorded := issues.Issues()
	require.Len(t, recorded, 1)
	assert.Equal(t, models.StepEventNotInPlay, recorded[0].Step)
	assert.Equal(t, models.SeverityInfo, recorded[0].Severity)
}

func TestDiscoverSortsLiveFirst(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock(time.Date(2026, 6, 12, 12, 0, 0, 0, time.UTC))
	scoring := &fakeScoring{feeds: map[string]*providers.ScoringFeed{"evt2": liveFeed("evt2", "A B")}}
	s := NewDiscoveryService(db, scoring, clock)

	upcoming := seedTournament(t, db, models.TourPGA, "evt1", clock.Now().AddDate(0, 0, 2), clock.Now().AddDate(0, 0, 5))
	seedRecommendation(t, db, upcoming.ID, "A B", models.MarketWin, nil)

	live := seedTournament(t, db, models.TourPGA, "evt2", clock.Now().AddDate(0, 0, -1), clock.Now().AddDate(0, 0, 2))
	seedRecommendation(t, db, live.ID, "C D", models.MarketWin, nil)

	resp, err := s.Discover(context.Background(), []models.TourCode{models.TourPGA}, true, nil)
	require.NoError(t, err)
	require.Len(t, resp.Tournaments, 2)
	assert.Equal(t, "evt2", resp.Tournaments[0].ExternalID, "live event sorts first")
	assert.Equal(t, "evt1", resp.Tournaments[1].ExternalID)
}
