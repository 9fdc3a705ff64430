package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairwaybets/tracker/internal/models"
	"github.com/fairwaybets/tracker/internal/providers"
	"github.com/fairwaybets/tracker/pkg/config"
	"github.com/fairwaybets/tracker/pkg/database"
	"github.com/fairwaybets/tracker/pkg/logger"
)

func newTestEngine(t *testing.T, db *database.DB, clock Clock, scoring scoringSource, odds oddsSource) *Engine {
	t.Helper()
	cfg := &config.Config{
		SupportedTours:       "pga,euro,liv",
		AllowedBookmakers:    "draftkings,fanduel,betmgm",
		CacheTTL:             5 * time.Minute,
		OddsFetchConcurrency: 2,
	}
	return &Engine{
		db:         db,
		cfg:        cfg,
		cache:      NewCacheServiceWithStore(NewMemoryStore(clock), cfg.CacheTTL),
		scoring:    scoring,
		fetcher:    NewMarketOddsFetcher(odds, cfg.OddsFetchConcurrency),
		discovery:  NewDiscoveryService(db, scoring, clock),
		reconciler: NewOddsReconciler(db, clock, cfg.AllowedBookmakerList()),
		runs:       NewRunLedger(db, clock),
		detector:   NewCompletionDetector(clock),
		clock:      clock,
		logger:     logger.GetLogger(),
	}
}

func trackerFixture(t *testing.T) (*database.DB, *fakeClock, *models.TrackedTournament) {
	t.Helper()
	db := newTestDB(t)
	clock := newFakeClock(time.Date(2026, 6, 12, 15, 0, 0, 0, time.UTC))
	tournament := seedTournament(t, db, models.TourPGA, "evt1", clock.Now().AddDate(0, 0, -1), clock.Now().AddDate(0, 0, 2))
	return db, clock, tournament
}

func TestTrackTournamentLiveRow(t *testing.T) {
	db, clock, tournament := trackerFixture(t)
	seedRecommendation(t, db, tournament.ID, "Scottie Scheffler", models.MarketWin, func(rec *models.Recommendation) {
		rec.ExternalPlayerID = strPtr("1001")
		rec.BaselinePrice = floatPtr(4.5)
		rec.BaselineBook = "draftkings"
	})

	scoring := &fakeScoring{feeds: map[string]*providers.ScoringFeed{
		"evt1": {
			EventID: "evt1",
			Rows: []models.ScoringRow{
				{ExternalPlayerID: "1001", PlayerName: "Scottie Scheffler", Position: intPtr(1), CurrentRound: intPtr(2), ThruHoles: intPtr(9), WinProb: floatPtr(0.31)},
			},
		},
	}}
	odds := &fakeOdds{rows: map[models.MarketKey][]models.OddsRow{
		models.MarketWin: {{
			ExternalPlayerID: "1001",
			PlayerName:       "Scottie Scheffler",
			Offers: []models.OddsOffer{
				{Bookmaker: "draftkings", DecimalPrice: 5.4},
				{Bookmaker: "fanduel", DecimalPrice: 5.0},
			},
		}},
	}}

	engine := newTestEngine(t, db, clock, scoring, odds)
	resp, err := engine.TrackTournament(context.Background(), tournament.ID)
	require.NoError(t, err)

	assert.Equal(t, models.TrackingLive, resp.Status)
	require.Len(t, resp.Rows, 1)

	row := resp.Rows[0]
	assert.Equal(t, intPtr(1), row.Position)
	assert.Equal(t, floatPtr(0.31), row.WinProb)
	require.NotNil(t, row.BaselinePrice)
	assert.Equal(t, 4.5, *row.BaselinePrice)
	require.NotNil(t, row.CurrentPrice)
	assert.Equal(t, 5.4, *row.CurrentPrice, "baseline book preferred over the better cross-book price")
	assert.Equal(t, "draftkings", row.CurrentBook)
	assert.False(t, row.CrossBook)

	require.NotNil(t, row.Movement)
	assert.Equal(t, models.MovementUp, row.Movement.Direction)
	assert.InDelta(t, 0.9, row.Movement.DeltaDecimal, 1e-9)

	require.NotNil(t, row.Outcome)
	assert.Equal(t, models.OutcomePending, *row.Outcome)
}

func TestTrackTournamentUnknownIDYieldsEmptyResponse(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock(time.Now())
	engine := newTestEngine(t, db, clock, &fakeScoring{}, &fakeOdds{})

	id := uuid.New()
	resp, err := engine.TrackTournament(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, resp.TournamentID)
	assert.Empty(t, resp.Rows)
	assert.Empty(t, resp.Issues)
}

func TestTrackTournamentCrossBookFallback(t *testing.T) {
	db, clock, tournament := trackerFixture(t)
	seedRecommendation(t, db, tournament.ID, "Rory McIlroy", models.MarketWin, func(rec *models.Recommendation) {
		rec.BaselinePrice = floatPtr(9.0)
		rec.BaselineBook = "betmgm"
	})

	scoring := &fakeScoring{feeds: map[string]*providers.ScoringFeed{
		"evt1": {EventID: "evt1", Rows: []models.ScoringRow{{PlayerName: "Rory McIlroy", Position: intPtr(4)}}},
	}}
	odds := &fakeOdds{rows: map[models.MarketKey][]models.OddsRow{
		models.MarketWin: {{
			PlayerName: "Rory McIlroy",
			Offers: []models.OddsOffer{
				{Bookmaker: "fanduel", DecimalPrice: 8.0},
				{Bookmaker: "draftkings", DecimalPrice: 8.5},
			},
		}},
	}}

	engine := newTestEngine(t, db, clock, scoring, odds)
	resp, err := engine.TrackTournament(context.Background(), tournament.ID)
	require.NoError(t, err)

	require.Len(t, resp.Rows, 1)
	row := resp.Rows[0]
	assert.True(t, row.CrossBook)
	require.NotNil(t, row.CurrentPrice)
	assert.Equal(t, 8.0, *row.CurrentPrice, "lowest decimal wins when crossing books")
	assert.Equal(t, "fanduel", row.CurrentBook)

	severities := make(map[string]models.IssueSeverity)
	for _, issue := range resp.Issues {
		severities[issue.Step] = issue.Severity
	}
	assert.Equal(t, models.SeverityInfo, severities[models.StepBookNotAvailable], "an unavailable same-book offer is expected, not alarming")
	assert.Equal(t, models.SeverityInfo, severities[models.StepOddsCrossBook])
}

func TestTrackTournamentScoringOutageDegrades(t *testing.T) {
	db, clock, tournament := trackerFixture(t)
	seedRecommendation(t, db, tournament.ID, "Jon Rahm", models.MarketWin, func(rec *models.Recommendation) {
		rec.BaselinePrice = floatPtr(11.0)
		rec.BaselineBook = "draftkings"
	})

	scoring := &fakeScoring{err: errors.New("feed down")}
	odds := &fakeOdds{rows: map[models.MarketKey][]models.OddsRow{
		models.MarketWin: {{
			PlayerName: "Jon Rahm",
			Offers:     []models.OddsOffer{{Bookmaker: "draftkings", DecimalPrice: 12.0}},
		}},
	}}

	engine := newTestEngine(t, db, clock, scoring, odds)
	resp, err := engine.TrackTournament(context.Background(), tournament.ID)
	require.NoError(t, err, "scoring outage must not fail the request")

	assert.Equal(t, models.TrackingNoData, resp.Status)
	require.Len(t, resp.Rows, 1)

	row := resp.Rows[0]
	assert.Nil(t, row.Outcome, "no live data, no settlement")
	require.NotNil(t, row.CurrentPrice, "odds still reconcile without scoring")
	assert.Equal(t, 12.0, *row.CurrentPrice)

	var sawOutage bool
	for _, issue := range resp.Issues {
		if issue.Step == models.StepStatsMissing {
			sawOutage = true
		}
	}
	assert.True(t, sawOutage)
}

func TestTrackTournamentEventMismatchDiscardsFeed(t *testing.T) {
	db, clock, tournament := trackerFixture(t)
	seedRecommendation(t, db, tournament.ID, "Jon Rahm", models.MarketWin, nil)

	scoring := &fakeScoring{feeds: map[string]*providers.ScoringFeed{
		"evt1": {EventID: "evt-other", Rows: []models.ScoringRow{{PlayerName: "Jon Rahm", Position: intPtr(1)}}},
	}}

	engine := newTestEngine(t, db, clock, scoring, &fakeOdds{})
	resp, err := engine.TrackTournament(context.Background(), tournament.ID)
	require.NoError(t, err)

	assert.Equal(t, models.TrackingNoData, resp.Status)
	require.Len(t, resp.Rows, 1)
	assert.Nil(t, resp.Rows[0].Position, "mismatched feed must not populate rows")

	var sawMismatch bool
	for _, issue := range resp.Issues {
		if issue.Step == models.StepEventMismatch {
			sawMismatch = true
		}
	}
	assert.True(t, sawMismatch)
}

func TestTrackTournamentMergesSiblingRecords(t *testing.T) {
	db, clock, tournament := trackerFixture(t)
	sibling := seedTournament(t, db, models.TourPGA, "evt1", tournament.StartDate, tournament.EndDate)

	seedRecommendation(t, db, tournament.ID, "Jon Rahm", models.MarketWin, nil)
	seedRecommendation(t, db, sibling.ID, "Ludvig Aberg", "top_5", nil)

	scoring := &fakeScoring{feeds: map[string]*providers.ScoringFeed{"evt1": {EventID: "evt1"}}}
	engine := newTestEngine(t, db, clock, scoring, &fakeOdds{})

	resp, err := engine.TrackTournament(context.Background(), tournament.ID)
	require.NoError(t, err)
	assert.Len(t, resp.Rows, 2, "recommendations from duplicate records merge into one view")
}

func TestTrackTournamentUnknownMarketSkipped(t *testing.T) {
	db, clock, tournament := trackerFixture(t)
	seedRecommendation(t, db, tournament.ID, "Jon Rahm", "each_way", nil)

	scoring := &fakeScoring{feeds: map[string]*providers.ScoringFeed{
		"evt1": {EventID: "evt1", Rows: []models.ScoringRow{{PlayerName: "Jon Rahm", Position: intPtr(2)}}},
	}}
	odds := &fakeOdds{}
	engine := newTestEngine(t, db, clock, scoring, odds)

	resp, err := engine.TrackTournament(context.Background(), tournament.ID)
	require.NoError(t, err)

	require.Len(t, resp.Rows, 1)
	assert.Nil(t, resp.Rows[0].Outcome)
	assert.Empty(t, odds.fetched, "no odds fetch for an unsettleable market")

	var sawUnknown bool
	for _, issue := range resp.Issues {
		if issue.Step == models.StepMarketNotSupported {
			sawUnknown = true
		}
	}
	assert.True(t, sawUnknown)
}

func TestTrackTournamentUsesCache(t *testing.T) {
	db, clock, tournament := trackerFixture(t)
	seedRecommendation(t, db, tournament.ID, "Jon Rahm", models.MarketWin, nil)

	scoring := &fakeScoring{feeds: map[string]*providers.ScoringFeed{
		"evt1": {EventID: "evt1", Rows: []models.ScoringRow{{PlayerName: "Jon Rahm", Position: intPtr(1)}}},
	}}
	engine := newTestEngine(t, db, clock, scoring, &fakeOdds{})

	_, err := engine.TrackTournament(context.Background(), tournament.ID)
	require.NoError(t, err)
	_, err = engine.TrackTournament(context.Background(), tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, scoring.calls, "second call served from cache")

	// Expiry forces a refetch.
	clock.Advance(6 * time.Minute)
	_, err = engine.TrackTournament(context.Background(), tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, scoring.calls)
}

func TestTrackToursBundlesActiveTournaments(t *testing.T) {
	db, clock, tournament := trackerFixture(t)
	seedRecommendation(t, db, tournament.ID, "Jon Rahm", models.MarketWin, nil)

	// A future event on the same tour is discovery-only, not tracked here.
	future := seedTournament(t, db, models.TourPGA, "evt9", clock.Now().AddDate(0, 0, 10), clock.Now().AddDate(0, 0, 13))
	seedRecommendation(t, db, future.ID, "Ludvig Aberg", models.MarketWin, nil)

	scoring := &fakeScoring{feeds: map[string]*providers.ScoringFeed{
		"evt1": {EventID: "evt1", Rows: []models.ScoringRow{{PlayerName: "Jon Rahm", Position: intPtr(1)}}},
	}}
	engine := newTestEngine(t, db, clock, scoring, &fakeOdds{})

	resp, err := engine.TrackTours(context.Background(), []models.TourCode{models.TourPGA})
	require.NoError(t, err)
	require.Len(t, resp.Tournaments, 1)
	assert.Equal(t, "evt1", resp.Tournaments[0].ExternalID)
	assert.Len(t, resp.Tournaments[0].Rows, 1)
}

func TestDiscoverTrackedTournamentsFlagsUnsupportedTour(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock(time.Date(2026, 6, 12, 12, 0, 0, 0, time.UTC))
	engine := newTestEngine(t, db, clock, &fakeScoring{}, &fakeOdds{})

	resp, err := engine.DiscoverTrackedTournaments(context.Background(), []models.TourCode{"lpga", models.TourPGA}, true)
	require.NoError(t, err)
	assert.Empty(t, resp.Tournaments)

	var sawUnsupported bool
	for _, issue := range resp.Issues {
		if issue.Step == models.StepTourNotSupported {
			sawUnsupported = true
		}
	}
	assert.True(t, sawUnsupported)
}
