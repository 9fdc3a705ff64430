package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/fairwaybets/tracker/internal/models"
	"github.com/fairwaybets/tracker/internal/providers"
	"github.com/fairwaybets/tracker/pkg/config"
	"github.com/fairwaybets/tracker/pkg/database"
	"github.com/fairwaybets/tracker/pkg/logger"
)

// Engine is the tracking facade: discovery of trackable tournaments and
// per-tournament reconciliation of recommendations against live feeds.
// Every operation degrades per-row on partial data; only a tournament that
// does not exist at all yields an empty response.
type Engine struct {
	db         *database.DB
	cfg        *config.Config
	cache      *CacheService
	scoring    scoringSource
	fetcher    *MarketOddsFetcher
	discovery  *DiscoveryService
	reconciler *OddsReconciler
	runs       *RunLedger
	detector   *CompletionDetector
	clock      Clock
	logger     *logrus.Logger
}

// NewEngine wires the engine with live feed clients. Tests assemble the
// struct directly with fakes.
func NewEngine(db *database.DB, cfg *config.Config) *Engine {
	clock := SystemClock{}
	scoring := providers.NewScoringClient(cfg)
	odds := providers.NewOddsClient(cfg)
	return &Engine{
		db:         db,
		cfg:        cfg,
		cache:      NewCacheService(cfg, clock),
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

// DiscoverTrackedTournaments lists tournaments with published
// recommendations across the requested tours. Unsupported tours are
// flagged and skipped, never fatal.
func (e *Engine) DiscoverTrackedTournaments(ctx context.Context, tours []models.TourCode, includeUpcoming bool) (*models.DiscoveryResponse, error) {
	if len(tours) == 0 {
		for _, t := range e.cfg.SupportedTourList() {
			tours = append(tours, models.TourCode(t))
		}
	}

	cacheKey := BuildKey("discovery", joinTours(tours), boolKey(includeUpcoming))
	var cached models.DiscoveryResponse
	if err := e.cache.GetJSON(ctx, cacheKey, &cached); err == nil {
		return &cached, nil
	}

	run, err := e.runs.EnsureDailyRun(tourStrings(tours))
	if err != nil {
		return nil, err
	}
	issues := NewIssueTracker(e.db, run.ID, "")

	supported := make([]models.TourCode, 0, len(tours))
	for _, tour := range tours {
		if !models.IsSupportedTour(tour) {
			issues.Record(models.SeverityWarning, models.StepTourNotSupported,
				fmt.Sprintf("Tour %q is not supported", tour),
				map[string]interface{}{"tour": tour})
			continue
		}
		supported = append(supported, tour)
	}

	resp, err := e.discovery.Discover(ctx, supported, includeUpcoming, issues)
	if err != nil {
		return nil, err
	}
	resp.Issues = issues.Issues()

	e.cache.SetJSON(ctx, cacheKey, resp)
	return resp, nil
}

// TrackTournament builds the live tracking view for one tournament. A
// tournament id that matches nothing yields an empty response, not an
// error; every other data problem degrades the affected rows and is
// reported through Issues.
func (e *Engine) TrackTournament(ctx context.Context, tournamentID uuid.UUID) (*models.TournamentTrackingResponse, error) {
	cacheKey := BuildKey("tracking", tournamentID.String())
	var cached models.TournamentTrackingResponse
	if err := e.cache.GetJSON(ctx, cacheKey, &cached); err == nil {
		return &cached, nil
	}

	now := e.clock.Now().UTC()

	var tournament models.TrackedTournament
	if err := e.db.Where("id = ?", tournamentID).First(&tournament).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.TournamentTrackingResponse{
				TournamentID: tournamentID,
				GeneratedAt:  now,
				Rows:         []models.TrackingRow{},
				Issues:       []models.DataIssue{},
			}, nil
		}
		return nil, fmt.Errorf("failed to load tournament: %w", err)
	}

	run, err := e.runs.EnsureDailyRun([]string{string(tournament.Tour)})
	if err != nil {
		return nil, err
	}
	issues := NewIssueTracker(e.db, run.ID, tournament.Tour)

	recs, err := e.loadRecommendations(&tournament)
	if err != nil {
		return nil, err
	}

	feed, feedOK := e.fetchScoring(ctx, &tournament, issues)

	markets := e.knownMarkets(recs, issues)
	marketRows := e.fetcher.FetchAll(ctx, tournament.Tour, tournament.ExternalID, markets, issues)

	completed := e.detector.IsCompleted(&tournament, feed.Rows)
	resolver := NewIdentityResolver(feed.Rows, issues)

	rows := make([]models.TrackingRow, 0, len(recs))
	for i := range recs {
		rows = append(rows, e.buildRow(&recs[i], &tournament, feed, feedOK, resolver, marketRows, completed, issues))
	}

	resp := &models.TournamentTrackingResponse{
		TournamentID: tournament.ID,
		ExternalID:   tournament.ExternalID,
		Tour:         tournament.Tour,
		Name:         tournament.Name,
		StartDate:    tournament.StartDate,
		EndDate:      tournament.EndDate,
		Status:       e.trackingStatus(&tournament, now, feedOK, len(feed.Rows), completed),
		GeneratedAt:  now,
		Rows:         rows,
		Issues:       issues.Issues(),
	}

	e.cache.SetJSON(ctx, cacheKey, resp)
	return resp, nil
}

// TrackTours builds tracking views for every active tournament on the
// given tours. A tournament whose tracking fails is skipped with a log
// line; the rest of the batch still returns.
func (e *Engine) TrackTours(ctx context.Context, tours []models.TourCode) (*models.TourTrackingResponse, error) {
	cacheKey := BuildKey("tours", joinTours(tours))
	var cached models.TourTrackingResponse
	if err := e.cache.GetJSON(ctx, cacheKey, &cached); err == nil {
		return &cached, nil
	}

	discovered, err := e.DiscoverTrackedTournaments(ctx, tours, false)
	if err != nil {
		return nil, err
	}

	resp := &models.TourTrackingResponse{
		Tours:       discovered.Tours,
		GeneratedAt: e.clock.Now().UTC(),
		Tournaments: make([]models.TournamentTrackingResponse, 0, len(discovered.Tournaments)),
		Issues:      discovered.Issues,
	}
	for _, t := range discovered.Tournaments {
		tracked, err := e.TrackTournament(ctx, t.ID)
		if err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"tournament_id": t.ID,
				"name":          t.Name,
			}).Warn("Failed to track tournament in tour batch")
			continue
		}
		resp.Tournaments = append(resp.Tournaments, *tracked)
	}

	e.cache.SetJSON(ctx, cacheKey, resp)
	return resp, nil
}

// loadRecommendations pulls recommendations for the tournament and every
// sibling record of the same real-world event, completed publishing runs
// only.
func (e *Engine) loadRecommendations(tournament *models.TrackedTournament) ([]models.Recommendation, error) {
	var siblings []models.TrackedTournament
	err := e.db.
		Where("external_id = ? AND tour = ?", tournament.ExternalID, tournament.Tour).
		Find(&siblings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load sibling tournament records: %w", err)
	}
	ids := tournamentIDs(siblings)
	if len(ids) == 0 {
		ids = []uuid.UUID{tournament.ID}
	}

	var recs []models.Recommendation
	err = e.db.
		Where("tournament_id IN ? AND run_status = ?", ids, models.PublishRunCompleted).
		Order("market asc, player_name asc").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recommendations: %w", err)
	}
	return recs, nil
}

// fetchScoring pulls the live feed, degrading to an empty feed on any
// failure. An event-id mismatch between feed and tournament also discards
// the feed; settling against the wrong event is worse than no data.
func (e *Engine) fetchScoring(ctx context.Context, tournament *models.TrackedTournament, issues *IssueTracker) (*providers.ScoringFeed, bool) {
	feed, err := e.scoring.FetchLeaderboard(ctx, tournament.Tour, tournament.ExternalID)
	if err != nil {
		step := models.StepStatsMissing
		if errors.Is(err, providers.ErrFeedShapeUnknown) {
			step = models.StepLiveFeedShapeUnknown
		}
		issues.Record(models.SeverityWarning, step,
			fmt.Sprintf("Live scoring unavailable for %s: %v", tournament.Name, err),
			map[string]interface{}{"external_id": tournament.ExternalID})
		return &providers.ScoringFeed{}, false
	}

	if feed.EventID != "" && tournament.ExternalID != "" && feed.EventID != tournament.ExternalID {
		issues.Record(models.SeverityWarning, models.StepEventMismatch,
			fmt.Sprintf("Live feed is for event %s, expected %s", feed.EventID, tournament.ExternalID),
			map[string]interface{}{"feed_event_id": feed.EventID, "external_id": tournament.ExternalID})
		return &providers.ScoringFeed{}, false
	}

	return feed, len(feed.Rows) > 0
}

// knownMarkets returns the distinct settleable markets across the
// recommendations, flagging unknown market keys once each.
func (e *Engine) knownMarkets(recs []models.Recommendation, issues *IssueTracker) []models.MarketKey {
	seen := make(map[models.MarketKey]bool)
	var markets []models.MarketKey
	for i := range recs {
		market := recs[i].Market
		if seen[market] {
			continue
		}
		seen[market] = true
		if !market.IsKnown() {
			issues.RecordOnce("market:"+string(market), models.SeverityWarning, models.StepMarketNotSupported,
				fmt.Sprintf("Market %q has no settlement rules", market),
				map[string]interface{}{"market": market})
			continue
		}
		markets = append(markets, market)
	}
	return markets
}

func (e *Engine) buildRow(
	rec *models.Recommendation,
	tournament *models.TrackedTournament,
	feed *providers.ScoringFeed,
	feedOK bool,
	resolver *IdentityResolver,
	marketRows map[models.MarketKey][]models.OddsRow,
	completed bool,
	issues *IssueTracker,
) models.TrackingRow {
	row := models.TrackingRow{
		RecommendationID: rec.ID,
		PlayerName:       rec.PlayerName,
		ExternalPlayerID: rec.ExternalPlayerID,
		Market:           rec.Market,
		Tier:             rec.Tier,
	}

	scoringRow := resolver.ResolveScoringRow(rec)
	if scoringRow != nil {
		row.Position = scoringRow.Position
		row.Status = scoringRow.Status
		row.RoundScores = scoringRow.RoundScores
		row.CurrentRound = scoringRow.CurrentRound
		row.ThruHoles = scoringRow.ThruHoles
		row.WinProb = scoringRow.WinProb
		row.Top5Prob = scoringRow.Top5Prob
		row.Top10Prob = scoringRow.Top10Prob
		row.Top20Prob = scoringRow.Top20Prob
		row.MakeCutProb = scoringRow.MakeCutProb
	} else if feedOK {
		issues.RecordOnce("player:"+rec.PlayerName, models.SeverityInfo, models.StepPlayerNotFound,
			fmt.Sprintf("%s not found in live feed", rec.PlayerName),
			map[string]interface{}{"player_name": rec.PlayerName})
	}

	current := e.reconcileOdds(rec, &row, resolver, marketRows, issues)

	outcome := DetermineOutcome(OutcomeInput{
		Market:    rec.Market,
		Tour:      tournament.Tour,
		Row:       scoringRow,
		Field:     feed.Rows,
		Completed: completed,
	})
	row.Outcome = outcome

	row.Movement = ComputeOddsMovement(row.BaselinePrice, current)
	return row
}

// reconcileOdds fills the price side of a row: current offer selection,
// baseline resolution, and the cross-book flag. Returns the current price
// for movement, or nil.
func (e *Engine) reconcileOdds(rec *models.Recommendation, row *models.TrackingRow, resolver *IdentityResolver, marketRows map[models.MarketKey][]models.OddsRow, issues *IssueTracker) *float64 {
	oddsRows, fetched := marketRows[rec.Market]
	var offers []models.OddsOffer
	if fetched {
		if oddsRow := resolver.ResolveOddsRow(rec, oddsRows); oddsRow != nil {
			offers = oddsRow.Offers
		}
	}

	kept, dropped := e.reconciler.FilterAllowed(offers)
	if len(offers) > 0 && len(kept) == 0 && len(dropped) > 0 {
		issues.RecordOnce("books:"+rec.ID.String(), models.SeverityWarning, models.StepOddsBookNotAllowed,
			fmt.Sprintf("All offers for %s are from non-allowed books", rec.PlayerName),
			map[string]interface{}{"recommendation_id": rec.ID, "dropped_books": dropped})
	}

	best := e.reconciler.SelectBestAvailableOffer(kept)

	baseline, err := e.reconciler.EnsureBaseline(rec, best, issues)
	if err != nil {
		e.logger.WithError(err).WithField("recommendation_id", rec.ID).Warn("Baseline resolution failed")
		baseline = &BaselineResult{}
	}
	row.BaselinePrice = baseline.Price
	row.BaselineBook = baseline.Bookmaker
	row.BaselineCapturedAt = baseline.CapturedAt

	if len(kept) == 0 {
		if fetched && len(offers) == 0 {
			issues.RecordOnce("odds:"+rec.ID.String(), models.SeverityWarning, models.StepOddsMissing,
				fmt.Sprintf("No current odds for %s (%s)", rec.PlayerName, rec.Market),
				map[string]interface{}{"recommendation_id": rec.ID, "market": rec.Market})
		}
		return nil
	}

	selected := best
	if baseline.Bookmaker != "" {
		if same := e.reconciler.SelectSameBookOffer(kept, baseline.Bookmaker); same != nil {
			selected = same
		} else {
			issues.RecordOnce("samebook:"+rec.ID.String(), models.SeverityInfo, models.StepBookNotAvailable,
				fmt.Sprintf("Baseline book %s has no current offer for %s", baseline.Bookmaker, rec.PlayerName),
				map[string]interface{}{"recommendation_id": rec.ID, "baseline_book": baseline.Bookmaker})
			issues.RecordOnce("crossbook:"+rec.ID.String(), models.SeverityInfo, models.StepOddsCrossBook,
				fmt.Sprintf("Comparing %s across books: baseline %s, current %s", rec.PlayerName, baseline.Bookmaker, NormalizeBookKey(selected.Bookmaker)),
				map[string]interface{}{"recommendation_id": rec.ID})
			row.CrossBook = true
		}
	}
	if selected == nil {
		return nil
	}

	row.CurrentPrice = &selected.DecimalPrice
	row.CurrentBook = NormalizeBookKey(selected.Bookmaker)
	fetchedAt := e.clock.Now().UTC()
	row.FetchedAt = &fetchedAt
	return row.CurrentPrice
}

func (e *Engine) trackingStatus(tournament *models.TrackedTournament, now time.Time, feedOK bool, fieldSize int, completed bool) models.TrackingStatus {
	switch {
	case completed:
		return models.TrackingCompleted
	case now.Before(tournament.StartDate):
		return models.TrackingUpcoming
	case feedOK && fieldSize > 0:
		return models.TrackingLive
	default:
		return models.TrackingNoData
	}
}

// InvalidateTournament drops the cached tracking view for one tournament.
func (e *Engine) InvalidateTournament(ctx context.Context, tournamentID uuid.UUID) {
	e.cache.Invalidate(ctx, BuildKey("tracking", tournamentID.String()))
}

func joinTours(tours []models.TourCode) string {
	out := ""
	for i, t := range tours {
		if i > 0 {
			out += ","
		}
		out += string(t)
	}
	return out
}

func boolKey(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
