package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fairwaybets/tracker/internal/models"
	"github.com/fairwaybets/tracker/internal/providers"
	"github.com/fairwaybets/tracker/pkg/database"
	"github.com/fairwaybets/tracker/pkg/logger"
)

// scoringSource is the slice of the scoring client discovery and tracking
// need.
type scoringSource interface {
	FetchLeaderboard(ctx context.Context, tour models.TourCode, eventID string) (*providers.ScoringFeed, error)
}

// DiscoveryService lists tournaments that have published recommendations
// worth tracking, merging duplicate records of the same real-world event.
type DiscoveryService struct {
	db      *database.DB
	scoring scoringSource
	clock   Clock
	logger  *logrus.Logger
}

func NewDiscoveryService(db *database.DB, scoring scoringSource, clock Clock) *DiscoveryService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &DiscoveryService{db: db, scoring: scoring, clock: clock, logger: logger.GetLogger()}
}

// Discover returns trackable tournaments for the given tours. Only
// tournaments with recommendations from a completed publishing run appear.
// Live status is probed against the scoring feed; a probe failure degrades
// the entry to in_progress_no_data instead of failing discovery.
func (s *DiscoveryService) Discover(ctx context.Context, tours []models.TourCode, includeUpcoming bool, issues *IssueTracker) (*models.DiscoveryResponse, error) {
	now := s.clock.Now().UTC()
	resp := &models.DiscoveryResponse{Tours: tours, GeneratedAt: now}

	var tournaments []models.TrackedTournament
	err := s.db.
		Where("tour IN ?", tourStrings(tours)).
		Where("end_date >= ?", now.AddDate(0, 0, -1)).
		Where("EXISTS (SELECT 1 FROM recommendations r WHERE r.tournament_id = tracked_tournaments.id AND r.run_status = ?)", models.PublishRunCompleted).
		Order("start_date asc").
		Find(&tournaments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked tournaments: %w", err)
	}
	if len(tournaments) == 0 {
		resp.Tournaments = []models.DiscoveredTournament{}
		return resp, nil
	}

	counts, err := s.recommendationCounts(tournamentIDs(tournaments))
	if err != nil {
		return nil, err
	}

	probeCache := make(map[string]bool)
	entries := make([]models.DiscoveredTournament, 0, len(tournaments))
	for i := range tournaments {
		t := &tournaments[i]
		entry := models.DiscoveredTournament{
			ID:           t.ID,
			ExternalID:   t.ExternalID,
			Tour:         t.Tour,
			Name:         t.Name,
			StartDate:    t.StartDate,
			EndDate:      t.EndDate,
			TrackedCount: counts[t.ID],
			Status:       s.statusFor(ctx, t, now, probeCache, issues),
		}
		if entry.Status == models.TrackingUpcoming {
			days := int(t.StartDate.Sub(now).Hours() / 24)
			entry.DaysUntilStart = &days
		}
		entries = append(entries, entry)
	}

	merged := mergeDiscovered(entries)
	if !includeUpcoming {
		filtered := merged[:0]
		for _, e := range merged {
			if e.Status != models.TrackingUpcoming {
				filtered = append(filtered, e)
			}
		}
		merged = filtered
	}

	sort.SliceStable(merged, func(i, j int) bool {
		li, lj := merged[i].Status == models.TrackingLive, merged[j].Status == models.TrackingLive
		if li != lj {
			return li
		}
		return merged[i].StartDate.Before(merged[j].StartDate)
	})

	resp.Tournaments = merged
	if issues != nil {
		resp.Issues = issues.Issues()
	}
	return resp, nil
}

func (s *DiscoveryService) recommendationCounts(ids []uuid.UUID) (map[uuid.UUID]int, error) {
	type countRow struct {
		TournamentID uuid.UUID
		N            int
	}
	var rows []countRow
	err := s.db.Model(&models.Recommendation{}).
		Select("tournament_id, count(*) as n").
		Where("tournament_id IN ? AND run_status = ?", ids, models.PublishRunCompleted).
		Group("tournament_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count recommendations: %w", err)
	}
	counts := make(map[uuid.UUID]int, len(rows))
	for _, r := range rows {
		counts[r.TournamentID] = r.N
	}
	return counts, nil
}

// statusFor classifies a tournament record, probing the live feed at most
// once per (external_id, tour) pair across the discovery pass.
func (s *DiscoveryService) statusFor(ctx context.Context, t *models.TrackedTournament, now time.Time, probeCache map[string]bool, issues *IssueTracker) models.TrackingStatus {
	if now.Before(t.StartDate) {
		return models.TrackingUpcoming
	}
	if now.After(endOfDay(t.EndDate)) {
		return models.TrackingCompleted
	}

	key := t.ExternalID + "|" + string(t.Tour)
	inPlay, probed := probeCache[key]
	if !probed {
		inPlay = s.probeLive(ctx, t, issues)
		probeCache[key] = inPlay
	}
	if inPlay {
		return models.TrackingLive
	}
	return models.TrackingNoData
}

func (s *DiscoveryService) probeLive(ctx context.Context, t *models.TrackedTournament, issues *IssueTracker) bool {
	feed, err := s.scoring.FetchLeaderboard(ctx, t.Tour, t.ExternalID)
	if err != nil || len(feed.Rows) == 0 {
		if issues != nil {
			evidence := map[string]interface{}{"external_id": t.ExternalID, "tour": t.Tour}
			if err != nil {
				evidence["error"] = err.Error()
			}
			issues.Record(models.SeverityInfo, models.StepEventNotInPlay,
				fmt.Sprintf("No live data for %s", t.Name), evidence)
		}
		return false
	}
	return true
}

// mergeDiscovered collapses duplicate records of the same real-world event
// into one entry per (external_id, tour). Counts are summed, live status
// wins over any other, and metadata comes from the record with the most
// recommendations, earliest start breaking ties.
func mergeDiscovered(entries []models.DiscoveredTournament) []models.DiscoveredTournament {
	type group struct {
		best  models.DiscoveredTournament
		total int
		live  bool
	}
	order := make([]string, 0, len(entries))
	groups := make(map[string]*group)

	for _, e := range entries {
		key := e.ExternalID + "|" + string(e.Tour)
		g, ok := groups[key]
		if !ok {
			groups[key] = &group{best: e, total: e.TrackedCount, live: e.Status == models.TrackingLive}
			order = append(order, key)
			continue
		}
		g.total += e.TrackedCount
		if e.Status == models.TrackingLive {
			g.live = true
		}
		if e.TrackedCount > g.best.TrackedCount ||
			(e.TrackedCount == g.best.TrackedCount && e.StartDate.Before(g.best.StartDate)) {
			g.best = e
		}
	}

	out := make([]models.DiscoveredTournament, 0, len(groups))
	for _, key := range order {
		g := groups[key]
		merged := g.best
		merged.TrackedCount = g.total
		if g.live {
			merged.Status = models.TrackingLive
		}
		out = append(out, merged)
	}
	return out
}

func tourStrings(tours []models.TourCode) []string {
	out := make([]string, len(tours))
	for i, t := range tours {
		out[i] = string(t)
	}
	return out
}

func tournamentIDs(tournaments []models.TrackedTournament) []uuid.UUID {
	ids := make([]uuid.UUID, len(tournaments))
	for i := range tournaments {
		ids[i] = tournaments[i].ID
	}
	return ids
}
