package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fairwaybets/tracker/internal/models"
	"github.com/fairwaybets/tracker/pkg/config"
	"github.com/fairwaybets/tracker/pkg/logger"
)

// ScoringFeed is a normalized snapshot of the live scoring feed for one
// event.
type ScoringFeed struct {
	EventID   string
	EventName string
	Rows      []models.ScoringRow
	Skipped   int
}

// ScoringClient fetches live leaderboard and probability data.
type ScoringClient struct {
	client  *feedClient
	baseURL string
	apiKey  string
	logger  *logrus.Logger
}

func NewScoringClient(cfg *config.Config) *ScoringClient {
	log := logger.GetLogger()
	return &ScoringClient{
		client:  newFeedClient("scoring", cfg.FeedTimeout, cfg.FeedRateLimit, cfg.FeedRetries, cfg.CircuitBreakerThreshold, log),
		baseURL: cfg.ScoringFeedURL,
		apiKey:  cfg.ScoringFeedKey,
		logger:  log,
	}
}

// FetchLeaderboard pulls the in-play snapshot for a tour event. Returns
// ErrFeedShapeUnknown when the response has no recognizable row container.
func (c *ScoringClient) FetchLeaderboard(ctx context.Context, tour models.TourCode, eventID string) (*ScoringFeed, error) {
	params := url.Values{}
	params.Set("tour", string(tour))
	params.Set("odds_format", "decimal")
	if eventID != "" {
		params.Set("event_id", eventID)
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	endpoint := fmt.Sprintf("%s/preds/in-play?%s", c.baseURL, params.Encode())

	start := time.Now()
	var payload map[string]json.RawMessage
	if err := c.client.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("scoring feed request failed: %w", err)
	}

	raw, err := rowsFromPayload(payload, "data", "rows", "players", "field", "live_stats", "baseline")
	if err != nil {
		return nil, err
	}

	rows, skipped := NormalizeScoringRows(raw)
	feed := &ScoringFeed{
		EventID:   stringFromPayload(payload, "event_id", "event"),
		EventName: stringFromPayload(payload, "event_name", "event"),
		Rows:      rows,
		Skipped:   skipped,
	}

	c.logger.WithFields(logrus.Fields{
		"component": "scoring_client",
		"tour":      tour,
		"event_id":  eventID,
		"rows":      len(rows),
		"skipped":   skipped,
		"duration":  time.Since(start),
	}).Debug("Fetched live leaderboard")

	return feed, nil
}
