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

// OddsClient fetches sportsbook outright odds per market.
type OddsClient struct {
	client  *feedClient
	baseURL string
	apiKey  string
	logger  *logrus.Logger
}

func NewOddsClient(cfg *config.Config) *OddsClient {
	log := logger.GetLogger()
	return &OddsClient{
		client:  newFeedClient("odds", cfg.FeedTimeout, cfg.FeedRateLimit, cfg.FeedRetries, cfg.CircuitBreakerThreshold, log),
		baseURL: cfg.OddsFeedURL,
		apiKey:  cfg.OddsFeedKey,
		logger:  log,
	}
}

// FetchMarketOdds pulls current bookmaker prices for one market of a tour
// event. Returns ErrFeedShapeUnknown when the response has no recognizable
// row container.
func (c *OddsClient) FetchMarketOdds(ctx context.Context, tour models.TourCode, eventID string, market models.MarketKey) ([]models.OddsRow, error) {
	params := url.Values{}
	params.Set("tour", string(tour))
	params.Set("market", string(market))
	params.Set("odds_format", "decimal")
	if eventID != "" {
		params.Set("event_id", eventID)
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	endpoint := fmt.Sprintf("%s/betting-tools/outrights?%s", c.baseURL, params.Encode())

	start := time.Now()
	var payload map[string]json.RawMessage
	if err := c.client.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("odds feed request failed for market %s: %w", market, err)
	}

	raw, err := rowsFromPayload(payload, "odds", "rows", "players", "data")
	if err != nil {
		return nil, err
	}

	rows, skipped := NormalizeOddsRows(raw)

	c.logger.WithFields(logrus.Fields{
		"component": "odds_client",
		"tour":      tour,
		"event_id":  eventID,
		"market":    market,
		"rows":      len(rows),
		"skipped":   skipped,
		"duration":  time.Since(start),
	}).Debug("Fetched market odds")

	return rows, nil
}
