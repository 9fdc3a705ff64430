package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fairwaybets/tracker/internal/models"
	"github.com/fairwaybets/tracker/internal/providers"
	"github.com/fairwaybets/tracker/pkg/logger"
)

// oddsSource is the slice of the odds client the fetcher needs.
type oddsSource interface {
	FetchMarketOdds(ctx context.Context, tour models.TourCode, eventID string, market models.MarketKey) ([]models.OddsRow, error)
}

// MarketOddsFetcher pulls odds for several markets concurrently through a
// bounded worker pool. A market that fails yields an issue and an empty
// row set; one bad market never sinks the others.
type MarketOddsFetcher struct {
	client  oddsSource
	workers int
	logger  *logrus.Logger
}

func NewMarketOddsFetcher(client oddsSource, workers int) *MarketOddsFetcher {
	if workers <= 0 {
		workers = 3
	}
	return &MarketOddsFetcher{client: client, workers: workers, logger: logger.GetLogger()}
}

// FetchAll fetches every market's odds and returns rows keyed by market.
// Every requested market has an entry in the result, empty on failure.
func (f *MarketOddsFetcher) FetchAll(ctx context.Context, tour models.TourCode, eventID string, markets []models.MarketKey, issues *IssueTracker) map[models.MarketKey][]models.OddsRow {
	results := make(map[models.MarketKey][]models.OddsRow, len(markets))
	if len(markets) == 0 {
		return results
	}

	jobs := make(chan models.MarketKey)
	var mu sync.Mutex
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for market := range jobs {
			rows := f.fetchOne(ctx, tour, eventID, market, issues)
			mu.Lock()
			results[market] = rows
			mu.Unlock()
		}
	}

	workers := f.workers
	if workers > len(markets) {
		workers = len(markets)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker()
	}
	for _, market := range markets {
		jobs <- market
	}
	close(jobs)
	wg.Wait()

	return results
}

// marketFetchTimeout bounds a single market fetch so one stalled upstream
// call cannot hold the whole pool.
const marketFetchTimeout = 30 * time.Second

func (f *MarketOddsFetcher) fetchOne(ctx context.Context, tour models.TourCode, eventID string, market models.MarketKey, issues *IssueTracker) (rows []models.OddsRow) {
	ctx, cancel := context.WithTimeout(ctx, marketFetchTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			f.logger.WithFields(logrus.Fields{
				"component": "odds_fetcher",
				"market":    market,
				"panic":     r,
			}).Error("Recovered from panic in odds fetch")
			if issues != nil {
				issues.Record(models.SeverityWarning, models.StepOddsMissing,
					fmt.Sprintf("Odds fetch aborted for market %s: %v", market, r),
					map[string]interface{}{"market": market, "event_id": eventID})
			}
			rows = nil
		}
	}()

	rows, err := f.client.FetchMarketOdds(ctx, tour, eventID, market)
	if err != nil {
		step := models.StepOddsMissing
		if errors.Is(err, providers.ErrFeedShapeUnknown) {
			step = models.StepLiveFeedShapeUnknown
		}
		if issues != nil {
			issues.Record(models.SeverityWarning, step,
				fmt.Sprintf("Odds fetch failed for market %s: %v", market, err),
				map[string]interface{}{"market": market, "event_id": eventID})
		}
		return nil
	}
	return rows
}
