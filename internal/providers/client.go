package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrFeedShapeUnknown is returned when a feed response carries none of the
// row containers we know how to read.
var ErrFeedShapeUnknown = errors.New("feed response shape unknown")

// feedClient is the shared HTTP plumbing for upstream feed clients: rate
// limiting, circuit breaking, bounded retries with backoff, and JSON
// decoding.
type feedClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
	name       string
	retries    int
}

func newFeedClient(name string, timeout time.Duration, requestsPerSecond float64, retries int, breakerThreshold int, logger *logrus.Logger) *feedClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	if retries <= 0 {
		retries = 3
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(breakerThreshold),
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"component": "feed_client",
				"feed":      name,
				"from":      from.String(),
				"to":        to.String(),
			}).Info("Circuit breaker state changed")
		},
	}

	return &feedClient{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
		name:       name,
		retries:    retries,
	}
}

// getJSON fetches url and decodes the response body into target, retrying
// transient failures with exponential backoff.
func (c *feedClient) getJSON(ctx context.Context, url string, target interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.doRequest(ctx, url, target)
	})
	return err
}

func (c *feedClient) doRequest(ctx context.Context, url string, target interface{}) error {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "bet-tracker/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			if readErr != nil {
				return fmt.Errorf("failed to read response body: %w", readErr)
			}
			if err := json.Unmarshal(body, target); err != nil {
				c.logger.WithFields(logrus.Fields{
					"feed":            c.name,
					"url":             url,
					"response_length": len(body),
				}).WithError(err).Error("Failed to decode feed response")
				return fmt.Errorf("failed to decode response: %w", err)
			}
			return nil
		}

		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("invalid API key for %s feed", c.name)
		case http.StatusForbidden:
			return fmt.Errorf("access forbidden for %s feed", c.name)
		case http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limit exceeded")
			continue
		default:
			lastErr = fmt.Errorf("request failed with status %d", resp.StatusCode)
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", c.retries, lastErr)
}

// rowsFromPayload finds the first known row container in a decoded feed
// payload and returns its entries as loose maps.
func rowsFromPayload(payload map[string]json.RawMessage, keys ...string) ([]map[string]interface{}, error) {
	for _, key := range keys {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var rows []map[string]interface{}
		if err := json.Unmarshal(raw, &rows); err != nil {
			continue
		}
		return rows, nil
	}
	return nil, ErrFeedShapeUnknown
}

func stringFromPayload(payload map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var n float64
		if err := json.Unmarshal(raw, &n); err == nil {
			return fmt.Sprintf("%.0f", n)
		}
	}
	return ""
}
