// Package pricing fetches historical USD prices from the CoinGecko API.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	boff "github.com/Andrej220/go-utils/backoff"
	"github.com/shopspring/decimal"

	"github.com/me/staketax/internal/reward"
)

const (
	DefaultBaseURL = "https://api.coingecko.com"

	// The public API only serves the last year of history.
	maxHistoryDays = 365

	defaultHTTPTimeout  = 30 * time.Second
	defaultAttempts     = 3
	defaultRetryInitial = time.Second
	defaultRetryMax     = 15 * time.Second
)

// Config configures a Client. Zero values fall back to the defaults
// above.
type Config struct {
	BaseURL       string
	HTTPTimeout   time.Duration
	RetryAttempts int
}

// Client fetches coin price history.
type Client struct {
	baseURL  string
	http     *http.Client
	attempts int
	logger   *slog.Logger
	now      func() time.Time
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = defaultAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		http:     &http.Client{Timeout: cfg.HTTPTimeout},
		attempts: cfg.RetryAttempts,
		logger:   logger.With("component", "pricing"),
		now:      time.Now,
	}
}

// MarketRange fetches USD price points for coin covering the given year,
// sorted by timestamp. The window start is clamped to the API's history
// limit; when the whole year is out of reach the result is nil with no
// error.
func (c *Client) MarketRange(ctx context.Context, coin string, year int) ([]reward.PricePoint, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
	to := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).Unix()

	if oldest := c.now().UTC().AddDate(0, 0, -maxHistoryDays).Unix(); oldest > from {
		from = oldest
	}
	if from > to {
		c.logger.Info("price history out of reach, skipping", "coin", coin, "year", year)
		return nil, nil
	}

	u := fmt.Sprintf("%s/api/v3/coins/%s/market_chart/range?vs_currency=usd&from=%d&to=%d",
		c.baseURL, url.PathEscape(coin), from, to)

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	// CoinGecko returns [timestamp_ms, price] pairs.
	var payload struct {
		Prices [][2]float64 `json:"prices"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("pricing: decode response: %w", err)
	}

	points := make([]reward.PricePoint, 0, len(payload.Prices))
	for _, p := range payload.Prices {
		points = append(points, reward.PricePoint{
			Timestamp: int64(p[0]) / 1000,
			USD:       decimal.NewFromFloat(p[1]),
		})
	}
	reward.SortPoints(points)

	c.logger.Info("fetched price history", "coin", coin, "year", year, "points", len(points))
	return points, nil
}

// transientError marks failures worth retrying: transport errors, 429s
// and 5xx statuses.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	bo := boff.New(defaultRetryInitial, defaultRetryMax, time.Now().UnixNano())
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			delay := bo.Next()
			c.logger.Warn("retrying price request",
				"attempt", attempt, "delay", delay, "error", lastErr)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		body, err := c.getOnce(ctx, u)
		if err == nil {
			return body, nil
		}
		lastErr = err
		var te *transientError
		if !errors.As(err, &te) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) getOnce(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("pricing: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &transientError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return nil, &transientError{err: fmt.Errorf("pricing: status %s", resp.Status)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pricing: status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
