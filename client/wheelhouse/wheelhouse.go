package wheelhouse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"wheelhouse-etl/config"
	"wheelhouse-etl/models"
	"wheelhouse-etl/utils"
)

const (
	listingsPath = "/listings"
	healthPath   = "/health"

	// maxErrorBody bounds how much of a failing response body lands in
	// error text.
	maxErrorBody = 500
)

// APIError is a permanent upstream failure: a status the client must not
// retry.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wheelhouse: api status %d: %s", e.StatusCode, e.Body)
}

// RetryExhaustedError reports that every attempt failed on a transient
// status.
type RetryExhaustedError struct {
	Attempts   int
	StatusCode int
	Body       string
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("wheelhouse: gave up after %d attempts, last status %d: %s",
		e.Attempts, e.StatusCode, e.Body)
}

// transientError is a retryable failure. RetryAfterHint surfaces the
// server's requested wait to the backoff loop.
type transientError struct {
	StatusCode int
	Body       string
	retryAfter time.Duration
	hasHint    bool
}

func (e *transientError) Error() string {
	return fmt.Sprintf("transient status %d: %s", e.StatusCode, e.Body)
}

func (e *transientError) RetryAfterHint() (time.Duration, bool) {
	return e.retryAfter, e.hasHint
}

// listingsPage mirrors the /listings response envelope.
type listingsPage struct {
	Listings []models.RawListing `json:"listings"`
	Total    int                 `json:"total"`
	Offset   int                 `json:"offset"`
	Limit    int                 `json:"limit"`
}

// Client talks to the Wheelhouse REST API. It holds one http.Client so
// connections are reused across the paginated fetch loop.
type Client struct {
	baseURL    string
	apiKey     string
	userAPIKey string
	pageSize   int
	maxPages   int

	httpClient *http.Client
	limiter    *rate.Limiter
	retry      *utils.RetryConfig
	logger     zerolog.Logger
}

// New creates a ready-to-use API client. Both credentials must be
// configured; nothing is sent until the first fetch.
func New(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	if !cfg.HasCredentials() {
		return nil, errors.New("wheelhouse: WHEELHOUSE_API_KEY and WHEELHOUSE_USER_API_KEY must both be set")
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	log := logger.With().Str("component", "wheelhouse").Logger()

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		userAPIKey: cfg.UserAPIKey,
		pageSize:   cfg.BatchSize,
		maxPages:   cfg.MaxPages,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   cfg.RetryDelay,
			Multiplier:  cfg.BackoffMultiplier,
			Logger:      log,
		},
		logger: log,
	}, nil
}

// FetchListings fetches one page of listings. The second return value
// reports whether another page remains.
func (c *Client) FetchListings(ctx context.Context, limit, offset int) ([]models.RawListing, bool, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	var page listingsPage
	err := c.retry.Do("fetch listings", func() error {
		return c.getJSON(ctx, listingsPath, query, &page)
	})
	if err != nil {
		var tr *transientError
		if errors.As(err, &tr) {
			return nil, false, &RetryExhaustedError{
				Attempts:   c.retry.MaxAttempts,
				StatusCode: tr.StatusCode,
				Body:       tr.Body,
			}
		}
		return nil, false, err
	}

	// A short page always ends pagination; a full page continues unless the
	// reported total says we already have everything.
	fetched := offset + len(page.Listings)
	hasMore := len(page.Listings) == limit && (page.Total == 0 || fetched < page.Total)
	return page.Listings, hasMore, nil
}

// FetchAllForDate pulls every listings page for one report date, preserving
// upstream order. The API itself is windowed only by pagination; the date
// drives partitioning downstream.
func (c *Client) FetchAllForDate(ctx context.Context, date time.Time) ([]models.RawListing, error) {
	var all []models.RawListing

	offset := 0
	for page := 0; ; page++ {
		if page >= c.maxPages {
			return nil, fmt.Errorf("wheelhouse: pagination exceeded %d pages at offset %d", c.maxPages, offset)
		}

		listings, hasMore, err := c.FetchListings(ctx, c.pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("page at offset %d: %w", offset, err)
		}

		all = append(all, listings...)
		c.logger.Debug().
			Int("offset", offset).
			Int("page_records", len(listings)).
			Int("total_records", len(all)).
			Msg("page fetched")

		if !hasMore || len(listings) == 0 {
			break
		}
		offset += len(listings)
	}

	c.logger.Info().
		Str("date", date.Format("2006-01-02")).
		Int("records", len(all)).
		Msg("fetch complete")
	return all, nil
}

// Ping verifies the API is reachable with the configured credentials. It
// does not retry.
func (c *Client) Ping(ctx context.Context) error {
	var out map[string]any
	if err := c.getJSON(ctx, healthPath, nil, &out); err != nil {
		var tr *transientError
		if errors.As(err, &tr) {
			return &APIError{StatusCode: tr.StatusCode, Body: tr.Body}
		}
		return err
	}
	return nil
}

// getJSON performs one authenticated GET and decodes the response. Transient
// statuses come back as retryable errors; everything else is wrapped with
// utils.Permanent so the backoff loop stops at once.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return utils.Permanent(fmt.Errorf("wheelhouse: rate limit wait: %w", err))
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return utils.Permanent(fmt.Errorf("wheelhouse: build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-User-API-Key", c.userAPIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport errors (timeouts, resets) are worth another attempt.
		return fmt.Errorf("wheelhouse: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		retryAfter, hasHint := parseRetryAfter(resp.Header.Get("Retry-After"))
		return &transientError{
			StatusCode: resp.StatusCode,
			Body:       readErrorBody(resp.Body),
			retryAfter: retryAfter,
			hasHint:    hasHint,
		}
	}
	if resp.StatusCode/100 != 2 {
		return utils.Permanent(&APIError{
			StatusCode: resp.StatusCode,
			Body:       readErrorBody(resp.Body),
		})
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return utils.Permanent(fmt.Errorf("wheelhouse: decode %s response: %w", path, err))
	}
	return nil
}

// parseRetryAfter understands the delay-seconds form of the header.
func parseRetryAfter(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// readErrorBody drains at most maxErrorBody characters for error context.
func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody+1))
	if err != nil {
		return ""
	}
	body := strings.TrimSpace(string(data))
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "... (truncated)"
	}
	return body
}
