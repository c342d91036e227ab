package socrata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/fhv-driver-etl/internal/domain"
)

// Sentinel errors for the two failure modes callers distinguish: the request
// never produced a usable response, or the response body was not the expected
// JSON array.
var (
	ErrFetch = errors.New("fetch driver dataset")
	ErrParse = errors.New("parse driver dataset")
)

// Page-size ceilings. Preview requests serve interactive sampling and stay
// small; bulk requests serve the sync path, which assumes the whole dataset
// fits in one page.
const (
	maxPreviewLimit = 50
	maxBulkLimit    = 50000
)

// Client fetches raw driver records from a Socrata dataset endpoint.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Socrata dataset client. token may be empty; Socrata
// then applies anonymous rate limits.
func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// FetchDrivers retrieves one bulk page of raw records for a sync pass.
// limit is clamped to [1, 50000].
func (c *Client) FetchDrivers(ctx context.Context, limit int) ([]domain.RawRecord, error) {
	return c.fetchPage(ctx, clampLimit(limit, maxBulkLimit))
}

// FetchSample retrieves a small page of raw records for source-field preview.
// limit is clamped to [1, 50].
func (c *Client) FetchSample(ctx context.Context, limit int) ([]domain.RawRecord, error) {
	return c.fetchPage(ctx, clampLimit(limit, maxPreviewLimit))
}

func (c *Client) fetchPage(ctx context.Context, limit int) ([]domain.RawRecord, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base URL: %v", ErrFetch, err)
	}
	params := u.Query()
	params.Set("$limit", strconv.Itoa(limit))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrFetch, err)
	}
	if c.token != "" {
		req.Header.Set("X-App-Token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrFetch, resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}

	// Socrata answers an exhausted dataset with an empty body rather than [].
	if len(body) == 0 {
		return []domain.RawRecord{}, nil
	}

	var records []domain.RawRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	c.logger.Debug("fetched dataset page", "records", len(records), "limit", limit)
	return records, nil
}

func clampLimit(limit, ceiling int) int {
	if limit < 1 {
		return 1
	}
	if limit > ceiling {
		return ceiling
	}
	return limit
}
