// Package comicvine provides a client for the ComicVine API and the
// series/issue matcher built on top of it.
package comicvine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/lepinkainen/longbox/internal/errors"
	"github.com/lepinkainen/longbox/internal/ratelimit"
)

const (
	defaultBaseURL   = "https://comicvine.gamespot.com/api"
	defaultUserAgent = "longbox/1.0"

	// ComicVine pages issue listings at 100 results per request.
	issuePageSize = 100

	// ComicVine allows 200 requests per 15-minute window; one request
	// per second is a safe pace.
	DefaultMaxCalls    = 200
	DefaultWindow      = 15 * time.Minute
	DefaultMinInterval = time.Second
)

// APIError is a non-success response from the ComicVine service,
// carrying the service's own error message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("comicvine: API error %d: %s", e.StatusCode, e.Message)
}

// HTTPDoer is an interface for making HTTP requests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client is a rate-limited ComicVine API client. All calls pass through
// the shared rate limiter before any network request is issued.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	limiter    *ratelimit.Limiter
}

// NewClient creates a ComicVine client with the given API key.
func NewClient(apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    ratelimit.New("ComicVine", DefaultMaxCalls, DefaultWindow, DefaultMinInterval),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c HTTPDoer) Option {
	return func(client *Client) {
		if c != nil {
			client.httpClient = c
		}
	}
}

// WithBaseURL sets a custom base URL for the ComicVine API.
func WithBaseURL(base string) Option {
	return func(client *Client) {
		if base != "" {
			client.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithRateLimiter sets a custom rate limiter for the client. All
// clients sharing one external quota must share one limiter instance.
func WithRateLimiter(limiter *ratelimit.Limiter) Option {
	return func(client *Client) {
		if limiter != nil {
			client.limiter = limiter
		}
	}
}

// Limiter returns the rate limiter guarding this client's calls.
func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// envelope is the common ComicVine response wrapper. StatusCode 1 means
// success; anything else carries an error message.
type envelope struct {
	StatusCode   int             `json:"status_code"`
	Error        string          `json:"error"`
	TotalResults int             `json:"number_of_total_results"`
	Results      json.RawMessage `json:"results"`
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (*envelope, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("api_key", c.apiKey)
	query.Set("format", "json")
	for key, values := range params {
		for _, value := range values {
			query.Add(key, value)
		}
	}

	requestURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("comicvine request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperrors.NewRateLimitErrorWithRetry(
			"comicvine: request quota exhausted", c.limiter.TimeUntilReset())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("comicvine: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode comicvine response: %w", err)
	}

	if env.StatusCode != 1 {
		message := env.Error
		if message == "" {
			message = "unknown error"
		}
		return nil, &APIError{StatusCode: env.StatusCode, Message: message}
	}

	return &env, nil
}

// volumeResult mirrors the volume fields requested from the API.
// start_year arrives as an int, a string (sometimes with trailing
// junk like "1950?"), or null.
type volumeResult struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	StartYear looseYear `json:"start_year"`
	Publisher *struct {
		Name string `json:"name"`
	} `json:"publisher"`
	IssueCount int    `json:"count_of_issues"`
	Aliases    string `json:"aliases"`
}

// looseYear parses a year that may be an int, a string with trailing
// non-digit characters, or null. Nothing parseable yields 0.
type looseYear int

func (y *looseYear) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case float64:
		*y = looseYear(int(v))
	case string:
		var digits strings.Builder
		for _, r := range v {
			if r >= '0' && r <= '9' {
				digits.WriteRune(r)
			}
		}
		if digits.Len() == 0 {
			*y = 0
			return nil
		}
		parsed, err := strconv.Atoi(digits.String())
		if err != nil {
			*y = 0
			return nil
		}
		*y = looseYear(parsed)
	default:
		*y = 0
	}
	return nil
}

func (r *volumeResult) toVolume() Volume {
	publisher := ""
	if r.Publisher != nil {
		publisher = r.Publisher.Name
	}

	var aliases []string
	for _, line := range strings.Split(r.Aliases, "\n") {
		if alias := strings.TrimSpace(line); alias != "" {
			aliases = append(aliases, alias)
		}
	}

	return Volume{
		ID:         r.ID,
		Name:       r.Name,
		StartYear:  int(r.StartYear),
		Publisher:  publisher,
		IssueCount: r.IssueCount,
		Aliases:    aliases,
	}
}

const volumeFields = "id,name,start_year,publisher,count_of_issues,aliases"

// SearchVolumes searches the catalog for volumes by name.
func (c *Client) SearchVolumes(ctx context.Context, query string, limit int) ([]Volume, error) {
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("resources", "volume")
	params.Set("field_list", volumeFields)
	params.Set("limit", strconv.Itoa(limit))

	env, err := c.get(ctx, "search", params)
	if err != nil {
		return nil, err
	}

	var results []volumeResult
	if err := json.Unmarshal(env.Results, &results); err != nil {
		return nil, fmt.Errorf("failed to decode volume search results: %w", err)
	}

	volumes := make([]Volume, 0, len(results))
	for i := range results {
		volumes = append(volumes, results[i].toVolume())
	}
	return volumes, nil
}

// GetVolume fetches a single volume by its catalog id.
func (c *Client) GetVolume(ctx context.Context, volumeID int) (*Volume, error) {
	params := url.Values{}
	params.Set("field_list", volumeFields)

	// ComicVine volume detail endpoints carry a 4050- resource prefix.
	env, err := c.get(ctx, fmt.Sprintf("volume/4050-%d", volumeID), params)
	if err != nil {
		return nil, err
	}

	var result volumeResult
	if err := json.Unmarshal(env.Results, &result); err != nil {
		return nil, fmt.Errorf("failed to decode volume %d: %w", volumeID, err)
	}

	volume := result.toVolume()
	return &volume, nil
}

type issueResult struct {
	ID          int    `json:"id"`
	IssueNumber string `json:"issue_number"`
	CoverDate   string `json:"cover_date"`
	Name        string `json:"name"`
}

// GetVolumeIssues fetches the complete issue list for a volume,
// accumulating 100-issue pages in a loop until the reported total is
// reached. Pagination never recurses, so volumes with thousands of
// issues stay safe.
func (c *Client) GetVolumeIssues(ctx context.Context, volumeID int) ([]Issue, error) {
	var issues []Issue

	for offset := 0; ; offset += issuePageSize {
		params := url.Values{}
		params.Set("filter", fmt.Sprintf("volume:%d", volumeID))
		params.Set("field_list", "id,volume,issue_number,cover_date,name")
		params.Set("sort", "issue_number:asc")
		params.Set("offset", strconv.Itoa(offset))
		params.Set("limit", strconv.Itoa(issuePageSize))

		env, err := c.get(ctx, "issues", params)
		if err != nil {
			return nil, err
		}

		var page []issueResult
		if err := json.Unmarshal(env.Results, &page); err != nil {
			return nil, fmt.Errorf("failed to decode issues for volume %d: %w", volumeID, err)
		}

		for _, result := range page {
			issues = append(issues, Issue{
				ID:          result.ID,
				VolumeID:    volumeID,
				IssueNumber: result.IssueNumber,
				CoverDate:   result.CoverDate,
				Title:       result.Name,
			})
		}

		if len(page) == 0 || len(issues) >= env.TotalResults {
			break
		}
	}

	return issues, nil
}
