package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"fitsync/internal/apperr"
)

// BaseURL is Strava's production API root
const BaseURL = "https://www.strava.com/api/v3"

// PageSize is the largest page Strava serves for activity listings
const PageSize = 200

// Client is a Strava API client shared by all users. The access token is
// supplied per call.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *RateLimiter
}

// NewClient creates a Strava API client. A nil httpClient uses
// http.DefaultClient and a nil limiter gets Strava's defaults.
func NewClient(baseURL string, httpClient *http.Client, limiter *RateLimiter) *Client {
	if baseURL == "" {
		baseURL = BaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if limiter == nil {
		limiter = NewRateLimiter(DefaultMinInterval)
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  httpClient,
		rateLimiter: limiter,
	}
}

// FetchActivities returns every activity visible to accessToken, optionally
// only those starting after the given time. Pages are requested until one
// comes back empty or short. Any failure discards the pages already fetched.
func (c *Client) FetchActivities(ctx context.Context, accessToken string, after *time.Time) ([]Activity, error) {
	httpClient := c.bearerClient(ctx, accessToken)

	var all []Activity
	for page := 1; ; page++ {
		activities, err := c.getActivities(ctx, httpClient, after, page)
		if err != nil {
			return nil, err
		}
		all = append(all, activities...)

		if len(activities) < PageSize {
			break
		}
	}
	return all, nil
}

// RateLimitStatus returns the current rate limit status
func (c *Client) RateLimitStatus() (shortRemaining, dailyRemaining int) {
	return c.rateLimiter.Status()
}

// bearerClient wraps the configured client so every request carries the token
func (c *Client) bearerClient(ctx context.Context, accessToken string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	client.Timeout = c.httpClient.Timeout
	return client
}

func (c *Client) getActivities(ctx context.Context, httpClient *http.Client, after *time.Time, page int) ([]Activity, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, &apperr.FetchError{Page: page, Err: err}
	}

	params := url.Values{}
	if after != nil {
		params.Set("after", strconv.FormatInt(after.Unix(), 10))
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(PageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/athlete/activities?"+params.Encode(), nil)
	if err != nil {
		return nil, &apperr.FetchError{Page: page, Err: err}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &apperr.FetchError{Page: page, Err: unwrapURLError(err)}
	}
	defer resp.Body.Close()

	// Update rate limiter from response headers
	c.rateLimiter.UpdateFromHeaders(resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &apperr.FetchError{
			Page:   page,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("API error: %s", strings.TrimSpace(string(body))),
		}
	}

	var activities []Activity
	if err := json.NewDecoder(resp.Body).Decode(&activities); err != nil {
		return nil, &apperr.FetchError{Page: page, Status: resp.StatusCode, Err: fmt.Errorf("decoding activities: %w", err)}
	}
	return activities, nil
}

func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
