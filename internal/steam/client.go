// Package steam reads game metadata from the public Steam store API.
package steam

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

	"github.com/lepinkainen/backlogsync/internal/cache"
	"github.com/lepinkainen/backlogsync/internal/errors"
)

// DefaultStoreURL is the public Steam store
const DefaultStoreURL = "https://store.steampowered.com"

// Client fetches store details and review summaries. It does no pacing of
// its own; callers serialize requests.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *cache.CacheDB
}

// NewClient creates a Steam store client. A nil cache disables caching of
// appdetails responses.
func NewClient(baseURL string, timeout time.Duration, c *cache.CacheDB) *Client {
	if baseURL == "" {
		baseURL = DefaultStoreURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		cache:   c,
	}
}

// Details fetches store details for an app. An app the store doesn't know
// (removed, region-locked) is returned with Found false and no error.
func (c *Client) Details(ctx context.Context, appID int) (Details, error) {
	key := strconv.Itoa(appID)
	ttl := cache.DefaultCacheTTL
	if c.cache != nil {
		ttl = c.cache.TTL()
	}
	details, _, err := cache.GetOrFetch(ctx, c.cache, cache.SteamDetailsTable, key,
		func(ctx context.Context) (Details, error) {
			return c.fetchDetails(ctx, appID)
		},
		cache.SelectNegativeCacheTTL(ttl, func(d Details) bool { return !d.Found }),
	)
	return details, err
}

func (c *Client) fetchDetails(ctx context.Context, appID int) (Details, error) {
	params := url.Values{}
	params.Set("appids", strconv.Itoa(appID))
	body, err := c.get(ctx, "/api/appdetails", params)
	if err != nil {
		return Details{}, err
	}

	// Steam Store API returns a map with app ID as key
	var result map[string]struct {
		Success bool    `json:"success"`
		Data    Details `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return Details{}, fmt.Errorf("failed to parse appdetails for %d: %w", appID, err)
	}

	appData, exists := result[strconv.Itoa(appID)]
	if !exists || !appData.Success {
		return Details{AppID: appID}, nil
	}

	appData.Data.AppID = appID
	appData.Data.Found = true
	return appData.Data, nil
}

// Reviews fetches the review summary for an app. Reviews are never cached.
func (c *Client) Reviews(ctx context.Context, appID int) (Reviews, error) {
	params := url.Values{}
	params.Set("json", "1")
	params.Set("language", "all")
	params.Set("purchase_type", "all")
	params.Set("num_per_page", "0")
	body, err := c.get(ctx, "/appreviews/"+strconv.Itoa(appID), params)
	if err != nil {
		return Reviews{}, err
	}

	var result struct {
		Success      int     `json:"success"`
		QuerySummary Reviews `json:"query_summary"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return Reviews{}, fmt.Errorf("failed to parse reviews for %d: %w", appID, err)
	}
	if result.Success != 1 {
		return Reviews{}, fmt.Errorf("steam reported unsuccessful review query for app %d", appID)
	}
	return result.QuerySummary, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return getBody(ctx, c.http, c.baseURL, path, params)
}

func getBody(ctx context.Context, hc *http.Client, baseURL, path string, params url.Values) ([]byte, error) {
	target := baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, errors.NewTransientError("steam "+path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransientError("steam "+path, fmt.Errorf("failed to read response body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		var retry time.Duration
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			retry = time.Duration(secs) * time.Second
		}
		return nil, errors.NewRateLimitErrorWithRetry("steam rate limit exceeded", retry)
	case resp.StatusCode >= 500:
		return nil, errors.NewTransientError("steam "+path, fmt.Errorf("status %d", resp.StatusCode))
	default:
		return nil, fmt.Errorf("steam API returned status code %d. Response: %s", resp.StatusCode, truncate(body, 200))
	}
}

func truncate(body []byte, n int) string {
	if len(body) > n {
		return string(body[:n]) + "..."
	}
	return string(body)
}
