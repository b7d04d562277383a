package destination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lepinkainen/backlogsync/internal/errors"
)

const DefaultPageSize = 100

// REST talks to a JSON games API authenticated with a bearer token.
type REST struct {
	baseURL  string
	token    string
	pageSize int
	client   *http.Client
}

// NewREST creates a REST destination. No request is made until a method is
// called; a missing token is reported then, before anything is sent.
func NewREST(baseURL, token string, pageSize int, timeout time.Duration) *REST {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &REST{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		pageSize: pageSize,
		client:   &http.Client{Timeout: timeout},
	}
}

// Close is a no-op for the HTTP client
func (r *REST) Close() error {
	return nil
}

// List implements Client.
func (r *REST) List(ctx context.Context) ([]Game, error) {
	var all []Game
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(r.pageSize))

		var games []Game
		if err := r.do(ctx, http.MethodGet, "/games?"+q.Encode(), nil, &games); err != nil {
			return nil, fmt.Errorf("failed to list games (page %d): %w", page, err)
		}
		all = append(all, games...)
		slog.Debug("Fetched destination page", "page", page, "games", len(games))

		if len(games) < r.pageSize {
			return all, nil
		}
	}
}

// Create implements Client.
func (r *REST) Create(ctx context.Context, g Game) (Game, error) {
	var created Game
	if err := r.do(ctx, http.MethodPost, "/games", g, &created); err != nil {
		return Game{}, fmt.Errorf("failed to create %q: %w", g.Name, err)
	}
	return created, nil
}

// gamePatch is the body of an update; status has its own endpoint.
type gamePatch struct {
	SteamAppID  int    `json:"steam_app_id,omitempty"`
	Name        string `json:"name"`
	CoverURL    string `json:"cover_url,omitempty"`
	ReleaseDate string `json:"release_date,omitempty"`
	ComingSoon  bool   `json:"coming_soon"`
	EarlyAccess bool   `json:"early_access"`
}

// Update implements Client.
func (r *REST) Update(ctx context.Context, id int64, g Game) error {
	patch := gamePatch{
		SteamAppID:  g.SteamAppID,
		Name:        g.Name,
		CoverURL:    g.CoverURL,
		ReleaseDate: g.ReleaseDate,
		ComingSoon:  g.ComingSoon,
		EarlyAccess: g.EarlyAccess,
	}
	if err := r.do(ctx, http.MethodPatch, "/games/"+strconv.FormatInt(id, 10), patch, nil); err != nil {
		return fmt.Errorf("failed to update game %d: %w", id, err)
	}
	return nil
}

// UpdateStatus implements Client.
func (r *REST) UpdateStatus(ctx context.Context, id int64, status string) error {
	body := map[string]string{"status": status}
	if err := r.do(ctx, http.MethodPatch, "/games/"+strconv.FormatInt(id, 10)+"/status", body, nil); err != nil {
		return fmt.Errorf("failed to update status of game %d: %w", id, err)
	}
	return nil
}

func (r *REST) do(ctx context.Context, method, path string, in, out any) error {
	if r.token == "" {
		return errors.NewNotConfiguredError("destination.rest.token", "")
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal JSON payload: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return errors.NewTransientError(method+" "+path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(method+" "+path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(data))

	switch {
	case resp.StatusCode == http.StatusConflict:
		return errors.NewConflictError("games", "", msg)
	case resp.StatusCode == http.StatusNotFound:
		return errors.NewNotFoundError(op)
	case resp.StatusCode == http.StatusTooManyRequests:
		var wait time.Duration
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			wait = time.Duration(secs) * time.Second
		}
		return errors.NewRateLimitErrorWithRetry("destination rate limit exceeded", wait)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("destination rejected credentials (%d): %w", resp.StatusCode,
			errors.NewNotConfiguredError("destination.rest.token", "token is invalid or expired"))
	case resp.StatusCode >= 500:
		return errors.NewTransientError(op, fmt.Errorf("status %d: %s", resp.StatusCode, msg))
	default:
		return fmt.Errorf("%s failed with status %d: %s", op, resp.StatusCode, msg)
	}
}
