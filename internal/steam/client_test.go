package steam

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lepinkainen/backlogsync/internal/cache"
	"github.com/lepinkainen/backlogsync/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureServer(t *testing.T, fixture string, hits *int) *httptest.Server {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", fixture))
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			*hits++
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDetails_Success(t *testing.T) {
	server := fixtureServer(t, "app_details_success.json", nil)

	details, err := NewClient(server.URL, time.Second, nil).Details(context.Background(), 504230)
	require.NoError(t, err)

	assert.True(t, details.Found)
	assert.Equal(t, 504230, details.AppID)
	assert.Equal(t, "Celeste", details.Name)
	assert.Equal(t, "25 Jan, 2018", details.ReleaseDate.Date)
	assert.False(t, details.ReleaseDate.ComingSoon)
	assert.False(t, details.EarlyAccess())
	assert.Equal(t, []string{"Adventure", "Indie"}, details.GenreNames())
}

func TestDetails_EarlyAccessGenre(t *testing.T) {
	server := fixtureServer(t, "app_details_early_access.json", nil)

	details, err := NewClient(server.URL, time.Second, nil).Details(context.Background(), 1145360)
	require.NoError(t, err)
	assert.True(t, details.EarlyAccess())
}

func TestDetails_EarlyAccessCategory(t *testing.T) {
	d := Details{Categories: []Category{{ID: 99, Description: "early access"}}}
	assert.True(t, d.EarlyAccess())
}

func TestDetails_UnknownAppIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/appdetails", r.URL.Path)
		assert.Equal(t, "99", r.URL.Query().Get("appids"))
		_, _ = w.Write([]byte(`{"99":{"success":false}}`))
	}))
	defer server.Close()

	details, err := NewClient(server.URL, time.Second, nil).Details(context.Background(), 99)
	require.NoError(t, err)
	assert.False(t, details.Found)
	assert.Equal(t, 99, details.AppID)
}

func TestDetails_UsesCache(t *testing.T) {
	hits := 0
	server := fixtureServer(t, "app_details_success.json", &hits)

	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), time.Hour)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	client := NewClient(server.URL, time.Second, c)
	for range 3 {
		details, err := client.Details(context.Background(), 504230)
		require.NoError(t, err)
		assert.Equal(t, "Celeste", details.Name)
	}
	assert.Equal(t, 1, hits)
}

func TestReviews(t *testing.T) {
	data, err := os.ReadFile("testdata/app_reviews.json")
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/appreviews/504230", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("json"))
		assert.Equal(t, "all", q.Get("language"))
		assert.Equal(t, "all", q.Get("purchase_type"))
		assert.Equal(t, "0", q.Get("num_per_page"))
		_, _ = w.Write(data)
	}))
	defer server.Close()

	reviews, err := NewClient(server.URL, time.Second, nil).Reviews(context.Background(), 504230)
	require.NoError(t, err)

	score, ok := reviews.Score()
	assert.True(t, ok)
	assert.Equal(t, 97, score)
	assert.Equal(t, 81214, reviews.Count())
	assert.Equal(t, "Overwhelmingly Positive", reviews.ScoreDesc)
}

func TestReviews_NoReviewsHasNoScore(t *testing.T) {
	_, ok := Reviews{}.Score()
	assert.False(t, ok)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"rate limited", http.StatusTooManyRequests, errors.IsRateLimitError},
		{"server error", http.StatusServiceUnavailable, errors.IsTransientError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := NewClient(server.URL, time.Second, nil).Reviews(context.Background(), 1)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func TestReviews_UnsuccessfulQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":2}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, time.Second, nil).Reviews(context.Background(), 1)
	assert.Error(t, err)
}
