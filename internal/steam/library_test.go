package steam

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lepinkainen/backlogsync/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnedGames(t *testing.T) {
	hits := 0
	server := fixtureServer(t, "owned_games.json", &hits)

	games, err := NewLibrary(server.URL, "key", time.Second).OwnedGames(context.Background(), "76561197960287930")
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, "504230", games[0].Ref())
	assert.Equal(t, "Celeste", games[0].Name)
	assert.Equal(t, 1260, games[0].PlaytimeForever)
	assert.Equal(t, 1, hits)
}

func TestOwnedGames_Query(t *testing.T) {
	var query map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/IPlayerService/GetOwnedGames/v0001/", r.URL.Path)
		query = map[string]string{
			"key":             r.URL.Query().Get("key"),
			"steamid":         r.URL.Query().Get("steamid"),
			"include_appinfo": r.URL.Query().Get("include_appinfo"),
		}
		_, _ = w.Write([]byte(`{"response":{}}`))
	}))
	defer server.Close()

	games, err := NewLibrary(server.URL, "key", time.Second).OwnedGames(context.Background(), "42")
	require.NoError(t, err)
	assert.Empty(t, games)
	assert.Equal(t, map[string]string{"key": "key", "steamid": "42", "include_appinfo": "true"}, query)
}

func TestOwnedGames_NotConfigured(t *testing.T) {
	hits := 0
	server := fixtureServer(t, "owned_games.json", &hits)

	_, err := NewLibrary(server.URL, "", time.Second).OwnedGames(context.Background(), "42")
	assert.True(t, errors.IsNotConfiguredError(err))

	_, err = NewLibrary(server.URL, "key", time.Second).OwnedGames(context.Background(), "")
	assert.True(t, errors.IsNotConfiguredError(err))
	assert.Equal(t, 0, hits)
}

func TestOwnedGames_Forbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := NewLibrary(server.URL, "bad", time.Second).OwnedGames(context.Background(), "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status code 403")
}
