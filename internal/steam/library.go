package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lepinkainen/backlogsync/internal/errors"
)

// DefaultAPIURL is the Steam Web API
const DefaultAPIURL = "https://api.steampowered.com"

// OwnedGame is one entry of a user's library
type OwnedGame struct {
	AppID           int    `json:"appid"`
	Name            string `json:"name"`
	PlaytimeForever int    `json:"playtime_forever"` // minutes
	LastPlayed      int64  `json:"rtime_last_played"`
}

// Ref is the app id in the form records keep as their external reference.
func (g OwnedGame) Ref() string {
	return strconv.Itoa(g.AppID)
}

// Library reads a user's owned games through the Web API, which needs a key.
type Library struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewLibrary(baseURL, apiKey string, timeout time.Duration) *Library {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Library{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// OwnedGames lists the games owned by steamID. A private profile comes back
// as an empty library, not an error.
func (l *Library) OwnedGames(ctx context.Context, steamID string) ([]OwnedGame, error) {
	if l.apiKey == "" {
		return nil, errors.NewNotConfiguredError("steam.apikey", "set BACKLOGSYNC_STEAM_APIKEY")
	}
	if steamID == "" {
		return nil, errors.NewNotConfiguredError("steam.steamid", "pass --steam-id or set steam.steamid")
	}

	params := url.Values{}
	params.Set("key", l.apiKey)
	params.Set("steamid", steamID)
	params.Set("format", "json")
	params.Set("include_appinfo", "true")
	params.Set("include_played_free_games", "true")

	body, err := getBody(ctx, l.http, l.baseURL, "/IPlayerService/GetOwnedGames/v0001/", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Response struct {
			GameCount int         `json:"game_count"`
			Games     []OwnedGame `json:"games"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse owned games: %w", err)
	}
	return resp.Response.Games, nil
}
