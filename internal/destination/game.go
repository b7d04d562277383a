// Package destination holds the stores a backlog is reconciled into. Both
// key games by their own numeric id and enforce uniqueness on the Steam app
// id.
package destination

import (
	"context"

	"github.com/lepinkainen/backlogsync/internal/backlog"
)

// Game is a backlog entry as the destination stores it.
type Game struct {
	ID          int64  `json:"id,omitempty" db:"id"`
	SteamAppID  int    `json:"steam_app_id,omitempty" db:"steam_app_id"`
	Name        string `json:"name" db:"name"`
	Status      string `json:"status" db:"status"`
	CoverURL    string `json:"cover_url,omitempty" db:"cover_url"`
	ReleaseDate string `json:"release_date,omitempty" db:"release_date"`
	ComingSoon  bool   `json:"coming_soon" db:"coming_soon"`
	EarlyAccess bool   `json:"early_access" db:"early_access"`
}

// MatchKey returns the key a source record is aligned with.
func (g Game) MatchKey() backlog.MatchKey {
	return backlog.MatchKey{SteamAppID: g.SteamAppID, Name: backlog.NormalizeName(g.Name)}
}

// Client is the CRUD surface shared by every destination.
type Client interface {
	// List returns every game, following pagination to the end
	List(ctx context.Context) ([]Game, error)
	// Create inserts a game and returns it with its assigned id. A game with
	// the same Steam app id already existing is a ConflictError.
	Create(ctx context.Context, g Game) (Game, error)
	// Update replaces the descriptive fields of game id. Status is left alone.
	Update(ctx context.Context, id int64, g Game) error
	// UpdateStatus moves game id to another status.
	UpdateStatus(ctx context.Context, id int64, status string) error
	Close() error
}
