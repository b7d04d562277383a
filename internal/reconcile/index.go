package reconcile

import (
	"github.com/lepinkainen/backlogsync/internal/backlog"
	"github.com/lepinkainen/backlogsync/internal/destination"
)

// index finds positions of destination games by Steam app id or normalized name.
type index struct {
	games  []destination.Game
	byApp  map[int]int
	byName map[string]int
}

func newIndex(games []destination.Game) *index {
	idx := &index{}
	idx.reset(games)
	return idx
}

func (x *index) reset(games []destination.Game) {
	x.games = nil
	x.byApp = make(map[int]int, len(games))
	x.byName = make(map[string]int, len(games))
	for _, g := range games {
		x.add(g)
	}
}

// add indexes g. Earlier games win on duplicate keys.
func (x *index) add(g destination.Game) {
	pos := len(x.games)
	x.games = append(x.games, g)
	key := g.MatchKey()
	if key.SteamAppID != 0 {
		if _, ok := x.byApp[key.SteamAppID]; !ok {
			x.byApp[key.SteamAppID] = pos
		}
	}
	if key.Name != "" {
		if _, ok := x.byName[key.Name]; !ok {
			x.byName[key.Name] = pos
		}
	}
}

func (x *index) byAppID(appID int) (int, bool) {
	pos, ok := x.byApp[appID]
	return pos, ok
}

// updated records that the game at pos now carries g's fields.
func (x *index) updated(pos int, g destination.Game) {
	g.ID = x.games[pos].ID
	x.games[pos] = g
	if g.SteamAppID != 0 {
		if _, ok := x.byApp[g.SteamAppID]; !ok {
			x.byApp[g.SteamAppID] = pos
		}
	}
}

// match looks up by app id first, then by name. A name match is refused
// when both sides carry different app ids: those are different games that
// happen to share a title.
func (x *index) match(key backlog.MatchKey) (int, bool) {
	if key.SteamAppID != 0 {
		if pos, ok := x.byAppID(key.SteamAppID); ok {
			return pos, true
		}
	}
	pos, ok := x.byName[key.Name]
	if !ok {
		return 0, false
	}
	g := x.games[pos]
	if key.SteamAppID != 0 && g.SteamAppID != 0 && g.SteamAppID != key.SteamAppID {
		return 0, false
	}
	return pos, true
}
