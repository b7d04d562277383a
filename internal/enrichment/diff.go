package enrichment

import (
	"slices"

	"github.com/lepinkainen/backlogsync/internal/backlog"
)

// Change describes what a fetch changed for one record. Persisted holds only
// the store-of-record fields that changed; untouched fields stay unfetched.
type Change struct {
	Local     bool
	Persisted backlog.Enrichment
}

// Any reports whether anything changed.
func (c Change) Any() bool {
	return c.Local || c.HasPersisted()
}

// HasPersisted reports whether a store-of-record field changed.
func (c Change) HasPersisted() bool {
	p := c.Persisted
	return p.ReleaseDate.Fetched() || p.ComingSoon.Fetched() || p.EarlyAccess.Fetched()
}

// diff compares current enrichment with freshly fetched values.
func diff(current, fetched backlog.Enrichment) Change {
	var c Change
	c.Local = fieldChanged(current.ReviewScore, fetched.ReviewScore) ||
		fieldChanged(current.ReviewCount, fetched.ReviewCount) ||
		genresChanged(current.Genres, fetched.Genres)

	if fieldChanged(current.ReleaseDate, fetched.ReleaseDate) {
		c.Persisted.ReleaseDate = fetched.ReleaseDate
	}
	if fieldChanged(current.ComingSoon, fetched.ComingSoon) {
		c.Persisted.ComingSoon = fetched.ComingSoon
	}
	if fieldChanged(current.EarlyAccess, fetched.EarlyAccess) {
		c.Persisted.EarlyAccess = fetched.EarlyAccess
	}
	return c
}

func fieldChanged[T comparable](current, fetched backlog.Field[T]) bool {
	if !fetched.Fetched() {
		return false
	}
	if current.Fetched() != fetched.Fetched() || current.Present() != fetched.Present() {
		return true
	}
	return current.Value() != fetched.Value()
}

func genresChanged(current, fetched backlog.Field[[]string]) bool {
	if !fetched.Fetched() {
		return false
	}
	if current.Fetched() != fetched.Fetched() || current.Present() != fetched.Present() {
		return true
	}
	return !slices.Equal(current.Value(), fetched.Value())
}

// applyPersisted copies the changed store-of-record fields onto rec.
func applyPersisted(rec *backlog.Record, p backlog.Enrichment) {
	if p.ReleaseDate.Fetched() {
		rec.ReleaseDate = p.ReleaseDate
	}
	if p.ComingSoon.Fetched() {
		rec.ComingSoon = p.ComingSoon
	}
	if p.EarlyAccess.Fetched() {
		rec.EarlyAccess = p.EarlyAccess
	}
}

// applyLocal copies the local-only fields of e onto rec.
func applyLocal(rec *backlog.Record, e backlog.Enrichment) {
	rec.ReviewScore = e.ReviewScore
	rec.ReviewCount = e.ReviewCount
	rec.Genres = e.Genres
}
