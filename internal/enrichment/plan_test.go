package enrichment

import (
	"context"
	"testing"

	"github.com/lepinkainen/backlogsync/internal/backlog"
	"github.com/lepinkainen/backlogsync/internal/steam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enriched(id, name string) backlog.Record {
	r := backlog.Record{ID: id, Name: name}
	r.ReviewScore = backlog.Known(90)
	r.ReleaseDate = backlog.Known("1 Jan, 2020")
	return r
}

func TestPrioritize_MissingFirstAndStable(t *testing.T) {
	records := []backlog.Record{
		{ID: "A", Name: "A"},
		enriched("B", "B"),
		{ID: "C", Name: "C"},
		enriched("D", "D"),
	}

	got := Prioritize(records)

	var ids []string
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"A", "C", "B", "D"}, ids)
	assert.Equal(t, "A", records[0].ID)
	assert.Equal(t, "B", records[1].ID, "input is not reordered")
}

func TestNeedsDetails(t *testing.T) {
	complete := backlog.Record{}
	complete.ReleaseDate = backlog.Known("1 Jan, 2020")
	complete.ComingSoon = backlog.Known(false)
	complete.EarlyAccess = backlog.Known(false)
	complete.Genres = backlog.Known([]string{"Indie"})
	assert.False(t, needsDetails(complete))

	earlyAccess := complete
	earlyAccess.EarlyAccess = backlog.Known(true)
	assert.True(t, needsDetails(earlyAccess), "early access games are re-checked")

	absentDate := complete
	absentDate.ReleaseDate = backlog.Absent[string]()
	assert.True(t, needsDetails(absentDate))

	unfetched := complete
	unfetched.ComingSoon = backlog.Field[bool]{}
	assert.True(t, needsDetails(unfetched))
}

func TestFetch_UnknownAppMarksDetailsAbsent(t *testing.T) {
	src := newFakeSource()
	src.reviews[7] = steam.Reviews{}
	src.details[7] = steam.Details{AppID: 7}

	e, err := fetch(context.Background(), src, backlog.Record{ExternalRef: "7"}, 7)
	require.NoError(t, err)

	assert.True(t, e.ReviewScore.Fetched())
	assert.False(t, e.ReviewScore.Present(), "no reviews means no score")
	assert.Equal(t, 0, e.ReviewCount.Value())
	assert.True(t, e.ReleaseDate.Fetched())
	assert.False(t, e.ReleaseDate.Present())
	assert.False(t, e.EarlyAccess.Present())
}

func TestDiff(t *testing.T) {
	current := backlog.Enrichment{
		ReviewScore: backlog.Known(80),
		ReleaseDate: backlog.Known("1 Jan, 2020"),
		EarlyAccess: backlog.Known(true),
	}

	t.Run("identical values are no change", func(t *testing.T) {
		assert.False(t, diff(current, current).Any())
	})

	t.Run("local only", func(t *testing.T) {
		fetched := current
		fetched.ReviewScore = backlog.Known(81)
		c := diff(current, fetched)
		assert.True(t, c.Local)
		assert.False(t, c.HasPersisted())
	})

	t.Run("persisted fields carry only what changed", func(t *testing.T) {
		fetched := current
		fetched.EarlyAccess = backlog.Known(false)
		c := diff(current, fetched)
		assert.False(t, c.Local)
		assert.True(t, c.HasPersisted())
		assert.True(t, c.Persisted.EarlyAccess.Fetched())
		assert.False(t, c.Persisted.ReleaseDate.Fetched())
	})

	t.Run("absent field gaining a value", func(t *testing.T) {
		fetched := current
		fetched.ComingSoon = backlog.Known(false)
		assert.True(t, diff(current, fetched).HasPersisted())
	})

	t.Run("genres compared by content", func(t *testing.T) {
		a := backlog.Enrichment{Genres: backlog.Known([]string{"Action"})}
		b := backlog.Enrichment{Genres: backlog.Known([]string{"Action"})}
		assert.False(t, diff(a, b).Any())
		b.Genres = backlog.Known([]string{"Action", "Indie"})
		assert.True(t, diff(a, b).Local)
	})
}
