package enrichment

import (
	"context"
	"slices"

	"github.com/lepinkainen/backlogsync/internal/backlog"
)

// Prioritize returns records missing core enrichment first, keeping the
// original order within each group.
func Prioritize(records []backlog.Record) []backlog.Record {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b backlog.Record) int {
		am, bm := a.MissingCoreEnrichment(), b.MissingCoreEnrichment()
		switch {
		case am && !bm:
			return -1
		case !am && bm:
			return 1
		default:
			return 0
		}
	})
	return out
}

// needsDetails decides whether the slowly changing store details are worth
// fetching again. Games still in early access are re-checked so leaving
// early access is noticed.
func needsDetails(rec backlog.Record) bool {
	return !rec.ReleaseDate.Present() ||
		!rec.ComingSoon.Present() ||
		!rec.EarlyAccess.Present() ||
		!rec.Genres.Fetched() ||
		rec.EarlyAccess.Value()
}

// fetch returns rec's enrichment updated with fresh values from src. Review
// totals are always fetched; details only when needsDetails says so.
func fetch(ctx context.Context, src Source, rec backlog.Record, appID int) (backlog.Enrichment, error) {
	e := rec.Clone().Enrichment

	reviews, err := src.Reviews(ctx, appID)
	if err != nil {
		return e, err
	}
	if score, ok := reviews.Score(); ok {
		e.ReviewScore = backlog.Known(score)
	} else {
		e.ReviewScore = backlog.Absent[int]()
	}
	e.ReviewCount = backlog.Known(reviews.Count())

	if !needsDetails(rec) {
		return e, nil
	}

	details, err := src.Details(ctx, appID)
	if err != nil {
		return e, err
	}
	if !details.Found {
		e.ReleaseDate = backlog.Absent[string]()
		e.ComingSoon = backlog.Absent[bool]()
		e.EarlyAccess = backlog.Absent[bool]()
		e.Genres = backlog.Absent[[]string]()
		return e, nil
	}

	if details.ReleaseDate.Date != "" {
		e.ReleaseDate = backlog.Known(details.ReleaseDate.Date)
	} else {
		e.ReleaseDate = backlog.Absent[string]()
	}
	e.ComingSoon = backlog.Known(details.ReleaseDate.ComingSoon)
	e.EarlyAccess = backlog.Known(details.EarlyAccess())
	if genres := details.GenreNames(); len(genres) > 0 {
		e.Genres = backlog.Known(genres)
	} else {
		e.Genres = backlog.Absent[[]string]()
	}
	return e, nil
}
