package steam

import (
	"math"
	"slices"
	"strings"
)

// earlyAccessGenreID is Steam's genre id for "Early Access"
const earlyAccessGenreID = "70"

type Category struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type Genre struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Details is the subset of the store appdetails payload the backlog uses.
type Details struct {
	AppID int  `json:"app_id"`
	Found bool `json:"found"`

	Name        string `json:"name"`
	HeaderImage string `json:"header_image"`
	ReleaseDate struct {
		ComingSoon bool   `json:"coming_soon"`
		Date       string `json:"date"`
	} `json:"release_date"`
	Categories []Category `json:"categories"`
	Genres     []Genre    `json:"genres"`
}

// EarlyAccess reports whether the store lists the game as early access.
func (d Details) EarlyAccess() bool {
	for _, g := range d.Genres {
		if g.ID == earlyAccessGenreID || strings.EqualFold(g.Description, "Early Access") {
			return true
		}
	}
	return slices.ContainsFunc(d.Categories, func(c Category) bool {
		return strings.EqualFold(c.Description, "Early Access")
	})
}

// GenreNames returns the genre descriptions in store order.
func (d Details) GenreNames() []string {
	names := make([]string, 0, len(d.Genres))
	for _, g := range d.Genres {
		if g.Description != "" {
			names = append(names, g.Description)
		}
	}
	return names
}

// Reviews is the query_summary block of the appreviews endpoint.
type Reviews struct {
	ScoreDesc     string `json:"review_score_desc"`
	TotalPositive int    `json:"total_positive"`
	TotalNegative int    `json:"total_negative"`
	TotalReviews  int    `json:"total_reviews"`
}

// Score returns the percentage of positive reviews, rounded. It reports false
// for games without any reviews.
func (r Reviews) Score() (int, bool) {
	total := r.TotalPositive + r.TotalNegative
	if total == 0 {
		return 0, false
	}
	return int(math.Round(100 * float64(r.TotalPositive) / float64(total))), true
}

// Count returns the total number of reviews.
func (r Reviews) Count() int {
	if r.TotalReviews > 0 {
		return r.TotalReviews
	}
	return r.TotalPositive + r.TotalNegative
}
