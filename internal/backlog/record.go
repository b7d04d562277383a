package backlog

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lepinkainen/backlogsync/internal/errors"
)

// Status is the backlog bucket a game is filed under.
type Status string

const (
	StatusQueued Status = "queued"
	StatusActive Status = "active"
	StatusDone   Status = "done"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusQueued, StatusActive, StatusDone}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Statuses, status) {
		return "", errors.NewValidationError("status", fmt.Sprintf("unknown status %q (valid: queued, active, done)", s))
	}
	return status, nil
}

// Enrichment holds the metadata fetched from the Steam store.
type Enrichment struct {
	ReviewScore Field[int]      `json:"review_score,omitzero"`
	ReviewCount Field[int]      `json:"review_count,omitzero"`
	ReleaseDate Field[string]   `json:"release_date,omitzero"`
	EarlyAccess Field[bool]     `json:"early_access,omitzero"`
	ComingSoon  Field[bool]     `json:"coming_soon,omitzero"`
	Genres      Field[[]string] `json:"genres,omitzero"`
}

// Local returns only the enrichment fields that live in local presentation
// state. The store of record has no columns for them.
func (e Enrichment) Local() Enrichment {
	return Enrichment{
		ReviewScore: e.ReviewScore,
		ReviewCount: e.ReviewCount,
		Genres:      e.Genres,
	}
}

// Persisted returns only the enrichment fields the store of record supports.
func (e Enrichment) Persisted() Enrichment {
	return Enrichment{
		ReleaseDate: e.ReleaseDate,
		EarlyAccess: e.EarlyAccess,
		ComingSoon:  e.ComingSoon,
	}
}

// Record is a single backlog entry.
type Record struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Pinned      bool      `json:"pinned,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ExternalRef string    `json:"external_ref,omitempty"`
	CoverURL    string    `json:"cover_url,omitempty"`

	Enrichment
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if genres, ok := r.Genres.Get(); ok {
		r.Genres = Known(slices.Clone(genres))
	}
	return r
}

// MissingCoreEnrichment reports whether the review score or release date has
// never been fetched for this record.
func (r Record) MissingCoreEnrichment() bool {
	return !r.ReviewScore.Fetched() || !r.ReleaseDate.Fetched()
}

// steamAppURL matches store URLs like https://store.steampowered.com/app/620/Portal_2/
var steamAppURL = regexp.MustCompile(`/app/(\d+)`)

// SteamAppID extracts the numeric Steam app id from the external reference,
// which is either a store URL or a bare id.
func (r Record) SteamAppID() (int, bool) {
	return ParseSteamAppID(r.ExternalRef)
}

// ParseSteamAppID extracts a Steam app id from a store URL or a bare number.
func ParseSteamAppID(ref string) (int, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, false
	}
	if m := steamAppURL.FindStringSubmatch(ref); m != nil {
		ref = m[1]
	}
	id, err := strconv.Atoi(ref)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// NormalizeName lowercases and trims a name for case-insensitive matching.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// MatchKey aligns a record across stores that use different identities.
type MatchKey struct {
	SteamAppID int
	Name       string
}

// MatchKey returns the cross-store key for this record. SteamAppID is zero
// when the record has no usable external reference.
func (r Record) MatchKey() MatchKey {
	id, _ := r.SteamAppID()
	return MatchKey{SteamAppID: id, Name: NormalizeName(r.Name)}
}
