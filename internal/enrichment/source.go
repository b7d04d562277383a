package enrichment

import (
	"context"

	"github.com/lepinkainen/backlogsync/internal/backlog"
	"github.com/lepinkainen/backlogsync/internal/steam"
)

// Source is the metadata provider, implemented by *steam.Client.
type Source interface {
	Reviews(ctx context.Context, appID int) (steam.Reviews, error)
	Details(ctx context.Context, appID int) (steam.Details, error)
}

// LocalState persists enrichment fields the store of record can't hold,
// implemented by *localstate.Store.
type LocalState interface {
	Save(ctx context.Context, recordID string, e backlog.Enrichment) error
	Overlay(ctx context.Context, records []backlog.Record) error
}

// Pacer spaces out calls to the metadata source.
type Pacer interface {
	Wait(ctx context.Context) error
}
