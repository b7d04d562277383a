package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lepinkainen/backlogsync/internal/backlog"
	"github.com/lepinkainen/backlogsync/internal/mutator"
	"github.com/lepinkainen/backlogsync/internal/steam"
)

// ImportCmd adds a user's owned Steam games to the backlog
type ImportCmd struct {
	SteamID  string `help:"SteamID64 whose library to import (defaults to steam.steamid)"`
	Unplayed bool   `help:"Only import games with no recorded playtime"`
	Status   string `help:"Status for imported games" enum:"queued,active,done" default:"queued"`
	MutationFlags
}

func (i *ImportCmd) Run(env *Env) error {
	cfg := env.Config
	steamID := i.SteamID
	if steamID == "" {
		steamID = cfg.Steam.SteamID
	}

	library := steam.NewLibrary(cfg.Steam.APIURL, cfg.Steam.APIKey, cfg.Steam.Timeout)
	owned, err := library.OwnedGames(env.Ctx, steamID)
	if err != nil {
		return fmt.Errorf("failed to fetch owned games: %w", err)
	}

	entries := make([]mutator.NewRecord, 0, len(owned))
	for _, g := range owned {
		if i.Unplayed && g.PlaytimeForever > 0 {
			continue
		}
		entries = append(entries, mutator.NewRecord{
			Name:        g.Name,
			Status:      backlog.Status(i.Status),
			ExternalRef: g.Ref(),
		})
	}
	slog.Info("Fetched Steam library", "owned", len(owned), "candidates", len(entries))

	store, err := env.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	m := mutator.New(store)
	var added []backlog.Record
	err = mutator.RetryOnConflict(env.Ctx, i.Retries, func(ctx context.Context) error {
		var err error
		added, err = m.ImportRecords(ctx, "Steam", entries)
		return err
	})
	if err != nil {
		return err
	}

	for _, r := range added {
		_, _ = fmt.Fprintf(env.Out, "Added %q (%s)\n", r.Name, r.ExternalRef)
	}
	_, _ = fmt.Fprintf(env.Out, "imported %d of %d games\n", len(added), len(entries))
	return nil
}
