// Package reconcile upserts a backlog into a destination store that keys
// games by its own ids.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lepinkainen/backlogsync/internal/backlog"
	"github.com/lepinkainen/backlogsync/internal/destination"
	"github.com/lepinkainen/backlogsync/internal/errors"
)

// Destination is the part of a destination client the reconciler drives.
type Destination interface {
	List(ctx context.Context) ([]destination.Game, error)
	Create(ctx context.Context, g destination.Game) (destination.Game, error)
	Update(ctx context.Context, id int64, g destination.Game) error
	UpdateStatus(ctx context.Context, id int64, status string) error
}

// Pacer spaces out records sent to the destination.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Action is what happened to one source record.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
	ActionFailed  Action = "failed"
)

// Result reports a single processed record.
type Result struct {
	Index  int
	Total  int
	Name   string
	Action Action
	Err    error
}

type Option func(*Reconciler)

// WithDryRun resolves matches and counts actions without writing to the
// destination.
func WithDryRun() Option {
	return func(r *Reconciler) { r.dryRun = true }
}

// WithReporter calls fn after each record.
func WithReporter(fn func(Result)) Option {
	return func(r *Reconciler) { r.report = fn }
}

type Reconciler struct {
	dest   Destination
	pacer  Pacer
	dryRun bool
	report func(Result)
}

func New(dest Destination, pacer Pacer, opts ...Option) *Reconciler {
	r := &Reconciler{dest: dest, pacer: pacer, report: func(Result) {}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reconciles every source record. The outcome always accounts for every
// record; the error is set only when the destination could not be listed,
// in which case every record is counted as failed.
func (r *Reconciler) Run(ctx context.Context, source []backlog.Record) (*backlog.Outcome, error) {
	outcome := backlog.NewOutcome(len(source))

	games, err := r.dest.List(ctx)
	if err != nil {
		for _, rec := range source {
			outcome.AddFailure(rec.Name, err)
		}
		return outcome, fmt.Errorf("failed to list destination: %w", err)
	}
	idx := newIndex(games)
	slog.Info("Reconciling backlog", "source", len(source), "destination", len(games), "dry_run", r.dryRun)

	for i, rec := range source {
		res := Result{Index: i + 1, Total: len(source), Name: rec.Name}

		if strings.TrimSpace(rec.Name) == "" {
			res.Action = ActionSkipped
			r.finish(outcome, res)
			continue
		}

		if err := r.pacer.Wait(ctx); err != nil {
			res.Action, res.Err = ActionFailed, err
			r.finish(outcome, res)
			continue
		}

		res.Action, res.Err = r.upsert(ctx, idx, rec)
		r.finish(outcome, res)
	}

	slog.Info("Reconciliation finished", "outcome", outcome)
	return outcome, nil
}

func (r *Reconciler) finish(outcome *backlog.Outcome, res Result) {
	switch res.Action {
	case ActionCreated:
		outcome.AddCreated()
	case ActionUpdated:
		outcome.AddUpdated()
	case ActionSkipped:
		outcome.AddSkipped()
	default:
		outcome.AddFailure(res.Name, res.Err)
		slog.Warn("Failed to reconcile record", "name", res.Name, "error", res.Err)
	}
	r.report(res)
}

func (r *Reconciler) upsert(ctx context.Context, idx *index, rec backlog.Record) (Action, error) {
	game := toGame(rec)

	if pos, ok := idx.match(rec.MatchKey()); ok {
		return r.update(ctx, idx, pos, game)
	}

	if r.dryRun {
		idx.add(game)
		return ActionCreated, nil
	}

	created, err := r.dest.Create(ctx, game)
	if err == nil {
		idx.add(created)
		slog.Debug("Created game", "name", game.Name, "id", created.ID)
		return ActionCreated, nil
	}
	if !errors.IsConflictError(err) || game.SteamAppID == 0 {
		return ActionFailed, err
	}

	// Someone created it after our listing; look again
	slog.Info("Create conflicted, re-fetching destination", "name", game.Name, "appid", game.SteamAppID)
	games, listErr := r.dest.List(ctx)
	if listErr != nil {
		return ActionFailed, fmt.Errorf("create conflicted and re-fetch failed: %w", listErr)
	}
	idx.reset(games)
	pos, ok := idx.byAppID(game.SteamAppID)
	if !ok {
		return ActionFailed, fmt.Errorf("create conflicted but no game with app id %d exists: %w", game.SteamAppID, err)
	}
	return r.update(ctx, idx, pos, game)
}

// update sends game to the matched destination game, with a separate status
// call when the status differs.
func (r *Reconciler) update(ctx context.Context, idx *index, pos int, game destination.Game) (Action, error) {
	match := idx.games[pos]
	if r.dryRun {
		idx.updated(pos, game)
		return ActionUpdated, nil
	}
	if err := r.dest.Update(ctx, match.ID, game); err != nil {
		return ActionFailed, err
	}
	if match.Status != game.Status {
		if err := r.dest.UpdateStatus(ctx, match.ID, game.Status); err != nil {
			return ActionFailed, err
		}
	}
	idx.updated(pos, game)
	slog.Debug("Updated game", "name", game.Name, "id", match.ID)
	return ActionUpdated, nil
}

// toGame maps a record onto the destination's fields.
func toGame(rec backlog.Record) destination.Game {
	status := rec.Status
	if status == "" {
		status = backlog.StatusQueued
	}
	return destination.Game{
		SteamAppID:  rec.MatchKey().SteamAppID,
		Name:        strings.TrimSpace(rec.Name),
		Status:      string(status),
		CoverURL:    rec.CoverURL,
		ReleaseDate: rec.ReleaseDate.Value(),
		ComingSoon:  rec.ComingSoon.Value(),
		EarlyAccess: rec.EarlyAccess.Value(),
	}
}
