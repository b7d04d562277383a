package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"text/tabwriter"

	"github.com/lepinkainen/backlogsync/internal/backlog"
	"github.com/lepinkainen/backlogsync/internal/localstate"
	"github.com/lepinkainen/backlogsync/internal/mutator"
)

// readOverlaid reads the backlog and fills in local-only enrichment. A
// missing or broken local state database only costs the local fields.
func (e *Env) readOverlaid() (backlog.Document, error) {
	store, err := e.openStore()
	if err != nil {
		return backlog.Document{}, err
	}
	defer func() { _ = store.Close() }()

	doc, err := store.Read(e.Ctx)
	if err != nil {
		return backlog.Document{}, fmt.Errorf("failed to read backlog: %w", err)
	}

	local, err := localstate.Open(e.Config.LocalState.DBFile)
	if err != nil {
		slog.Warn("Local enrichment unavailable", "error", err)
		return doc, nil
	}
	defer func() { _ = local.Close() }()
	if err := local.Overlay(e.Ctx, doc.Records); err != nil {
		slog.Warn("Failed to load local enrichment", "error", err)
	}
	return doc, nil
}

// ListCmd represents the list command
type ListCmd struct {
	JSON   bool   `help:"Print records as JSON"`
	Status string `help:"Only show records with this status (queued, active, done)"`
}

func (l *ListCmd) Run(env *Env) error {
	var status backlog.Status
	if l.Status != "" {
		parsed, err := backlog.ParseStatus(l.Status)
		if err != nil {
			return err
		}
		status = parsed
	}

	doc, err := env.readOverlaid()
	if err != nil {
		return err
	}
	records := doc.Records

	if status != "" {
		filtered := []backlog.Record{}
		for _, r := range records {
			if r.Status == status {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

	if l.JSON {
		enc := json.NewEncoder(env.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	tw := tabwriter.NewWriter(env.Out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSTATUS\tPIN\tNAME\tRELEASE\tSCORE")
	for _, r := range records {
		pin := ""
		if r.Pinned {
			pin = "*"
		}
		score := "-"
		if r.ReviewScore.Present() {
			score = strconv.Itoa(r.ReviewScore.Value()) + "%"
		}
		release := r.ReleaseDate.Value()
		if release == "" {
			release = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Status, pin, r.Name, release, score)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	slog.Debug("Listed backlog", "records", len(records), "revision", doc.Revision)
	return nil
}

// MutationFlags are shared by every command that writes the backlog.
type MutationFlags struct {
	Retries int `help:"Re-read and retry this many times if another writer changed the backlog first" default:"0"`
}

// mutate runs one intent against a freshly opened store, retrying on
// conflicts as asked.
func (f MutationFlags) mutate(env *Env, fn func(ctx context.Context, m *mutator.Mutator) (backlog.Record, error)) (backlog.Record, error) {
	store, err := env.openStore()
	if err != nil {
		return backlog.Record{}, err
	}
	defer func() { _ = store.Close() }()

	m := mutator.New(store)
	var rec backlog.Record
	err = mutator.RetryOnConflict(env.Ctx, f.Retries, func(ctx context.Context) error {
		var err error
		rec, err = fn(ctx, m)
		return err
	})
	return rec, err
}

// AddCmd represents the add command
type AddCmd struct {
	Name   string `arg:"" help:"Game name"`
	Status string `help:"Initial status" enum:"queued,active,done" default:"queued"`
	Ref    string `help:"Steam store URL or app id"`
	Cover  string `help:"Cover image URL"`
	MutationFlags
}

func (a *AddCmd) Run(env *Env) error {
	rec, err := a.mutate(env, func(ctx context.Context, m *mutator.Mutator) (backlog.Record, error) {
		return m.AddRecord(ctx, mutator.NewRecord{
			Name:        a.Name,
			Status:      backlog.Status(a.Status),
			ExternalRef: a.Ref,
			CoverURL:    a.Cover,
		})
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(env.Out, "Added %q (%s)\n", rec.Name, rec.ID)
	return nil
}

// UpdateCmd represents the update command
type UpdateCmd struct {
	ID         string `arg:"" help:"Record id"`
	Name       string `help:"New name"`
	Ref        string `help:"New Steam store URL or app id"`
	Cover      string `help:"New cover image URL"`
	ClearRef   bool   `help:"Remove the store link"`
	ClearCover bool   `help:"Remove the cover"`
	MutationFlags
}

func (u *UpdateCmd) patch() mutator.Patch {
	var p mutator.Patch
	if u.Name != "" {
		p.Name = &u.Name
	}
	if u.Ref != "" || u.ClearRef {
		p.ExternalRef = &u.Ref
	}
	if u.Cover != "" || u.ClearCover {
		p.CoverURL = &u.Cover
	}
	return p
}

func (u *UpdateCmd) Run(env *Env) error {
	p := u.patch()
	if p.Name == nil && p.ExternalRef == nil && p.CoverURL == nil {
		return fmt.Errorf("nothing to update (use --name, --ref, --cover, --clear-ref or --clear-cover)")
	}
	if u.ClearRef && u.Ref != "" || u.ClearCover && u.Cover != "" {
		return fmt.Errorf("cannot set and clear the same field")
	}
	rec, err := u.mutate(env, func(ctx context.Context, m *mutator.Mutator) (backlog.Record, error) {
		return m.UpdateRecord(ctx, u.ID, p)
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(env.Out, "Updated %q\n", rec.Name)
	return nil
}

// StatusCmd represents the status command
type StatusCmd struct {
	ID     string `arg:"" help:"Record id"`
	Status string `arg:"" help:"New status" enum:"queued,active,done"`
	MutationFlags
}

func (s *StatusCmd) Run(env *Env) error {
	rec, err := s.mutate(env, func(ctx context.Context, m *mutator.Mutator) (backlog.Record, error) {
		return m.SetStatus(ctx, s.ID, backlog.Status(s.Status))
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(env.Out, "%q is now %s\n", rec.Name, rec.Status)
	return nil
}

// PinCmd represents the pin command
type PinCmd struct {
	ID  string `arg:"" help:"Record id"`
	Off bool   `help:"Unpin instead"`
	MutationFlags
}

func (p *PinCmd) Run(env *Env) error {
	rec, err := p.mutate(env, func(ctx context.Context, m *mutator.Mutator) (backlog.Record, error) {
		return m.SetPinned(ctx, p.ID, !p.Off)
	})
	if err != nil {
		return err
	}
	verb := "Pinned"
	if p.Off {
		verb = "Unpinned"
	}
	_, _ = fmt.Fprintf(env.Out, "%s %q\n", verb, rec.Name)
	return nil
}

// RemoveCmd represents the remove command
type RemoveCmd struct {
	ID string `arg:"" help:"Record id"`
	MutationFlags
}

func (r *RemoveCmd) Run(env *Env) error {
	rec, err := r.mutate(env, func(ctx context.Context, m *mutator.Mutator) (backlog.Record, error) {
		return m.RemoveRecord(ctx, r.ID)
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(env.Out, "Removed %q\n", rec.Name)
	return nil
}
