package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/lepinkainen/backlogsync/internal/backlog"
	"github.com/lepinkainen/backlogsync/internal/ratelimit"
	"github.com/lepinkainen/backlogsync/internal/reconcile"
	"github.com/lepinkainen/backlogsync/internal/snapshot"
)

// ReconcileCmd represents the reconcile command
type ReconcileCmd struct {
	Source string        `short:"f" help:"Snapshot file (.json, .yaml, .csv) to reconcile instead of the live backlog" type:"path"`
	DryRun bool          `help:"Show what would be done without writing to the destination"`
	Delay  time.Duration `help:"Pause between destination calls (defaults to reconcile.delay)"`
}

func (r *ReconcileCmd) Run(env *Env) error {
	// Configuration problems surface before anything touches the network
	if err := env.Config.ValidateDestination(); err != nil {
		return err
	}
	if r.Source == "" {
		if err := env.Config.ValidateStore(); err != nil {
			return err
		}
	}

	records, err := r.loadSource(env)
	if err != nil {
		return err
	}

	dest, err := openDestination(env.Ctx, env.Config)
	if err != nil {
		return fmt.Errorf("failed to open destination: %w", err)
	}
	defer func() { _ = dest.Close() }()

	delay := r.Delay
	if delay <= 0 {
		delay = env.Config.Reconcile.Delay
	}

	opts := []reconcile.Option{
		reconcile.WithReporter(func(res reconcile.Result) {
			line := fmt.Sprintf("[%d/%d] %s: %s", res.Index, res.Total, res.Name, res.Action)
			if res.Err != nil {
				line += " (" + res.Err.Error() + ")"
			}
			_, _ = fmt.Fprintln(env.Out, line)
		}),
	}
	if r.DryRun {
		opts = append(opts, reconcile.WithDryRun())
	}

	rec := reconcile.New(dest, ratelimit.NewPacer("destination", delay), opts...)
	outcome, err := rec.Run(env.Ctx, records)
	printOutcome(env.Out, outcome)
	if err != nil {
		return err
	}
	if !outcome.OK() {
		return fmt.Errorf("%d of %d records failed", outcome.Failed, outcome.Total)
	}
	return nil
}

func (r *ReconcileCmd) loadSource(env *Env) ([]backlog.Record, error) {
	if r.Source != "" {
		records, err := snapshot.Load(r.Source)
		if err != nil {
			return nil, err
		}
		slog.Info("Loaded snapshot", "path", r.Source, "records", len(records))
		return records, nil
	}

	store, err := env.openStore()
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	doc, err := store.Read(env.Ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read backlog: %w", err)
	}
	return doc.Records, nil
}
