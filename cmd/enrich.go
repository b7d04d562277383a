package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/lepinkainen/backlogsync/internal/cache"
	"github.com/lepinkainen/backlogsync/internal/enrichment"
	"github.com/lepinkainen/backlogsync/internal/localstate"
	"github.com/lepinkainen/backlogsync/internal/mutator"
	"github.com/lepinkainen/backlogsync/internal/ratelimit"
	"github.com/lepinkainen/backlogsync/internal/steam"
)

// EnrichCmd represents the enrich command
type EnrichCmd struct {
	Once     bool          `help:"Run a single prioritised pass and exit"`
	Interval time.Duration `help:"Period of the recurring pass (defaults to enrichment.interval)"`
}

func (e *EnrichCmd) Run(env *Env) error {
	cfg := env.Config

	store, err := env.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	cacheDB, err := cache.Open(cfg.Cache.DBFile, cfg.Cache.TTL)
	if err != nil {
		return err
	}
	defer func() { _ = cacheDB.Close() }()
	if n, err := cacheDB.ClearExpired(env.Ctx, cache.SteamDetailsTable); err != nil {
		slog.Warn("Failed to clear expired cache entries", "error", err)
	} else if n > 0 {
		slog.Info("Cleared expired cache entries", "count", n)
	}

	local, err := localstate.Open(cfg.LocalState.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = local.Close() }()

	interval := e.Interval
	if interval <= 0 {
		interval = cfg.Enrichment.Interval
	}

	sched := enrichment.New(store, mutator.New(store),
		steam.NewClient(cfg.Steam.StoreURL, cfg.Steam.Timeout, cacheDB),
		local,
		ratelimit.NewPacer("steam", cfg.Enrichment.Delay),
		enrichment.Options{
			InitialDelay:  cfg.Enrichment.InitialDelay,
			Interval:      interval,
			WatchInterval: cfg.Enrichment.WatchInterval,
		},
	)

	if e.Once {
		outcome, err := sched.RunPass(env.Ctx, true)
		printOutcome(env.Out, outcome)
		if err != nil {
			return err
		}
		if n, err := local.Prune(env.Ctx, sched.View()); err != nil {
			slog.Warn("Failed to prune local enrichment", "error", err)
		} else if n > 0 {
			slog.Info("Pruned local enrichment of removed records", "count", n)
		}
		return nil
	}

	if err := sched.Start(env.Ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	<-env.Ctx.Done()
	sched.Stop()
	return nil
}
