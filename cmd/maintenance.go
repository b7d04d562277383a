package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/lepinkainen/backlogsync/internal/cache"
	"github.com/lepinkainen/backlogsync/internal/snapshot"
)

// HistoryCmd represents the history command
type HistoryCmd struct {
	Limit int `short:"n" help:"Number of entries to show" default:"20"`
}

type historian interface {
	History(ctx context.Context, limit int) ([]string, error)
}

func (h *HistoryCmd) Run(env *Env) error {
	store, err := env.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	hs, ok := store.(historian)
	if !ok {
		return fmt.Errorf("%s keeps no history of its own; its host records each change label", store.Name())
	}
	labels, err := hs.History(env.Ctx, h.Limit)
	if err != nil {
		return err
	}
	for _, label := range labels {
		_, _ = fmt.Fprintln(env.Out, label)
	}
	return nil
}

// CacheCmd represents the cache command and its subcommands
type CacheCmd struct {
	Clear      CacheClearCmd      `cmd:"" help:"Delete expired cache entries"`
	Invalidate CacheInvalidateCmd `cmd:"" help:"Delete every cache entry of a source"`
}

type CacheClearCmd struct{}

func (c *CacheClearCmd) Run(env *Env) error {
	db, err := cache.Open(env.Config.Cache.DBFile, env.Config.Cache.TTL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	sources := make([]string, 0, len(cache.Sources))
	for name := range cache.Sources {
		sources = append(sources, name)
	}
	sort.Strings(sources)

	for _, name := range sources {
		n, err := db.ClearExpired(env.Ctx, cache.Sources[name])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(env.Out, "%s: removed %d expired entries\n", name, n)
	}
	return nil
}

type CacheInvalidateCmd struct {
	Source string `arg:"" help:"Cache source to clear" enum:"steam"`
}

func (c *CacheInvalidateCmd) Run(env *Env) error {
	db, err := cache.Open(env.Config.Cache.DBFile, env.Config.Cache.TTL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	n, err := db.InvalidateSource(env.Ctx, cache.Sources[c.Source])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(env.Out, "%s: removed %d entries\n", c.Source, n)
	return nil
}

// ExportCmd writes a snapshot that reconcile --source can read back
type ExportCmd struct {
	Path      string `arg:"" help:"Output file (.json, .yaml, .yml or .csv)" type:"path"`
	Overwrite bool   `help:"Replace an existing file"`
}

func (x *ExportCmd) Run(env *Env) error {
	if _, err := snapshot.FormatOf(x.Path); err != nil {
		return err
	}

	doc, err := env.readOverlaid()
	if err != nil {
		return err
	}

	written, err := snapshot.Write(x.Path, doc.Records, x.Overwrite)
	if err != nil {
		return err
	}
	if !written {
		return fmt.Errorf("%s already exists (use --overwrite to replace it)", x.Path)
	}
	_, _ = fmt.Fprintf(env.Out, "exported %d records to %s\n", len(doc.Records), x.Path)
	return nil
}
