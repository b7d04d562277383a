package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/backlogsync/internal/backlog"
	"github.com/lepinkainen/backlogsync/internal/config"
	"github.com/lepinkainen/backlogsync/internal/destination"
	"github.com/lepinkainen/backlogsync/internal/docstore"
	"github.com/lepinkainen/humanlog"
)

var (
	openStore       = docstore.Open
	openDestination = destination.Open
)

// CLI represents the complete command structure for the backlogsync application
type CLI struct {
	Verbose bool   `short:"v" help:"Enable debug logging"`
	Config  string `help:"Path to config file (defaults to ./config.yaml)" type:"path"`

	Reconcile ReconcileCmd `cmd:"" help:"Upsert the backlog into the destination store"`
	Enrich    EnrichCmd    `cmd:"" help:"Fill in Steam store metadata once or on a schedule"`
	List      ListCmd      `cmd:"" help:"List backlog records"`
	Add       AddCmd       `cmd:"" help:"Add a game to the backlog"`
	Update    UpdateCmd    `cmd:"" help:"Change a record's name, store link or cover"`
	Status    StatusCmd    `cmd:"" help:"Move a record to another status"`
	Pin       PinCmd       `cmd:"" help:"Pin or unpin a record"`
	Remove    RemoveCmd    `cmd:"" help:"Remove a record"`
	Import    ImportCmd    `cmd:"" help:"Add owned Steam games that are not in the backlog yet"`
	Export    ExportCmd    `cmd:"" help:"Write the backlog to a JSON, YAML or CSV snapshot"`
	History   HistoryCmd   `cmd:"" help:"Show recent change labels (sqlite and redis stores)"`
	Cache     CacheCmd     `cmd:"" help:"Manage the Steam response cache"`
}

// Env is passed to every command's Run.
type Env struct {
	Ctx    context.Context
	Config *config.Config
	Out    io.Writer
}

func (e *Env) openStore() (docstore.Backend, error) {
	store, err := openStore(e.Ctx, e.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}
	slog.Debug("Opened document store", "store", store.Name())
	return store, nil
}

func parserOptions() []kong.Option {
	return []kong.Option{
		kong.Name("backlogsync"),
		kong.Description("Keeps a game backlog consistent across its document store, the Steam store and a destination database."),
		kong.UsageOnError(),
	}
}

// Execute runs the Kong-based CLI
func Execute() {
	var cli CLI
	kctx := kong.Parse(&cli, parserOptions()...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := runCommand(ctx, kctx, &cli, os.Stdout)
	stop()
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// run parses args and runs the selected command.
func run(ctx context.Context, args []string, out io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli, parserOptions()...)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return runCommand(ctx, kctx, &cli, out)
}

func runCommand(ctx context.Context, kctx *kong.Context, cli *CLI, out io.Writer) error {
	initLogging(cli.Verbose)

	v, err := config.New(cli.Config)
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	return kctx.Run(&Env{Ctx: ctx, Config: cfg, Out: out})
}

func initLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	// Logs go to stderr so command output can be piped
	handler := humanlog.NewHandler(os.Stderr, &humanlog.Options{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func printOutcome(w io.Writer, o *backlog.Outcome) {
	_, _ = fmt.Fprintf(w, "created=%d updated=%d skipped=%d failed=%d total=%d\n",
		o.Created, o.Updated, o.Skipped, o.Failed, o.Total)
	for _, f := range o.Failures {
		_, _ = fmt.Fprintf(w, "  failed: %s: %s\n", f.Name, f.Message)
	}
}
