// Package enrichment keeps backlog records filled in with Steam store
// metadata on a timer, one record at a time.
package enrichment

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lepinkainen/backlogsync/internal/backlog"
	"github.com/lepinkainen/backlogsync/internal/docstore"
	"github.com/lepinkainen/backlogsync/internal/errors"
	"github.com/lepinkainen/backlogsync/internal/mutator"
	"github.com/robfig/cron/v3"
)

const (
	DefaultInitialDelay = 5 * time.Second
	DefaultInterval     = 30 * time.Minute
	DefaultLabel        = "Update release info from Steam"

	queueSize = 64
)

// errNothingToPersist aborts the final write when every changed record was
// deleted by someone else in the meantime.
var errNothingToPersist = stdErrors.New("no changed record left to persist")

// Options tunes the scheduler's timers.
type Options struct {
	// InitialDelay is how long after Start the first, prioritised pass runs
	InitialDelay time.Duration
	// Interval is the period of the recurring pass
	Interval time.Duration
	// Label is the change label of the scheduler's writes
	Label string
	// WatchInterval is how often the document is polled for records added
	// by other writers. Zero disables polling.
	WatchInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.InitialDelay <= 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Label == "" {
		o.Label = DefaultLabel
	}
	return o
}

// Scheduler runs enrichment passes. A pass reads a fresh document, fetches
// metadata for each record in turn, keeps local-only fields in local state
// and writes changed store-of-record fields back in one conditional write.
// Passes and the new-record fast path never overlap.
type Scheduler struct {
	store   docstore.Store
	mutator *mutator.Mutator
	source  Source
	local   LocalState
	pacer   Pacer
	opts    Options

	passMu sync.Mutex
	state  atomic.Int32

	viewMu sync.RWMutex
	view   []backlog.Record

	pendingMu sync.Mutex
	pending   map[string]struct{}
	queue     chan string

	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. local may be nil, in which case local-only fields
// live only in the in-memory view.
func New(store docstore.Store, m *mutator.Mutator, source Source, local LocalState, pacer Pacer, opts Options) *Scheduler {
	return &Scheduler{
		store:   store,
		mutator: m,
		source:  source,
		local:   local,
		pacer:   pacer,
		opts:    opts.withDefaults(),
		pending: make(map[string]struct{}),
		queue:   make(chan string, queueSize),
	}
}

// State returns what the scheduler is doing right now.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// View returns the records as of the last pass, local-only fields included.
func (s *Scheduler) View() []backlog.Record {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return backlog.CloneRecords(s.view)
}

func (s *Scheduler) setView(records []backlog.Record) {
	s.viewMu.Lock()
	s.view = records
	s.viewMu.Unlock()
}

// Start schedules the initial prioritised pass after InitialDelay, the
// recurring pass every Interval and the fast-path worker. It returns
// immediately; Stop tears everything down.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.cron = cron.New(cron.WithChain(
		cron.Recover(cronLogger{}),
		cron.SkipIfStillRunning(cronLogger{}),
	))
	schedule := fmt.Sprintf("@every %s", s.opts.Interval)
	if _, err := s.cron.AddFunc(schedule, func() { s.runLogged(ctx, false) }); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule enrichment: %w", err)
	}
	if s.opts.WatchInterval > 0 {
		watchSchedule := fmt.Sprintf("@every %s", s.opts.WatchInterval)
		if _, err := s.cron.AddFunc(watchSchedule, func() { s.watch(ctx) }); err != nil {
			cancel()
			return fmt.Errorf("failed to schedule document watch: %w", err)
		}
	}
	s.cron.Start()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
		case <-time.After(s.opts.InitialDelay):
			s.runLogged(ctx, true)
		}
	}()
	go func() {
		defer s.wg.Done()
		s.worker(ctx)
	}()

	slog.Info("Enrichment scheduler started", "initial_delay", s.opts.InitialDelay, "interval", s.opts.Interval)
	return nil
}

// Stop cancels the timers and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	cronCtx := s.cron.Stop()
	<-cronCtx.Done()
	s.wg.Wait()
	slog.Info("Enrichment scheduler stopped")
}

func (s *Scheduler) runLogged(ctx context.Context, prioritize bool) {
	if _, err := s.RunPass(ctx, prioritize); err != nil && ctx.Err() == nil {
		slog.Warn("Enrichment pass failed", "error", err)
	}
}

// RunPass runs one pass over the whole collection synchronously. The
// outcome counts every record once; the error reports a failed read or a
// failed final write.
func (s *Scheduler) RunPass(ctx context.Context, prioritize bool) (*backlog.Outcome, error) {
	return s.run(ctx, prioritize, nil)
}

// Notify hands newly added records to the fast path. Records that already
// have core enrichment, or are already queued, are ignored.
func (s *Scheduler) Notify(records []backlog.Record) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	for _, r := range records {
		if !r.MissingCoreEnrichment() {
			continue
		}
		if _, queued := s.pending[r.ID]; queued {
			continue
		}
		select {
		case s.queue <- r.ID:
			s.pending[r.ID] = struct{}{}
		default:
			slog.Warn("Enrichment queue full, leaving record for the next pass", "name", r.Name)
		}
	}
}

// watch hands records that appeared since the last pass to the fast path.
// Nothing is watched before the first pass has built a view.
func (s *Scheduler) watch(ctx context.Context) {
	s.viewMu.RLock()
	if s.view == nil {
		s.viewMu.RUnlock()
		return
	}
	known := make(map[string]bool, len(s.view))
	for _, r := range s.view {
		known[r.ID] = true
	}
	s.viewMu.RUnlock()

	doc, err := s.store.Read(ctx)
	if err != nil {
		slog.Debug("Document watch read failed", "error", err)
		return
	}
	var added []backlog.Record
	for _, r := range doc.Records {
		if !known[r.ID] {
			added = append(added, r)
		}
	}
	if len(added) > 0 {
		slog.Info("New records found", "count", len(added))
		s.Notify(added)
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.queue:
			ids := map[string]bool{id: true}
		drain:
			for {
				select {
				case more := <-s.queue:
					ids[more] = true
				default:
					break drain
				}
			}

			if _, err := s.run(ctx, false, ids); err != nil && ctx.Err() == nil {
				slog.Warn("Enrichment of new records failed", "error", err)
			}

			s.pendingMu.Lock()
			for id := range ids {
				delete(s.pending, id)
			}
			s.pendingMu.Unlock()
		}
	}
}

// run is a pass restricted to the ids in only, or over everything when only
// is nil.
func (s *Scheduler) run(ctx context.Context, prioritize bool, only map[string]bool) (*backlog.Outcome, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()
	defer s.setState(StateIdle)

	s.setState(StateScanning)
	doc, err := s.store.Read(ctx)
	if err != nil {
		return backlog.NewOutcome(0), fmt.Errorf("failed to read backlog: %w", err)
	}

	records := doc.Records
	if s.local != nil {
		if err := s.local.Overlay(ctx, records); err != nil {
			slog.Warn("Failed to load local enrichment", "error", err)
		}
	}
	s.keepLocalFromView(records)

	targets := records
	if only != nil {
		targets = nil
		for _, r := range records {
			if only[r.ID] {
				targets = append(targets, r)
			}
		}
	}
	if prioritize {
		targets = Prioritize(targets)
	}

	outcome := backlog.NewOutcome(len(targets))
	fetched := make(map[string]backlog.Enrichment)
	patches := make(map[string]backlog.Enrichment)

	for i, rec := range targets {
		appID, ok := rec.SteamAppID()
		if !ok {
			slog.Debug("Skipping record without Steam app id", "name", rec.Name)
			outcome.AddSkipped()
			continue
		}

		if err := s.pacer.Wait(ctx); err != nil {
			for range targets[i:] {
				outcome.AddSkipped()
			}
			break
		}

		s.setState(StateFetching)
		e, err := fetch(ctx, s.source, rec, appID)
		if err != nil {
			outcome.AddFailure(rec.Name, err)
			if errors.IsRateLimitError(err) {
				slog.Warn("Steam rate limit hit, ending pass early", "name", rec.Name, "remaining", len(targets)-i-1, "error", err)
				for range targets[i+1:] {
					outcome.AddSkipped()
				}
				break
			}
			slog.Warn("Failed to fetch metadata", "name", rec.Name, "appid", appID, "error", err)
			continue
		}

		s.setState(StateMerging)
		change := diff(rec.Enrichment, e)
		if !change.Any() {
			slog.Debug("Metadata unchanged", "name", rec.Name)
			outcome.AddSkipped()
			continue
		}

		fetched[rec.ID] = e
		if change.Local && s.local != nil {
			if err := s.local.Save(ctx, rec.ID, e); err != nil {
				slog.Warn("Failed to save local enrichment", "name", rec.Name, "error", err)
			}
		}
		if change.HasPersisted() {
			patches[rec.ID] = change.Persisted
		}
		slog.Debug("Metadata updated", "name", rec.Name, "persisted", change.HasPersisted())
		outcome.AddUpdated()
	}

	// The records slice still holds the values read at Scanning time; bring
	// it up to date with what was fetched.
	for i := range records {
		if e, ok := fetched[records[i].ID]; ok {
			records[i].Enrichment = e
		}
	}

	var persistErr error
	if len(patches) > 0 {
		s.setState(StatePersisting)
		records, persistErr = s.persist(ctx, records, patches, fetched)
	}
	s.setView(records)

	slog.Info("Enrichment pass finished", "outcome", outcome, "persisted", len(patches))
	return outcome, persistErr
}

// persist writes the changed store-of-record fields. The mutator reads the
// document again, so edits made during the pass survive: only the changed
// fields of records that still exist are overwritten.
func (s *Scheduler) persist(ctx context.Context, current []backlog.Record, patches, fetched map[string]backlog.Enrichment) ([]backlog.Record, error) {
	doc, err := s.mutator.Apply(ctx, s.opts.Label, func(records []backlog.Record) ([]backlog.Record, error) {
		matched := 0
		for i := range records {
			if p, ok := patches[records[i].ID]; ok {
				applyPersisted(&records[i], p)
				matched++
			}
		}
		if matched == 0 {
			return nil, errNothingToPersist
		}
		return records, nil
	})
	if stdErrors.Is(err, errNothingToPersist) {
		slog.Info("Changed records were removed concurrently, nothing to persist")
		return current, nil
	}
	if err != nil {
		return current, fmt.Errorf("failed to persist enrichment: %w", err)
	}

	// The written document carries no local-only fields; put them back so
	// the view doesn't lose them.
	records := doc.Records
	if s.local != nil {
		if err := s.local.Overlay(ctx, records); err != nil {
			slog.Warn("Failed to load local enrichment", "error", err)
		}
	}
	for i := range records {
		if e, ok := fetched[records[i].ID]; ok {
			applyLocal(&records[i], e)
		}
	}
	s.keepLocalFromView(records)
	slog.Info("Persisted enrichment", "records", len(patches), "revision", doc.Revision)
	return records, nil
}

// keepLocalFromView fills local-only fields that are still unfetched from
// the previous view, for when there is no local state store.
func (s *Scheduler) keepLocalFromView(records []backlog.Record) {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	if len(s.view) == 0 {
		return
	}
	prev := make(map[string]backlog.Enrichment, len(s.view))
	for _, r := range s.view {
		prev[r.ID] = r.Local()
	}
	for i := range records {
		e, ok := prev[records[i].ID]
		if !ok {
			continue
		}
		if !records[i].ReviewScore.Fetched() {
			records[i].ReviewScore = e.ReviewScore
		}
		if !records[i].ReviewCount.Fetched() {
			records[i].ReviewCount = e.ReviewCount
		}
		if !records[i].Genres.Fetched() {
			records[i].Genres = e.Genres
		}
	}
}

// cronLogger routes cron's internal logging to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
