package enrichment

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lepinkainen/backlogsync/internal/backlog"
	"github.com/lepinkainen/backlogsync/internal/errors"
	"github.com/lepinkainen/backlogsync/internal/localstate"
	"github.com/lepinkainen/backlogsync/internal/mutator"
	"github.com/lepinkainen/backlogsync/internal/ratelimit"
	"github.com/lepinkainen/backlogsync/internal/steam"
	"github.com/lepinkainen/backlogsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sourceCall struct {
	kind  string
	appID int
	at    time.Time
}

type fakeSource struct {
	mu      sync.Mutex
	reviews map[int]steam.Reviews
	details map[int]steam.Details
	errs    map[int]error
	calls   []sourceCall
	onCall  func(kind string, appID int)
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		reviews: make(map[int]steam.Reviews),
		details: make(map[int]steam.Details),
		errs:    make(map[int]error),
	}
}

func (f *fakeSource) record(kind string, appID int) error {
	f.mu.Lock()
	f.calls = append(f.calls, sourceCall{kind: kind, appID: appID, at: time.Now()})
	hook := f.onCall
	err := f.errs[appID]
	f.mu.Unlock()
	if hook != nil {
		hook(kind, appID)
	}
	return err
}

func (f *fakeSource) Reviews(ctx context.Context, appID int) (steam.Reviews, error) {
	if err := f.record("reviews", appID); err != nil {
		return steam.Reviews{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reviews[appID], nil
}

func (f *fakeSource) Details(ctx context.Context, appID int) (steam.Details, error) {
	if err := f.record("details", appID); err != nil {
		return steam.Details{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.details[appID], nil
}

func (f *fakeSource) Calls() []sourceCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sourceCall(nil), f.calls...)
}

// reviewOrder returns the app ids in the order their reviews were fetched.
func (f *fakeSource) reviewOrder() []int {
	var ids []int
	for _, c := range f.Calls() {
		if c.kind == "reviews" {
			ids = append(ids, c.appID)
		}
	}
	return ids
}

// stock registers a released, non early access game.
func (f *fakeSource) stock(appID, positive, negative int, date string) {
	f.reviews[appID] = steam.Reviews{TotalPositive: positive, TotalNegative: negative, TotalReviews: positive + negative}
	d := steam.Details{AppID: appID, Found: true, Genres: []steam.Genre{{ID: "23", Description: "Indie"}}}
	d.ReleaseDate.Date = date
	f.details[appID] = d
}

func game(id string, appID int) backlog.Record {
	return backlog.Record{ID: id, Name: "Game " + id, Status: backlog.StatusQueued, ExternalRef: fmt.Sprint(appID)}
}

// settled returns a record whose enrichment matches what stock(appID, 9, 1, date) serves.
func settled(id string, appID int, date string) backlog.Record {
	r := game(id, appID)
	r.ReviewScore = backlog.Known(90)
	r.ReviewCount = backlog.Known(10)
	r.ReleaseDate = backlog.Known(date)
	r.ComingSoon = backlog.Known(false)
	r.EarlyAccess = backlog.Known(false)
	r.Genres = backlog.Known([]string{"Indie"})
	return r
}

type harness struct {
	store  *testutil.MemoryStore
	source *fakeSource
	local  *localstate.Store
	sched  *Scheduler
}

func newHarness(t *testing.T, records []backlog.Record, pacing time.Duration) *harness {
	t.Helper()
	env := testutil.NewTestEnv(t)
	local, err := localstate.Open(env.Path("local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	store := testutil.NewMemoryStore(records)
	source := newFakeSource()
	sched := New(store, mutator.New(store), source, local, ratelimit.NewPacer("steam", pacing), Options{
		InitialDelay: time.Hour,
		Interval:     time.Hour,
	})
	return &harness{store: store, source: source, local: local, sched: sched}
}

func TestRunPass_InitialPassVisitsMissingFirst(t *testing.T) {
	a := game("A", 1)
	b := settled("B", 2, "2 Feb, 2020")
	c := game("C", 3)
	h := newHarness(t, []backlog.Record{a, b, c}, 0)
	h.source.stock(1, 9, 1, "1 Jan, 2020")
	h.source.stock(2, 9, 1, "2 Feb, 2020")
	h.source.stock(3, 9, 1, "3 Mar, 2020")

	_, err := h.sched.RunPass(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 2}, h.source.reviewOrder())

	// The recurring pass keeps collection order
	h2 := newHarness(t, []backlog.Record{a, b, c}, 0)
	h2.source.stock(1, 9, 1, "1 Jan, 2020")
	h2.source.stock(2, 9, 1, "2 Feb, 2020")
	h2.source.stock(3, 9, 1, "3 Mar, 2020")
	_, err = h2.sched.RunPass(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, h2.source.reviewOrder())
}

func TestRunPass_UnchangedRecordsAreNotWritten(t *testing.T) {
	records := []backlog.Record{settled("A", 1, "1 Jan, 2020"), settled("B", 2, "2 Feb, 2020")}
	h := newHarness(t, records, 0)
	h.source.stock(1, 9, 1, "1 Jan, 2020")
	h.source.stock(2, 9, 1, "2 Feb, 2020")

	// Local-only fields come from local state, not the document
	ctx := context.Background()
	for _, r := range records {
		require.NoError(t, h.local.Save(ctx, r.ID, r.Enrichment))
	}

	outcome, err := h.sched.RunPass(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Skipped)
	assert.Equal(t, 0, outcome.Updated)
	assert.Equal(t, 0, h.store.Writes())
}

func TestRunPass_FetchPolicySkipsSettledDetails(t *testing.T) {
	h := newHarness(t, []backlog.Record{settled("A", 1, "1 Jan, 2020")}, 0)
	h.source.stock(1, 9, 1, "1 Jan, 2020")

	_, err := h.sched.RunPass(context.Background(), false)
	require.NoError(t, err)

	for _, c := range h.source.Calls() {
		assert.NotEqual(t, "details", c.kind, "settled details are not fetched again")
	}
}

func TestRunPass_LeavingEarlyAccessIsPersisted(t *testing.T) {
	rec := settled("A", 1, "1 Jan, 2020")
	rec.EarlyAccess = backlog.Known(true)
	h := newHarness(t, []backlog.Record{rec}, 0)
	h.source.stock(1, 9, 1, "1 Jan, 2020")

	outcome, err := h.sched.RunPass(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Updated)
	assert.False(t, h.store.Records()[0].EarlyAccess.Value())
	assert.Equal(t, []string{DefaultLabel}, h.store.Labels())
}

func TestRunPass_LocalOnlyChangeDoesNotWrite(t *testing.T) {
	rec := settled("A", 1, "1 Jan, 2020")
	h := newHarness(t, []backlog.Record{rec}, 0)
	// More reviews since last time; details unchanged
	h.source.stock(1, 95, 5, "1 Jan, 2020")

	outcome, err := h.sched.RunPass(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Updated)
	assert.Equal(t, 0, h.store.Writes())

	local, err := h.local.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 95, local["A"].ReviewScore.Value())

	view := h.sched.View()
	require.Len(t, view, 1)
	assert.Equal(t, 95, view[0].ReviewScore.Value())
	assert.Equal(t, 100, view[0].ReviewCount.Value())
}

func TestRunPass_PersistedWriteKeepsLocalFieldsInView(t *testing.T) {
	h := newHarness(t, []backlog.Record{game("A", 1)}, 0)
	h.source.stock(1, 9, 1, "1 Jan, 2020")

	outcome, err := h.sched.RunPass(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Updated)
	require.Equal(t, 1, h.store.Writes())

	stored := h.store.Records()[0]
	assert.Equal(t, "1 Jan, 2020", stored.ReleaseDate.Value())
	assert.False(t, stored.ReviewScore.Fetched(), "review score never reaches the store of record")

	view := h.sched.View()[0]
	assert.Equal(t, "1 Jan, 2020", view.ReleaseDate.Value())
	assert.Equal(t, 90, view.ReviewScore.Value())
	assert.Equal(t, []string{"Indie"}, view.Genres.Value())
}

func TestRunPass_ConcurrentEditsSurvive(t *testing.T) {
	a := game("A", 1)
	b := settled("B", 2, "2 Feb, 2020")
	h := newHarness(t, []backlog.Record{a, b}, 0)
	h.source.stock(1, 9, 1, "1 Jan, 2020")
	h.source.stock(2, 9, 1, "2 Feb, 2020")

	// A user renames A and adds C while the pass is fetching
	h.store.AfterRead = func() {
		renamed := a
		renamed.Name = "Renamed"
		h.store.Put([]backlog.Record{renamed, b, game("C", 3)})
	}

	_, err := h.sched.RunPass(context.Background(), false)
	require.NoError(t, err)

	stored := h.store.Records()
	require.Len(t, stored, 3)
	assert.Equal(t, "Renamed", stored[0].Name)
	assert.Equal(t, "1 Jan, 2020", stored[0].ReleaseDate.Value())
	assert.Equal(t, "C", stored[2].ID)
}

func TestRunPass_RecordDeletedDuringPassIsDropped(t *testing.T) {
	h := newHarness(t, []backlog.Record{game("A", 1)}, 0)
	h.source.stock(1, 9, 1, "1 Jan, 2020")
	h.store.AfterRead = func() { h.store.Put([]backlog.Record{}) }

	_, err := h.sched.RunPass(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, h.store.Writes())
	assert.Empty(t, h.store.Records())
}

func TestRunPass_PersistConflictIsReported(t *testing.T) {
	h := newHarness(t, []backlog.Record{game("A", 1)}, 0)
	h.source.stock(1, 9, 1, "1 Jan, 2020")

	// Someone writes between the mutator's read and its write
	h.source.onCall = func(kind string, appID int) {
		if kind == "details" {
			h.store.AfterRead = func() { h.store.Put(h.store.Records()) }
		}
	}

	outcome, err := h.sched.RunPass(context.Background(), false)
	require.Error(t, err)
	assert.True(t, errors.IsConflictError(err))
	assert.Equal(t, 1, outcome.Updated)
	assert.Equal(t, StateIdle, h.sched.State())
}

func TestRunPass_FetchFailureContinues(t *testing.T) {
	h := newHarness(t, []backlog.Record{game("A", 1), game("B", 2), game("C", 3)}, 0)
	h.source.stock(1, 9, 1, "1 Jan, 2020")
	h.source.stock(3, 9, 1, "3 Mar, 2020")
	h.source.errs[2] = errors.NewTransientError("steam", fmt.Errorf("timeout"))

	outcome, err := h.sched.RunPass(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Updated)
	assert.Equal(t, 1, outcome.Failed)
	assert.Equal(t, "Game B", outcome.Failures[0].Name)
	assert.Equal(t, outcome.Total, outcome.Processed())
}

func TestRunPass_RateLimitEndsPass(t *testing.T) {
	h := newHarness(t, []backlog.Record{game("A", 1), game("B", 2), game("C", 3)}, 0)
	h.source.stock(1, 9, 1, "1 Jan, 2020")
	h.source.stock(3, 9, 1, "3 Mar, 2020")
	h.source.errs[2] = errors.NewRateLimitError("steam store rate limit exceeded")

	outcome, err := h.sched.RunPass(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, h.source.reviewOrder())
	assert.Equal(t, 1, outcome.Updated)
	assert.Equal(t, 1, outcome.Failed)
	assert.Equal(t, 1, outcome.Skipped)

	// What was fetched before the limit is still saved
	assert.Equal(t, "1 Jan, 2020", h.store.Records()[0].ReleaseDate.Value())
}

func TestRunPass_RecordsWithoutSteamIDAreSkipped(t *testing.T) {
	h := newHarness(t, []backlog.Record{{ID: "A", Name: "Board game"}}, 0)

	outcome, err := h.sched.RunPass(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Skipped)
	assert.Empty(t, h.source.Calls())
}

func TestRunPass_PacesRecords(t *testing.T) {
	const delay = 30 * time.Millisecond
	h := newHarness(t, []backlog.Record{game("A", 1), game("B", 2), game("C", 3)}, delay)
	for id := 1; id <= 3; id++ {
		h.source.stock(id, 9, 1, "1 Jan, 2020")
	}

	_, err := h.sched.RunPass(context.Background(), false)
	require.NoError(t, err)

	var starts []time.Time
	for _, c := range h.source.Calls() {
		if c.kind == "reviews" {
			starts = append(starts, c.at)
		}
	}
	require.Len(t, starts, 3)
	for i := 1; i < len(starts); i++ {
		// Allow a little timer slack
		assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), delay-5*time.Millisecond)
	}
}

func TestRunPass_StateDuringFetch(t *testing.T) {
	h := newHarness(t, []backlog.Record{game("A", 1)}, 0)
	h.source.stock(1, 9, 1, "1 Jan, 2020")

	var seen []State
	h.source.onCall = func(kind string, appID int) { seen = append(seen, h.sched.State()) }

	assert.Equal(t, StateIdle, h.sched.State())
	_, err := h.sched.RunPass(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []State{StateFetching, StateFetching}, seen)
	assert.Equal(t, StateIdle, h.sched.State())
}

func TestRunPass_ReadFailure(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.store.ReadErr = errors.NewTransientError("read", fmt.Errorf("connection refused"))

	_, err := h.sched.RunPass(context.Background(), false)
	require.Error(t, err)
	assert.True(t, errors.IsTransientError(err))
}

func TestNotify_Dedups(t *testing.T) {
	h := newHarness(t, nil, 0)

	rec := game("A", 1)
	h.sched.Notify([]backlog.Record{rec})
	h.sched.Notify([]backlog.Record{rec, settled("B", 2, "2 Feb, 2020")})

	assert.Len(t, h.sched.queue, 1, "queued once; enriched records are ignored")
}

func TestNotify_FastPathEnrichesNewRecord(t *testing.T) {
	h := newHarness(t, []backlog.Record{}, 0)
	h.source.stock(504230, 9, 1, "25 Jan, 2018")

	m := mutator.New(h.store, mutator.OnAdded(h.sched.Notify))

	ctx := context.Background()
	require.NoError(t, h.sched.Start(ctx))
	defer h.sched.Stop()

	_, err := m.AddRecord(ctx, mutator.NewRecord{Name: "Celeste", ExternalRef: "504230"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		records := h.store.Records()
		return len(records) == 1 && records[0].ReleaseDate.Value() == "25 Jan, 2018"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStart_RunsInitialPass(t *testing.T) {
	h := newHarness(t, []backlog.Record{game("A", 1)}, 0)
	h.source.stock(1, 9, 1, "1 Jan, 2020")
	h.sched.opts.InitialDelay = 10 * time.Millisecond

	require.NoError(t, h.sched.Start(context.Background()))
	assert.Eventually(t, func() bool { return h.store.Writes() == 1 }, 2*time.Second, 10*time.Millisecond)
	h.sched.Stop()
	assert.Equal(t, StateIdle, h.sched.State())
}

func TestWatch_NotifiesRecordsAddedElsewhere(t *testing.T) {
	h := newHarness(t, []backlog.Record{settled("A", 1, "1 Jan, 2020")}, 0)
	h.source.stock(1, 9, 1, "1 Jan, 2020")

	ctx := context.Background()
	// Nothing is watched before the first pass
	h.store.Put([]backlog.Record{settled("A", 1, "1 Jan, 2020"), game("B", 2)})
	h.sched.watch(ctx)
	assert.Empty(t, h.sched.queue)

	_, err := h.sched.RunPass(ctx, false)
	require.NoError(t, err)

	h.store.Put([]backlog.Record{settled("A", 1, "1 Jan, 2020"), game("B", 2), game("C", 3)})
	h.sched.watch(ctx)
	require.Len(t, h.sched.queue, 1)
	assert.Equal(t, "C", <-h.sched.queue)
}
