package mutator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lepinkainen/backlogsync/internal/backlog"
	"github.com/lepinkainen/backlogsync/internal/docstore"
	"github.com/lepinkainen/backlogsync/internal/errors"
	"github.com/lepinkainen/backlogsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
}

func newTestMutator(store docstore.Store, opts ...Option) *Mutator {
	n := 0
	opts = append([]Option{
		WithClock(fixedClock),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	}, opts...)
	return New(store, opts...)
}

func TestApply_WritesWithObservedRevision(t *testing.T) {
	store := testutil.NewMemoryStore(nil)
	m := newTestMutator(store)

	doc, err := m.Apply(context.Background(), "Seed", func(records []backlog.Record) ([]backlog.Record, error) {
		return append(records, backlog.Record{ID: "a", Name: "Portal"}), nil
	})
	require.NoError(t, err)
	assert.Equal(t, backlog.Revision("r1"), doc.Revision)
	assert.Len(t, doc.Records, 1)
	assert.Equal(t, 1, store.Reads())
	assert.Equal(t, 1, store.Writes())
}

func TestApply_ConflictLeavesStoreUnchanged(t *testing.T) {
	store := testutil.NewMemoryStore(nil)
	m := newTestMutator(store)
	ctx := context.Background()

	_, err := m.Apply(ctx, "Seed", func(records []backlog.Record) ([]backlog.Record, error) {
		return []backlog.Record{{ID: "a", Name: "Portal"}}, nil
	})
	require.NoError(t, err)

	// Another writer commits between our read and our write
	store.AfterRead = func() {
		_, err := store.Write(ctx, []backlog.Record{{ID: "a", Name: "Portal"}, {ID: "b", Name: "Braid"}}, "r1", "Other writer")
		require.NoError(t, err)
	}

	_, err = m.Apply(ctx, "Lose the race", func(records []backlog.Record) ([]backlog.Record, error) {
		return nil, nil
	})
	require.Error(t, err)
	assert.True(t, errors.IsConflictError(err))
	assert.Equal(t, errors.KindConflict, errors.Classify(err))

	// The other writer's content survives; ours was discarded
	assert.Len(t, store.Records(), 2)
	assert.Equal(t, []string{"Seed", "Other writer"}, store.Labels())
	assert.Equal(t, 2, store.Writes())
}

func TestApply_TransformErrorSkipsWrite(t *testing.T) {
	store := testutil.NewMemoryStore(nil)
	m := newTestMutator(store)

	_, err := m.Apply(context.Background(), "Abort", func(records []backlog.Record) ([]backlog.Record, error) {
		return nil, errors.NewValidationError("name", "bad")
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
	assert.Equal(t, 0, store.Writes())
}

func TestApply_TransformGetsPrivateCopy(t *testing.T) {
	store := testutil.NewMemoryStore([]backlog.Record{{ID: "a", Name: "Portal"}})
	m := newTestMutator(store)

	_, err := m.Apply(context.Background(), "Abort after mutating", func(records []backlog.Record) ([]backlog.Record, error) {
		records[0].Name = "Changed"
		return nil, errors.NewValidationError("", "abort")
	})
	require.Error(t, err)
	assert.Equal(t, "Portal", store.Records()[0].Name)
}

func TestApply_OnAddedSeesAppendedRecords(t *testing.T) {
	store := testutil.NewMemoryStore([]backlog.Record{{ID: "a", Name: "Portal"}})
	var added []backlog.Record
	m := newTestMutator(store, OnAdded(func(records []backlog.Record) { added = records }))

	_, err := m.AddRecord(context.Background(), NewRecord{Name: "Celeste", ExternalRef: "504230"})
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, "Celeste", added[0].Name)
}

func TestApply_TwoWritersAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewSQLite(filepath.Join(t.TempDir(), "backlog.db"), "backlog")
	require.NoError(t, store.Connect())
	defer func() { _ = store.Close() }()

	seed := newTestMutator(store)
	_, err := seed.AddRecord(ctx, NewRecord{Name: "Portal"})
	require.NoError(t, err)

	// Both writers read the same revision before either writes
	ready := make(chan struct{})
	var read, wg sync.WaitGroup
	read.Add(2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := New(store)
			_, errs[i] = m.Apply(ctx, fmt.Sprintf("Writer %d", i), func(records []backlog.Record) ([]backlog.Record, error) {
				read.Done()
				<-ready
				return append(records, backlog.Record{ID: fmt.Sprintf("w%d", i), Name: fmt.Sprintf("Game %d", i)}), nil
			})
		}()
	}
	read.Wait()
	close(ready)
	wg.Wait()

	kinds := []errors.Kind{errors.Classify(errs[0]), errors.Classify(errs[1])}
	assert.ElementsMatch(t, []errors.Kind{errors.KindOK, errors.KindConflict}, kinds)

	doc, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Records, 2)
}
