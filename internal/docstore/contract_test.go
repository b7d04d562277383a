package docstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lepinkainen/backlogsync/internal/backlog"
	"github.com/lepinkainen/backlogsync/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(id, name string) backlog.Record {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return backlog.Record{
		ID:        id,
		Name:      name,
		Status:    backlog.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// testStoreContract exercises the behaviour every backend must share.
func testStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("read on absence", func(t *testing.T) {
		doc, err := store.Read(ctx)
		require.NoError(t, err)
		assert.Empty(t, doc.Records)
		assert.Empty(t, doc.Revision)
		assert.False(t, doc.Exists())
	})

	t.Run("empty label is rejected", func(t *testing.T) {
		_, err := store.Write(ctx, nil, "", "  ")
		require.Error(t, err)
		assert.True(t, errors.IsValidationError(err))
	})

	var rev backlog.Revision
	t.Run("create then read back", func(t *testing.T) {
		var err error
		rev, err = store.Write(ctx, []backlog.Record{sampleRecord("1", "Portal")}, "", `Add "Portal"`)
		require.NoError(t, err)
		require.NotEmpty(t, rev)

		doc, err := store.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, rev, doc.Revision)
		require.Len(t, doc.Records, 1)
		assert.Equal(t, "Portal", doc.Records[0].Name)
	})

	t.Run("create conflicts when document exists", func(t *testing.T) {
		_, err := store.Write(ctx, []backlog.Record{sampleRecord("2", "Braid")}, "", `Add "Braid"`)
		require.Error(t, err)
		assert.True(t, errors.IsConflictError(err))
	})

	t.Run("stale revision conflicts and leaves content untouched", func(t *testing.T) {
		newRev, err := store.Write(ctx, []backlog.Record{sampleRecord("1", "Portal 2")}, rev, `Rename "Portal"`)
		require.NoError(t, err)
		assert.NotEqual(t, rev, newRev)

		_, err = store.Write(ctx, []backlog.Record{sampleRecord("1", "Lost")}, rev, "stale write")
		require.Error(t, err)
		assert.Equal(t, errors.KindConflict, errors.Classify(err))

		doc, err := store.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, newRev, doc.Revision)
		assert.Equal(t, "Portal 2", doc.Records[0].Name)
		rev = newRev
	})

	t.Run("identical content still gets a new revision", func(t *testing.T) {
		doc, err := store.Read(ctx)
		require.NoError(t, err)
		newRev, err := store.Write(ctx, doc.Records, doc.Revision, "No-op save")
		require.NoError(t, err)
		assert.NotEqual(t, doc.Revision, newRev)
		rev = newRev
	})

	t.Run("local-only enrichment is not stored", func(t *testing.T) {
		rec := sampleRecord("1", "Portal 2")
		rec.ReviewScore = backlog.Known(97)
		rec.ReleaseDate = backlog.Known("18 Apr, 2011")

		newRev, err := store.Write(ctx, []backlog.Record{rec}, rev, `Enrich "Portal 2"`)
		require.NoError(t, err)
		rev = newRev

		doc, err := store.Read(ctx)
		require.NoError(t, err)
		assert.False(t, doc.Records[0].ReviewScore.Fetched())
		assert.Equal(t, "18 Apr, 2011", doc.Records[0].ReleaseDate.Value())
	})

	t.Run("two writers from the same revision", func(t *testing.T) {
		doc, err := store.Read(ctx)
		require.NoError(t, err)

		var wg sync.WaitGroup
		results := make([]error, 2)
		for i := range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				records := append(backlog.CloneRecords(doc.Records), sampleRecord("w"+string(rune('a'+i)), "Writer"))
				_, results[i] = store.Write(ctx, records, doc.Revision, "Concurrent add")
			}()
		}
		wg.Wait()

		var ok, conflicts int
		for _, err := range results {
			switch errors.Classify(err) {
			case errors.KindOK:
				ok++
			case errors.KindConflict:
				conflicts++
			}
		}
		assert.Equal(t, 1, ok, "exactly one writer wins")
		assert.Equal(t, 1, conflicts, "the other sees a conflict")

		after, err := store.Read(ctx)
		require.NoError(t, err)
		assert.Len(t, after.Records, len(doc.Records)+1)
	})
}
