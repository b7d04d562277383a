// Package mutator applies collection transforms to the document store as a
// single read-then-conditional-write attempt.
package mutator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lepinkainen/backlogsync/internal/backlog"
	"github.com/lepinkainen/backlogsync/internal/docstore"
)

// Transform computes the new collection from the current one. It receives a
// private copy and may modify it freely. Returning an error aborts the
// mutation before anything is written.
type Transform func(records []backlog.Record) ([]backlog.Record, error)

// Mutator turns transforms into compare-and-swap writes. It never retries:
// a lost race surfaces as *errors.ConflictError and the caller decides.
type Mutator struct {
	store   docstore.Store
	now     func() time.Time
	newID   func() string
	onAdded func([]backlog.Record)
}

// Option configures a Mutator.
type Option func(*Mutator)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Mutator) { m.now = now }
}

// WithIDGenerator overrides record id assignment.
func WithIDGenerator(newID func() string) Option {
	return func(m *Mutator) { m.newID = newID }
}

// OnAdded registers a callback invoked with the records a successful write
// appended to the collection.
func OnAdded(fn func([]backlog.Record)) Option {
	return func(m *Mutator) { m.onAdded = fn }
}

// New creates a Mutator writing to store.
func New(store docstore.Store, opts ...Option) *Mutator {
	m := &Mutator{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Apply reads the current document, runs transform on a copy of its records
// and writes the result back conditioned on the revision that was read.
// Exactly one read and at most one write are made.
func (m *Mutator) Apply(ctx context.Context, label string, transform Transform) (backlog.Document, error) {
	return m.apply(ctx, func() string { return label }, transform)
}

// apply is Apply with a label computed after the transform ran, so intents
// can name the record they touched.
func (m *Mutator) apply(ctx context.Context, labelFn func() string, transform Transform) (backlog.Document, error) {
	doc, err := m.store.Read(ctx)
	if err != nil {
		return backlog.Document{}, err
	}

	next, err := transform(backlog.CloneRecords(doc.Records))
	if err != nil {
		slog.Debug("Mutation aborted", "error", err)
		return backlog.Document{}, err
	}
	if next == nil {
		next = []backlog.Record{}
	}
	label := labelFn()

	rev, err := m.store.Write(ctx, next, doc.Revision, label)
	if err != nil {
		slog.Debug("Mutation write failed", "label", label, "revision", doc.Revision, "error", err)
		return backlog.Document{}, err
	}
	slog.Debug("Mutation applied", "label", label, "revision", rev, "records", len(next))

	if m.onAdded != nil {
		if added := appended(doc.Records, next); len(added) > 0 {
			m.onAdded(added)
		}
	}

	return backlog.Document{Records: next, Revision: rev}, nil
}

// appended returns the records in after whose ids were not in before.
func appended(before, after []backlog.Record) []backlog.Record {
	seen := make(map[string]struct{}, len(before))
	for _, r := range before {
		seen[r.ID] = struct{}{}
	}
	var added []backlog.Record
	for _, r := range after {
		if _, ok := seen[r.ID]; !ok {
			added = append(added, r.Clone())
		}
	}
	return added
}
