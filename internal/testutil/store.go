package testutil

import (
	"context"
	"strconv"
	"sync"

	"github.com/lepinkainen/backlogsync/internal/backlog"
	"github.com/lepinkainen/backlogsync/internal/errors"
)

// MemoryStore is an in-memory document store with compare-and-swap
// semantics. AfterRead, if set, runs once right after the next Read
// returns its snapshot, which lets tests slip in a concurrent writer.
type MemoryStore struct {
	mu       sync.Mutex
	records  []backlog.Record
	revision int
	labels   []string
	reads    int
	writes   int

	AfterRead func()
	// ReadErr and WriteErr, if set, are returned instead of doing the work
	ReadErr  error
	WriteErr error
}

// NewMemoryStore returns a store holding records. A nil slice means the
// document doesn't exist yet.
func NewMemoryStore(records []backlog.Record) *MemoryStore {
	s := &MemoryStore{}
	if records != nil {
		s.records = backlog.CloneRecords(records)
		s.revision = 1
	}
	return s
}

func (s *MemoryStore) currentRevision() backlog.Revision {
	if s.revision == 0 {
		return ""
	}
	return backlog.Revision("r" + strconv.Itoa(s.revision))
}

// Read implements docstore.Store.
func (s *MemoryStore) Read(ctx context.Context) (backlog.Document, error) {
	s.mu.Lock()
	s.reads++
	if s.ReadErr != nil {
		err := s.ReadErr
		s.mu.Unlock()
		return backlog.Document{}, err
	}
	doc := backlog.Document{Records: backlog.CloneRecords(s.records), Revision: s.currentRevision()}
	if doc.Records == nil {
		doc.Records = []backlog.Record{}
	}
	hook := s.AfterRead
	s.AfterRead = nil
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return doc, nil
}

// Write implements docstore.Store.
func (s *MemoryStore) Write(ctx context.Context, records []backlog.Record, rev backlog.Revision, label string) (backlog.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if label == "" {
		return "", errors.NewValidationError("label", "every write needs a change label")
	}
	if s.WriteErr != nil {
		return "", s.WriteErr
	}
	if rev != s.currentRevision() {
		return "", errors.NewConflictError("memory", string(rev), "")
	}

	// Mirror the real codec: local-only fields are not stored
	stored := backlog.CloneRecords(records)
	for i := range stored {
		stored[i].Enrichment = stored[i].Persisted()
	}
	s.records = stored
	s.revision++
	s.writes++
	s.labels = append(s.labels, label)
	return s.currentRevision(), nil
}

// Put replaces the stored content as another writer would.
func (s *MemoryStore) Put(records []backlog.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = backlog.CloneRecords(records)
	s.revision++
}

// Records returns a copy of the stored records.
func (s *MemoryStore) Records() []backlog.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return backlog.CloneRecords(s.records)
}

// Labels returns the labels of all successful writes, oldest first.
func (s *MemoryStore) Labels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.labels...)
}

// Reads returns how many times Read was called.
func (s *MemoryStore) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Writes returns how many writes succeeded.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
