// Package docstore reads and writes the single versioned backlog document.
//
// Every backend offers the same contract: Read returns the current records
// and their revision (an absent document is empty, not an error), and Write
// succeeds only if the presented revision still matches the stored one.
// Nothing in this package retries; that is the caller's decision.
package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/lepinkainen/backlogsync/internal/backlog"
	"github.com/lepinkainen/backlogsync/internal/errors"
)

// Store is the document store client contract.
type Store interface {
	// Read returns the current document. A document that was never written
	// is returned empty with no revision.
	Read(ctx context.Context) (backlog.Document, error)

	// Write replaces the document content if rev is still current and
	// returns the new revision. An empty rev creates the document. A stale
	// rev fails with *errors.ConflictError and nothing is written. label is
	// a short human-readable description of the change, kept as an audit
	// trail by the host.
	Write(ctx context.Context, records []backlog.Record, rev backlog.Revision, label string) (backlog.Revision, error)
}

// Backend is a Store that holds resources until closed.
type Backend interface {
	Store

	// Name identifies the backend in logs
	Name() string

	// Close releases connections held by the backend
	Close() error
}

func checkLabel(label string) error {
	if strings.TrimSpace(label) == "" {
		return errors.NewValidationError("label", "every write needs a change label")
	}
	return nil
}

// chainRevision derives a new revision from the previous one and the new
// content, so writing identical content twice still yields a new revision.
func chainRevision(prev backlog.Revision, content []byte) backlog.Revision {
	h := sha256.New()
	h.Write([]byte(prev))
	h.Write([]byte{0})
	h.Write(content)
	return backlog.Revision(hex.EncodeToString(h.Sum(nil))[:40])
}
