package mutator

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/lepinkainen/backlogsync/internal/backlog"
	"github.com/lepinkainen/backlogsync/internal/errors"
)

// NewRecord is the input for AddRecord.
type NewRecord struct {
	Name        string
	Status      backlog.Status
	ExternalRef string
	CoverURL    string
}

// Patch lists the user-editable fields to change. Nil fields are left alone.
type Patch struct {
	Name        *string
	ExternalRef *string
	CoverURL    *string
}

// AddRecord appends a new record with a fresh id. A record with the same
// name (ignoring case) must not already exist.
func (m *Mutator) AddRecord(ctx context.Context, in NewRecord) (backlog.Record, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return backlog.Record{}, errors.NewValidationError("name", "name is required")
	}
	status, err := statusOrDefault(in.Status)
	if err != nil {
		return backlog.Record{}, err
	}

	now := m.now()
	rec := backlog.Record{
		ID:          m.newID(),
		Name:        name,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExternalRef: strings.TrimSpace(in.ExternalRef),
		CoverURL:    strings.TrimSpace(in.CoverURL),
	}

	_, err = m.Apply(ctx, fmt.Sprintf("Add %q", name), func(records []backlog.Record) ([]backlog.Record, error) {
		key := backlog.NormalizeName(name)
		for _, r := range records {
			if backlog.NormalizeName(r.Name) == key {
				return nil, errors.NewValidationError("name", fmt.Sprintf("%q is already in the backlog", r.Name))
			}
		}
		return append(records, rec), nil
	})
	if err != nil {
		return backlog.Record{}, err
	}
	return rec, nil
}

// UpdateRecord applies patch to the record with the given id. Changing the
// external reference clears enrichment fetched for the old one.
func (m *Mutator) UpdateRecord(ctx context.Context, id string, patch Patch) (backlog.Record, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return backlog.Record{}, errors.NewValidationError("name", "name can't be blank")
	}
	return m.modify(ctx, id, "Update %q", func(records []backlog.Record, rec *backlog.Record) error {
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			key := backlog.NormalizeName(name)
			for _, other := range records {
				if other.ID != rec.ID && backlog.NormalizeName(other.Name) == key {
					return errors.NewValidationError("name", fmt.Sprintf("%q is already in the backlog", other.Name))
				}
			}
			rec.Name = name
		}
		if patch.ExternalRef != nil {
			ref := strings.TrimSpace(*patch.ExternalRef)
			if ref != rec.ExternalRef {
				rec.ExternalRef = ref
				rec.Enrichment = backlog.Enrichment{}
			}
		}
		if patch.CoverURL != nil {
			rec.CoverURL = strings.TrimSpace(*patch.CoverURL)
		}
		return nil
	})
}

// SetStatus moves a record to another backlog bucket.
func (m *Mutator) SetStatus(ctx context.Context, id string, status backlog.Status) (backlog.Record, error) {
	status, err := backlog.ParseStatus(string(status))
	if err != nil {
		return backlog.Record{}, err
	}
	return m.modify(ctx, id, "Set status of %q to "+string(status), func(_ []backlog.Record, rec *backlog.Record) error {
		rec.Status = status
		return nil
	})
}

// SetPinned pins or unpins a record.
func (m *Mutator) SetPinned(ctx context.Context, id string, pinned bool) (backlog.Record, error) {
	format := "Pin %q"
	if !pinned {
		format = "Unpin %q"
	}
	return m.modify(ctx, id, format, func(_ []backlog.Record, rec *backlog.Record) error {
		rec.Pinned = pinned
		return nil
	})
}

// RemoveRecord deletes a record from the collection.
func (m *Mutator) RemoveRecord(ctx context.Context, id string) (backlog.Record, error) {
	var removed backlog.Record
	label := func() string { return fmt.Sprintf("Remove %q", removed.Name) }
	_, err := m.apply(ctx, label, func(records []backlog.Record) ([]backlog.Record, error) {
		i, ok := backlog.IndexOf(records, id)
		if !ok {
			return nil, errors.NewNotFoundError("record " + id)
		}
		removed = records[i]
		return append(records[:i], records[i+1:]...), nil
	})
	if err != nil {
		return backlog.Record{}, err
	}
	return removed, nil
}

// modify runs fn against the record with the given id and bumps its
// UpdatedAt. labelFormat receives the record's name after the change.
func (m *Mutator) modify(ctx context.Context, id, labelFormat string, fn func([]backlog.Record, *backlog.Record) error) (backlog.Record, error) {
	var updated backlog.Record
	label := func() string { return fmt.Sprintf(labelFormat, updated.Name) }
	_, err := m.apply(ctx, label, func(records []backlog.Record) ([]backlog.Record, error) {
		i, ok := backlog.IndexOf(records, id)
		if !ok {
			return nil, errors.NewNotFoundError("record " + id)
		}
		if err := fn(records, &records[i]); err != nil {
			return nil, err
		}
		records[i].UpdatedAt = m.now()
		updated = records[i]
		return records, nil
	})
	if err != nil {
		return backlog.Record{}, err
	}
	return updated, nil
}

var errNothingNew = stdErrors.New("nothing new to import")

// ImportRecords appends every entry that is not already in the backlog,
// matching on external reference first and then on name. All new records go
// out in one write; when nothing is new no write is made.
func (m *Mutator) ImportRecords(ctx context.Context, source string, in []NewRecord) ([]backlog.Record, error) {
	statuses := make([]backlog.Status, len(in))
	for i, entry := range in {
		status, err := statusOrDefault(entry.Status)
		if err != nil {
			return nil, err
		}
		statuses[i] = status
	}

	now := m.now()
	var added []backlog.Record

	_, err := m.apply(ctx, func() string {
		return fmt.Sprintf("Import %d games from %s", len(added), source)
	}, func(records []backlog.Record) ([]backlog.Record, error) {
		added = nil
		refs := make(map[string]struct{}, len(records))
		names := make(map[string]struct{}, len(records))
		for _, r := range records {
			if r.ExternalRef != "" {
				refs[r.ExternalRef] = struct{}{}
			}
			names[backlog.NormalizeName(r.Name)] = struct{}{}
		}

		for i, entry := range in {
			name := strings.TrimSpace(entry.Name)
			ref := strings.TrimSpace(entry.ExternalRef)
			if name == "" {
				continue
			}
			if _, ok := refs[ref]; ok && ref != "" {
				continue
			}
			key := backlog.NormalizeName(name)
			if _, ok := names[key]; ok {
				continue
			}
			rec := backlog.Record{
				ID:          m.newID(),
				Name:        name,
				Status:      statuses[i],
				CreatedAt:   now,
				UpdatedAt:   now,
				ExternalRef: ref,
				CoverURL:    strings.TrimSpace(entry.CoverURL),
			}
			if ref != "" {
				refs[ref] = struct{}{}
			}
			names[key] = struct{}{}
			added = append(added, rec)
		}

		if len(added) == 0 {
			return nil, errNothingNew
		}
		return append(records, added...), nil
	})
	if stdErrors.Is(err, errNothingNew) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return added, nil
}

// statusOrDefault validates status, defaulting an empty one to queued, and
// returns its canonical form.
func statusOrDefault(status backlog.Status) (backlog.Status, error) {
	if status == "" {
		return backlog.StatusQueued, nil
	}
	return backlog.ParseStatus(string(status))
}
