package backlog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Revision is the opaque version marker the remote host assigns on every
// successful write. The empty revision means the document does not exist.
type Revision string

// Document is the whole versioned collection.
type Document struct {
	Records  []Record
	Revision Revision
}

// Exists reports whether the document has been written at least once.
func (d Document) Exists() bool {
	return d.Revision != ""
}

// Index returns the position of the record with the given id.
func (d Document) Index(id string) (int, bool) {
	return IndexOf(d.Records, id)
}

// IndexOf returns the position of the record with the given id.
func IndexOf(records []Record, id string) (int, bool) {
	for i := range records {
		if records[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

// CloneRecords deep-copies a record slice so a transform can't mutate the
// caller's snapshot.
func CloneRecords(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// EncodeRecords serializes records for the store of record. Local-only
// enrichment fields are dropped.
func EncodeRecords(records []Record) ([]byte, error) {
	stored := make([]Record, len(records))
	for i, r := range records {
		r.Enrichment = r.Persisted()
		stored[i] = r
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode records: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeRecords parses stored content. Empty content is an empty collection.
func DecodeRecords(data []byte) ([]Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []Record{}, nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}
