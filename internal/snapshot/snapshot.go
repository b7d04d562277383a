// Package snapshot reads and writes backlog files. A snapshot can stand in
// for the live document as the source of a reconciliation run.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lepinkainen/backlogsync/internal/backlog"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

// FormatOf picks the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported snapshot format %q (use .json, .yaml, .yml or .csv)", filepath.Ext(path))
	}
}

// Load reads and parses the snapshot at path.
func Load(path string) ([]backlog.Record, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	records, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return records, nil
}

// Parse decodes a list of records in the document's JSON layout, or the same
// keys written as YAML.
//
// Older exports keyed entries by their numeric Steam app id. A numeric id is
// kept as the record id and, when external_ref is missing, used as the
// external reference too.
func Parse(data []byte, format Format) ([]backlog.Record, error) {
	var entries []map[string]any
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&entries); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	case FormatCSV:
		var err error
		if entries, err = readCSV(data); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported snapshot format %q", format)
	}

	for i, e := range entries {
		if e == nil {
			return nil, fmt.Errorf("entry %d is empty", i+1)
		}
		normalizeID(e)
	}

	normalized, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize snapshot: %w", err)
	}
	return backlog.DecodeRecords(normalized)
}

func normalizeID(e map[string]any) {
	var id string
	switch v := e["id"].(type) {
	case json.Number:
		id = v.String()
	case int:
		id = strconv.Itoa(v)
	case float64:
		id = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return
	}
	e["id"] = id
	if ref, _ := e["external_ref"].(string); ref == "" {
		e["external_ref"] = id
	}
}
