package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lepinkainen/backlogsync/internal/backlog"
	"gopkg.in/yaml.v3"
)

// Encode renders records in format. Local-only enrichment is included, so
// an export carries everything the list command shows.
func Encode(records []backlog.Record, format Format) ([]byte, error) {
	if records == nil {
		records = []backlog.Record{}
	}
	if format == FormatCSV {
		return writeCSV(records)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}

	switch format {
	case FormatJSON:
		return append(data, '\n'), nil
	case FormatYAML:
		// Round-trip through JSON so the keys and null handling match
		var generic []any
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil, err
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported snapshot format %q", format)
	}
}

// Write saves records to path in the format its extension names. CSV keeps
// only the columns a spreadsheet needs. An existing
// file is left alone unless overwrite is set; the return value reports
// whether the file was written.
func Write(path string, records []backlog.Record, overwrite bool) (bool, error) {
	format, err := FormatOf(path)
	if err != nil {
		return false, err
	}

	if info, err := os.Stat(path); err == nil && !info.IsDir() && !overwrite {
		slog.Info("Snapshot already exists, skipping", "path", path, "overwrite", overwrite)
		return false, nil
	}

	data, err := Encode(records, format)
	if err != nil {
		return false, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("failed to write snapshot: %w", err)
	}
	slog.Info("Wrote snapshot", "path", path, "records", len(records))
	return true, nil
}
