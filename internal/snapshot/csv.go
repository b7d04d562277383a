package snapshot

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lepinkainen/backlogsync/internal/backlog"
)

// csvColumns are the columns a CSV snapshot may carry. Only name is required.
var csvColumns = []string{"id", "name", "status", "pinned", "external_ref", "cover_url", "release_date"}

// readCSV turns CSV rows into generic entries keyed by the header row. Empty
// cells are left out so the record keeps its defaults.
func readCSV(data []byte) ([]map[string]any, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}
	if !containsColumn(header, "name") {
		return nil, fmt.Errorf("CSV header has no name column")
	}
	// Every row must match the header width
	reader.FieldsPerRecord = len(header)

	var entries []map[string]any
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid CSV row %d: %w", line, err)
		}

		entry := map[string]any{}
		for i, cell := range row {
			cell = strings.TrimSpace(cell)
			if cell == "" || !containsColumn(csvColumns, header[i]) {
				continue
			}
			if header[i] == "pinned" {
				pinned, err := strconv.ParseBool(cell)
				if err != nil {
					return nil, fmt.Errorf("invalid CSV row %d: pinned: %w", line, err)
				}
				entry["pinned"] = pinned
				continue
			}
			entry[header[i]] = cell
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func writeCSV(records []backlog.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvColumns); err != nil {
		return nil, err
	}
	for _, r := range records {
		row := []string{
			r.ID,
			r.Name,
			string(r.Status),
			strconv.FormatBool(r.Pinned),
			r.ExternalRef,
			r.CoverURL,
			r.ReleaseDate.Value(),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write CSV: %w", err)
	}
	return buf.Bytes(), nil
}

func containsColumn(columns []string, name string) bool {
	for _, c := range columns {
		if c == name {
			return true
		}
	}
	return false
}
