// Package csvutil loads and saves header-based CSV files as row maps.
package csvutil

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// Load reads a CSV file with a header row and returns one map per data
// row, keyed by the trimmed header names. Blank rows are skipped; rows
// whose column count does not match the header are logged and skipped.
func Load(path string, logger *slog.Logger) ([]map[string]string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // row widths are validated against the header below

	var (
		header []string
		rows   []map[string]string
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv %s: %w", path, err)
		}
		if blank(rec) {
			continue
		}
		if header == nil {
			header = make([]string, len(rec))
			for i, h := range rec {
				header[i] = strings.TrimSpace(h)
			}
			continue
		}
		if len(rec) != len(header) {
			logger.Warn("skipping row with mismatched column count",
				"path", path, "columns", len(rec), "want", len(header))
			continue
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			row[h] = rec[i]
		}
		rows = append(rows, row)
	}
	if header == nil {
		return nil, fmt.Errorf("csv %s: missing header row", path)
	}

	logger.Info("loaded csv", "path", path, "rows", len(rows))
	return rows, nil
}

// Save writes rows as CSV with the given header order. When headers is
// nil, the sorted keys of the first row are used. Saving zero rows is a
// no-op.
func Save(path string, headers []string, rows []map[string]string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if len(rows) == 0 {
		logger.Warn("no data to save", "path", path)
		return nil
	}
	if headers == nil {
		for h := range rows[0] {
			headers = append(headers, h)
		}
		sort.Strings(headers)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	rec := make([]string, len(headers))
	for _, row := range rows {
		for i, h := range headers {
			rec[i] = row[h]
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	logger.Info("saved csv", "path", path, "rows", len(rows))
	return nil
}

func blank(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
