package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrEmptyInput is returned when no CSV text was supplied.
	ErrEmptyInput = errors.New("no CSV data provided")
	// ErrNoHeader is returned when the text has no header row.
	ErrNoHeader = errors.New("CSV data has no header row")
)

// Parse parses comma-delimited export text into a Dataset.
//
// The first row is the header. Ragged rows are accepted: missing cells are
// absent fields and surplus cells are ignored. Columns outside the
// vocabulary are kept in Headers but not in the records.
func Parse(text, label string) (*Dataset, error) {
	text = strings.TrimPrefix(text, "\ufeff")
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	return ParseReader(strings.NewReader(text), label)
}

// ParseReader parses export data from r.
func ParseReader(r io.Reader, label string) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	ds := &Dataset{Label: label}
	columns := make([]Field, len(header))
	seen := make(map[Field]bool)
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		ds.Headers = append(ds.Headers, h)
		f, ok := MatchField(h)
		if !ok || seen[f] {
			continue
		}
		columns[i] = f
		seen[f] = true
		ds.FieldNames = append(ds.FieldNames, f)
	}
	if len(ds.FieldNames) == 0 && allBlank(header) {
		return nil, ErrNoHeader
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", len(ds.Records)+2, err)
		}
		if len(row) != len(header) {
			ds.Ragged++
		}
		rec := make(Record, len(ds.FieldNames))
		for i, cell := range row {
			if i >= len(columns) || columns[i] == "" {
				continue
			}
			if v, ok := coerce(cell); ok {
				rec[columns[i]] = v
			}
		}
		ds.Records = append(ds.Records, rec)
	}

	return ds, nil
}

// ParseFile reads and parses a CSV export. An empty label defaults to the
// file name without its extension.
func ParseFile(path, label string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if label == "" {
		label = LabelFromFilename(path)
	}
	ds, err := Parse(string(data), label)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return ds, nil
}

// LabelFromFilename derives a dataset label from an upload's file name.
func LabelFromFilename(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func allBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
