// Package batch streams a state's formal preferences file through the
// ballot parser.
package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/coolbeans/election2016/pkg/ballot"
)

// PreferencesColumn is the column holding the comma-separated marks.
const PreferencesColumn = "Preferences"

// Record is one ballot paper of the input.
type Record struct {
	// Index counts data records from zero, skipping the separator row.
	Index       int
	Preferences string
}

// Label names the record in errors, counting from one.
func (record Record) Label() string {
	return strconv.Itoa(record.Index + 1)
}

// RecordSource yields records in input order and io.EOF at the end.
type RecordSource interface {
	Next() (Record, error)
}

// Reader reads the AEC formal preferences CSV: a header row, an optional
// row of dashes, then one ballot paper per row.
type Reader struct {
	csvReader *csv.Reader
	column    int
	next      int
	started   bool
}

// NewReader reads the header of the preferences file.
func NewReader(input io.Reader) (*Reader, error) {
	csvReader := csv.NewReader(input)
	csvReader.ReuseRecord = true

	header, err := csvReader.Read()
	if err != nil {
		return nil, &ballot.InputError{Record: "header", Err: fmt.Errorf("failed to read preferences header: %w", err)}
	}

	column := -1
	for index, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), PreferencesColumn) {
			column = index
			break
		}
	}
	if column < 0 {
		return nil, &ballot.InputError{Record: "header", Err: fmt.Errorf("no %s column in %q", PreferencesColumn, strings.Join(header, ","))}
	}

	return &Reader{csvReader: csvReader, column: column}, nil
}

// Next returns the next ballot paper, io.EOF when the file is exhausted,
// or an *ballot.InputError when a row cannot be read.
func (reader *Reader) Next() (Record, error) {
	for {
		row, err := reader.csvReader.Read()
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		label := strconv.Itoa(reader.next + 1)
		if err != nil {
			return Record{}, &ballot.InputError{Record: label, Err: err}
		}

		if !reader.started {
			reader.started = true
			if isSeparator(row) {
				continue
			}
		}

		if reader.column >= len(row) {
			return Record{}, &ballot.InputError{Record: label, Err: fmt.Errorf("row has %d fields", len(row))}
		}
		record := Record{Index: reader.next, Preferences: row[reader.column]}
		reader.next++
		return record, nil
	}
}

func isSeparator(row []string) bool {
	for _, field := range row {
		if strings.Trim(field, "-") != "" {
			return false
		}
	}
	return len(row) > 0
}

// SliceSource serves records from memory.
type SliceSource struct {
	preferences []string
	next        int
}

// NewSliceSource returns a source over preference strings.
func NewSliceSource(preferences ...string) *SliceSource {
	return &SliceSource{preferences: preferences}
}

// Next returns the next preference string as a record.
func (source *SliceSource) Next() (Record, error) {
	if source.next >= len(source.preferences) {
		return Record{}, io.EOF
	}
	record := Record{Index: source.next, Preferences: source.preferences[source.next]}
	source.next++
	return record, nil
}

// OpenFile opens a preferences file for reading. The caller closes the
// returned file once the reader is drained.
func OpenFile(path string) (*Reader, io.Closer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open preferences file %s: %w", path, err)
	}
	reader, err := NewReader(file)
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return reader, file, nil
}
