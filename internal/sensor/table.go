package sensor

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Record is one row of a stream file. Time and measurement values are kept as
// the strings read from disk: classification compares textual identity, and
// round-tripping through float parsing would manufacture or destroy
// distinctions the sensor never made.
type Record struct {
	Time   string
	Values []string
}

// Table holds every row of one per-device stream file.
type Table struct {
	Stream Stream
	Rows   []Record
}

// IsNull reports whether a measurement value represents a missing reading.
// Raw exports encode missing values as an empty field or a literal NaN token.
func IsNull(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, "nan")
}

// Primary returns the primary measurement of the record (the x column for
// accelerometer rows, the single measure value otherwise).
func (r Record) Primary() string {
	if len(r.Values) == 0 {
		return ""
	}
	return r.Values[0]
}

// ReadTable loads a per-device stream file into memory. The header row is
// validated against the stream's expected column count; files are small
// enough (one device, one month) that whole-file loading is acceptable here,
// unlike the combine step which must stay chunked.
func ReadTable(path string, stream Stream) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(stream.Header())

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	if len(header) != len(stream.Header()) {
		return nil, fmt.Errorf("%s: expected %d columns for stream %s, got %d",
			path, len(stream.Header()), stream, len(header))
	}

	t := &Table{Stream: stream}
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		rec := Record{Time: row[0], Values: make([]string, len(row)-1)}
		copy(rec.Values, row[1:])
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// WriteTable persists a table back to path via a temp-file rename so a crash
// mid-write never leaves a half-rewritten stream file behind.
func WriteTable(path string, t *Table) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	w := csv.NewWriter(tmp)
	writeErr := w.Write(t.Stream.Header())
	if writeErr == nil {
		row := make([]string, 0, len(t.Stream.Header()))
		for _, rec := range t.Rows {
			row = row[:0]
			row = append(row, rec.Time)
			row = append(row, rec.Values...)
			if writeErr = w.Write(row); writeErr != nil {
				break
			}
		}
	}
	w.Flush()
	if writeErr == nil {
		writeErr = w.Error()
	}
	if closeErr := tmp.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", path, writeErr)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
