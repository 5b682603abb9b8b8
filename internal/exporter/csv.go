package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// countingWriter tracks bytes written to the underlying file so shard
// rotation decisions can compare against a byte budget without stat calls.
type countingWriter struct {
	f *os.File
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.f.Write(p)
	c.n += int64(n)
	return n, err
}

// ShardWriter provides streaming CSV writing for large datasets with exact
// accounting of serialized bytes.
type ShardWriter struct {
	path   string
	count  *countingWriter
	writer *csv.Writer
	rows   int64
	closed bool
}

// NewShardWriter creates the file (and its directory), writes the header, and
// returns a writer ready for row appends.
func NewShardWriter(path string, header []string) (*ShardWriter, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	slog.Debug("Creating CSV shard writer",
		slog.String("path", path),
		slog.Int("header_count", len(header)))

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	count := &countingWriter{f: file}
	writer := csv.NewWriter(count)
	if len(header) > 0 {
		if err := writer.Write(header); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to flush header: %w", err)
		}
	}

	return &ShardWriter{path: path, count: count, writer: writer}, nil
}

// Append writes a chunk of records and flushes, so BytesWritten is exact
// after every call.
func (w *ShardWriter) Append(records [][]string) error {
	for i, record := range records {
		if err := w.writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return fmt.Errorf("failed to flush records: %w", err)
	}
	w.rows += int64(len(records))
	return nil
}

// Path returns the file being written.
func (w *ShardWriter) Path() string { return w.path }

// Rows returns the number of data rows appended (header excluded).
func (w *ShardWriter) Rows() int64 { return w.rows }

// BytesWritten returns the serialized size of the shard so far, header
// included.
func (w *ShardWriter) BytesWritten() int64 { return w.count.n }

// Close flushes and closes the underlying file. It is safe to call twice so
// callers can defer it and still close early on the happy path.
func (w *ShardWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.writer.Flush()
	flushErr := w.writer.Error()
	closeErr := w.count.f.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush shard %s: %w", w.path, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close shard %s: %w", w.path, closeErr)
	}
	return nil
}

// RecordSize returns the exact number of bytes encoding/csv will emit for the
// record, terminator included. Used to test a chunk against the shard budget
// before committing it.
func RecordSize(record []string) int64 {
	var n int64
	for i, field := range record {
		if i > 0 {
			n++ // comma
		}
		if fieldNeedsQuotes(field) {
			n += 2
			n += int64(len(field)) + int64(strings.Count(field, `"`))
		} else {
			n += int64(len(field))
		}
	}
	return n + 1 // newline
}

// ChunkSize sums RecordSize over a chunk of records.
func ChunkSize(records [][]string) int64 {
	var n int64
	for _, r := range records {
		n += RecordSize(r)
	}
	return n
}

// fieldNeedsQuotes mirrors encoding/csv's quoting rule for the default comma
// delimiter.
func fieldNeedsQuotes(field string) bool {
	if field == "" {
		return false
	}
	if field == `\.` {
		return true
	}
	if strings.ContainsAny(field, ",\"\r\n") {
		return true
	}
	r := field[0]
	return r == ' ' || r == '\t'
}
