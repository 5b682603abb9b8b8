package dedup

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"timeprep/internal/sensor"
)

// ErrLedger marks ledger persistence failures. The ledger is the audit
// contract for the whole run, so callers treat any error carrying this
// sentinel as fatal rather than skipping to the next file.
var ErrLedger = errors.New("duplicate ledger write failed")

// Mode selects which ledger file a run writes to, so test runs never touch
// the production audit trail. The mode is explicit configuration; it is never
// inferred from path substrings.
type Mode string

const (
	ModeProd Mode = "prod"
	ModeTest Mode = "test"
)

const (
	prodLedgerFile = "dupe_log.csv"
	testLedgerFile = "dupe_log_test.csv"
)

// LedgerConfig names the directory holding the ledger file and the run mode.
type LedgerConfig struct {
	Dir  string
	Mode Mode
}

// Key identifies one ledger entry.
type Key struct {
	PptID  string
	DevID  string
	Month  string
	Stream sensor.Stream
}

// Entry is one row of the ledger: a key plus its classification counts.
type Entry struct {
	Key
	Counts
}

// ledgerHeader is the persisted column order.
var ledgerHeader = []string{
	"ppt_id", "dev_id", "month", "stream",
	"perfect", "nan", "unclear", "total_rows", "total_dupes",
}

// Ledger is the durable, keyed duplicate-handling log. Upserts are
// read-modify-write over the whole file; the file stays small (one row per
// participant/device/month/stream) so rewriting it keeps the mapping
// invariant trivially true.
type Ledger struct {
	mu   sync.Mutex
	path string
}

// NewLedger creates a ledger backed by the mode-appropriate file under
// cfg.Dir, creating the directory if needed.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Mode != ModeProd && cfg.Mode != ModeTest {
		return nil, fmt.Errorf("invalid ledger mode %q", cfg.Mode)
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create ledger directory %s: %w", cfg.Dir, err)
	}
	name := prodLedgerFile
	if cfg.Mode == ModeTest {
		name = testLedgerFile
	}
	return &Ledger{path: filepath.Join(cfg.Dir, name)}, nil
}

// Path returns the backing file path.
func (l *Ledger) Path() string { return l.path }

// Load reads every entry currently persisted. A missing file is an empty
// ledger, not an error.
func (l *Ledger) Load() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

func (l *Ledger) load() ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ledger %s: %w", l.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(ledgerHeader)
	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ledger header %s: %w", l.path, err)
	}

	var entries []Entry
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read ledger %s: %w", l.path, err)
		}
		e, err := entryFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("ledger %s: %w", l.path, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// RecordOrUpdate upserts the entry: an existing row with the same key is
// overwritten in place, otherwise the entry is appended. Calling it twice for
// the same key leaves exactly one row holding the second call's counts.
func (l *Ledger) RecordOrUpdate(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedger, err)
	}

	replaced := false
	for i := range entries {
		if entries[i].Key == e.Key {
			entries[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, e)
	}

	if err := l.write(entries); err != nil {
		return fmt.Errorf("%w: %v", ErrLedger, err)
	}
	return nil
}

// write replaces the ledger file atomically.
func (l *Ledger) write(entries []Entry) error {
	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp ledger in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	w := csv.NewWriter(tmp)
	writeErr := w.Write(ledgerHeader)
	if writeErr == nil {
		for _, e := range entries {
			if writeErr = w.Write(e.row()); writeErr != nil {
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
		return fmt.Errorf("write ledger %s: %w", l.path, writeErr)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace ledger %s: %w", l.path, err)
	}
	return nil
}

func (e Entry) row() []string {
	return []string{
		e.PptID, e.DevID, e.Month, string(e.Stream),
		strconv.Itoa(e.Perfect), strconv.Itoa(e.NaN), strconv.Itoa(e.Unclear),
		strconv.Itoa(e.TotalRows), strconv.Itoa(e.TotalDupes),
	}
}

func entryFromRow(row []string) (Entry, error) {
	stream, err := sensor.ParseStream(row[3])
	if err != nil {
		return Entry{}, err
	}
	ints := make([]int, 5)
	for i, raw := range row[4:9] {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Entry{}, fmt.Errorf("column %s: %w", ledgerHeader[4+i], err)
		}
		ints[i] = n
	}
	return Entry{
		Key: Key{PptID: row[0], DevID: row[1], Month: row[2], Stream: stream},
		Counts: Counts{
			Perfect: ints[0], NaN: ints[1], Unclear: ints[2],
			TotalRows: ints[3], TotalDupes: ints[4],
		},
	}, nil
}
