package dedup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeprep/internal/sensor"
)

func testEntry() Entry {
	return Entry{
		Key: Key{
			PptID:  "fc096",
			DevID:  "2M4Y4111FK",
			Month:  "20190801_20190831",
			Stream: sensor.StreamEDA,
		},
		Counts: Counts{
			TotalRows:  1600,
			TotalDupes: 1200,
			Perfect:    200,
			Unclear:    1000,
			NaN:        300,
		},
	}
}

func TestNewLedgerModeSelectsFile(t *testing.T) {
	dir := t.TempDir()

	prod, err := NewLedger(LedgerConfig{Dir: dir, Mode: ModeProd})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "dupe_log.csv"), prod.Path())

	test, err := NewLedger(LedgerConfig{Dir: dir, Mode: ModeTest})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "dupe_log_test.csv"), test.Path())
}

func TestNewLedgerRejectsUnknownMode(t *testing.T) {
	_, err := NewLedger(LedgerConfig{Dir: t.TempDir(), Mode: Mode("staging")})
	assert.Error(t, err)
}

func TestLedgerLoadMissingFile(t *testing.T) {
	l, err := NewLedger(LedgerConfig{Dir: t.TempDir(), Mode: ModeTest})
	require.NoError(t, err)

	entries, err := l.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLedgerRecordAndReload(t *testing.T) {
	l, err := NewLedger(LedgerConfig{Dir: t.TempDir(), Mode: ModeTest})
	require.NoError(t, err)

	e := testEntry()
	require.NoError(t, l.RecordOrUpdate(e))

	entries, err := l.Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, e, entries[0])

	raw, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ppt_id,dev_id,month,stream,perfect,nan,unclear,total_rows,total_dupes", lines[0])
	assert.Equal(t, "fc096,2M4Y4111FK,20190801_20190831,eda,200,300,1000,1600,1200", lines[1])
}

// Re-running a file must not grow the ledger: the same key is overwritten
// in place with the latest counts.
func TestLedgerUpsertIsIdempotent(t *testing.T) {
	l, err := NewLedger(LedgerConfig{Dir: t.TempDir(), Mode: ModeTest})
	require.NoError(t, err)

	first := testEntry()
	require.NoError(t, l.RecordOrUpdate(first))

	second := first
	second.Counts = Counts{TotalRows: 500}
	require.NoError(t, l.RecordOrUpdate(second))

	entries, err := l.Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, second.Counts, entries[0].Counts)
}

func TestLedgerDistinctKeysAppend(t *testing.T) {
	l, err := NewLedger(LedgerConfig{Dir: t.TempDir(), Mode: ModeTest})
	require.NoError(t, err)

	e1 := testEntry()
	e2 := testEntry()
	e2.Stream = sensor.StreamTemp
	e3 := testEntry()
	e3.DevID = "OTHERDEVICE"

	require.NoError(t, l.RecordOrUpdate(e1))
	require.NoError(t, l.RecordOrUpdate(e2))
	require.NoError(t, l.RecordOrUpdate(e3))

	entries, err := l.Load()
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestLedgerErrorsCarrySentinel(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLedger(LedgerConfig{Dir: dir, Mode: ModeTest})
	require.NoError(t, err)

	// Corrupt the backing file so the read-modify-write cycle fails.
	require.NoError(t, os.WriteFile(l.Path(), []byte("not,a,ledger\nx\n"), 0644))

	err = l.RecordOrUpdate(testEntry())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLedger)
}
