package exporter

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"timeprep/internal/dedup"
	"timeprep/internal/sensor"
)

func TestWriteLedgerWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger", "dupe_log.xlsx")

	entries := []dedup.Entry{
		{
			Key: dedup.Key{
				PptID: "fc096", DevID: "2M4Y4111FK",
				Month: "20190801_20190831", Stream: sensor.StreamEDA,
			},
			Counts: dedup.Counts{
				TotalRows: 1600, TotalDupes: 1200,
				Perfect: 200, Unclear: 1000, NaN: 300,
			},
		},
		{
			Key: dedup.Key{
				PptID: "mgh014", DevID: "AAAA111122",
				Month: "20190801_20190831", Stream: sensor.StreamACC,
			},
			Counts: dedup.Counts{TotalRows: 10},
		},
	}
	require.NoError(t, WriteLedgerWorkbook(path, entries))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("duplicates")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{
		"ppt_id", "dev_id", "month", "stream",
		"perfect", "nan", "unclear", "total_rows", "total_dupes",
	}, rows[0])
	assert.Equal(t, []string{
		"fc096", "2M4Y4111FK", "20190801_20190831", "eda",
		"200", "300", "1000", "1600", "1200",
	}, rows[1])
	assert.Equal(t, "mgh014", rows[2][0])
}

func TestWriteLedgerWorkbookEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dupe_log.xlsx")
	require.NoError(t, WriteLedgerWorkbook(path, nil))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("duplicates")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
