package exporter

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardWriterBytesMatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "part_0.csv")
	w, err := NewShardWriter(path, []string{"time", "measure_value", "dev_id", "ppt_id"})
	require.NoError(t, err)

	require.NoError(t, w.Append([][]string{
		{"1564617600000", "0.031", "2M4Y4111FK", "fc096"},
		{"1564617600250", "0.032", "2M4Y4111FK", "fc096"},
	}))
	require.NoError(t, w.Append([][]string{
		{"1564617600500", "0.033", "2M4Y4111FK", "fc096"},
	}))

	assert.Equal(t, int64(3), w.Rows())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), w.BytesWritten())

	require.NoError(t, w.Close())
	require.NoError(t, w.Close()) // idempotent
}

func TestShardWriterHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	w, err := NewShardWriter(path, []string{"time", "x", "y", "z"})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "time,x,y,z\n", string(raw))
}

// RecordSize must agree byte-for-byte with what encoding/csv emits, quoting
// rules included, or shard budgets drift.
func TestRecordSizeMatchesEncodingCSV(t *testing.T) {
	records := [][]string{
		{"plain", "fields", "only"},
		{"has,comma", "x"},
		{`has"quote`, "y"},
		{"has\nnewline", "z"},
		{" leading space", "b"},
		{"", "", ""},
		{`\.`},
		{"1564617600000", "0.031", "2M4Y4111FK", "fc096"},
	}

	for _, record := range records {
		var buf bytes.Buffer
		cw := csv.NewWriter(&buf)
		require.NoError(t, cw.Write(record))
		cw.Flush()
		require.NoError(t, cw.Error())

		assert.Equal(t, int64(buf.Len()), RecordSize(record),
			"record %q", record)
	}
}

func TestChunkSize(t *testing.T) {
	chunk := [][]string{
		{"1", "0.1"},
		{"2", "0.2"},
	}
	assert.Equal(t, RecordSize(chunk[0])+RecordSize(chunk[1]), ChunkSize(chunk))
}
