package sensor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseStream(t *testing.T) {
	for _, name := range []string{"acc", "EDA", " temp "} {
		s, err := ParseStream(name)
		require.NoError(t, err)
		assert.NotEmpty(t, s)
	}
	_, err := ParseStream("hr")
	assert.Error(t, err)
}

func TestStreamFromPath(t *testing.T) {
	s, err := StreamFromPath("staging/sensors_20190801_20190831/U02/FC/096/2M4Y4111FK/temp.csv")
	require.NoError(t, err)
	assert.Equal(t, StreamTemp, s)

	_, err = StreamFromPath("somewhere/readme.txt")
	assert.Error(t, err)
}

func TestStreamHeaders(t *testing.T) {
	assert.Equal(t, []string{"time", "x", "y", "z"}, StreamACC.Header())
	assert.Equal(t, []string{"time", "measure_value"}, StreamEDA.Header())
	assert.Equal(t, []string{"time", "measure_value", "dev_id", "ppt_id"}, StreamTemp.CombinedHeader())
	assert.Equal(t, []string{"time", "x", "y", "z", "dev_id", "ppt_id"}, StreamACC.CombinedHeader())
}

func TestIsNull(t *testing.T) {
	assert.True(t, IsNull(""))
	assert.True(t, IsNull("  "))
	assert.True(t, IsNull("NaN"))
	assert.True(t, IsNull("nan"))
	assert.False(t, IsNull("0.0"))
	assert.False(t, IsNull("-0.0"))
}

func TestReadTable(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "eda.csv",
		"time,measure_value\n1564617600000,0.031\n1564617600250,NaN\n")

	table, err := ReadTable(path, StreamEDA)
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "1564617600000", table.Rows[0].Time)
	assert.Equal(t, []string{"0.031"}, table.Rows[0].Values)
	assert.Equal(t, "NaN", table.Rows[1].Primary())
}

func TestReadTableColumnMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "acc.csv",
		"time,x,y\n1564617600000,0.1,0.2\n")

	_, err := ReadTable(path, StreamACC)
	require.Error(t, err)
}

func TestWriteTableRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acc.csv")

	in := &Table{
		Stream: StreamACC,
		Rows: []Record{
			{Time: "1", Values: []string{"0.1", "0.2", "0.3"}},
			{Time: "2", Values: []string{"-0.4", "0.5", "0.6"}},
		},
	}
	require.NoError(t, WriteTable(path, in))

	out, err := ReadTable(path, StreamACC)
	require.NoError(t, err)
	assert.Equal(t, in.Rows, out.Rows)
}

func TestWriteTableReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "temp.csv",
		"time,measure_value\n1,30.1\n2,30.2\n3,30.3\n")

	require.NoError(t, WriteTable(path, &Table{
		Stream: StreamTemp,
		Rows:   []Record{{Time: "1", Values: []string{"30.1"}}},
	}))

	out, err := ReadTable(path, StreamTemp)
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)

	// no temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
