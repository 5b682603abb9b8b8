package combine

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeprep/internal/sensor"
)

func combinedInput(t *testing.T, dir, name string, stream sensor.Stream, rows [][]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	w := csv.NewWriter(f)
	require.NoError(t, w.Write(stream.CombinedHeader()))
	require.NoError(t, w.WriteAll(rows))
	require.NoError(t, f.Close())
	return path
}

func edaRows(times ...string) [][]string {
	var rows [][]string
	for _, ts := range times {
		rows = append(rows, []string{ts, "0.1", "DEV1", "fc096"})
	}
	return rows
}

func TestRecombineNoInputs(t *testing.T) {
	r := NewRecombiner(t.TempDir(), 0, 0, nil)
	shards, err := r.Recombine(context.Background(), nil, sensor.StreamEDA)
	require.NoError(t, err)
	assert.Nil(t, shards)
}

func TestRecombineSingleInputIsByteCopy(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	input := combinedInput(t, in, "part_0.csv", sensor.StreamEDA, edaRows("1", "2"))

	r := NewRecombiner(out, 0, 0, nil)
	shards, err := r.Recombine(context.Background(), []string{input}, sensor.StreamEDA)
	require.NoError(t, err)
	require.Len(t, shards, 1)
	assert.Equal(t, filepath.Join(out, "eda", "eda_combined_0.csv"), shards[0])

	want, err := os.ReadFile(input)
	require.NoError(t, err)
	got, err := os.ReadFile(shards[0])
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRecombineSingleInputOverBudget(t *testing.T) {
	in := t.TempDir()
	input := combinedInput(t, in, "part_0.csv", sensor.StreamEDA, edaRows("1", "2", "3"))

	r := NewRecombiner(t.TempDir(), 16, 0, nil)
	_, err := r.Recombine(context.Background(), []string{input}, sensor.StreamEDA)
	assert.ErrorIs(t, err, ErrChunkTooLarge)
}

func TestRecombineMergesWithinBudget(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	inputs := []string{
		combinedInput(t, in, "part_0.csv", sensor.StreamEDA, edaRows("1", "2")),
		combinedInput(t, in, "part_1.csv", sensor.StreamEDA, edaRows("3")),
		combinedInput(t, in, "part_2.csv", sensor.StreamEDA, edaRows("4", "5")),
	}

	r := NewRecombiner(out, 0, 0, nil)
	shards, err := r.Recombine(context.Background(), inputs, sensor.StreamEDA)
	require.NoError(t, err)
	require.Len(t, shards, 1)

	rows := readAll(t, shards[0])
	require.Len(t, rows, 6)
	assert.Equal(t, sensor.StreamEDA.CombinedHeader(), rows[0])
	// Every input row survives, in sorted-input order.
	for i, want := range []string{"1", "2", "3", "4", "5"} {
		assert.Equal(t, want, rows[i+1][0])
	}
}

func TestRecombineRotatesAtBudget(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	inputs := []string{
		combinedInput(t, in, "part_0.csv", sensor.StreamEDA, edaRows("1", "2")),
		combinedInput(t, in, "part_1.csv", sensor.StreamEDA, edaRows("3", "4")),
	}

	// Budget fits one row plus the header per shard; chunkRows=1 keeps
	// chunks under it.
	r := NewRecombiner(out, 64, 1, nil)
	shards, err := r.Recombine(context.Background(), inputs, sensor.StreamEDA)
	require.NoError(t, err)
	require.Len(t, shards, 4)

	var dataRows int
	for i, shard := range shards {
		assert.Equal(t, filepath.Join(out, "eda",
			"eda_combined_"+string(rune('0'+i))+".csv"), shard)
		rows := readAll(t, shard)
		assert.Equal(t, sensor.StreamEDA.CombinedHeader(), rows[0])
		dataRows += len(rows) - 1

		info, err := os.Stat(shard)
		require.NoError(t, err)
		assert.LessOrEqual(t, info.Size(), int64(64))
	}
	assert.Equal(t, 4, dataRows)
}

func TestRecombineChunkTooLargeForEmptyShard(t *testing.T) {
	in := t.TempDir()
	inputs := []string{
		combinedInput(t, in, "part_0.csv", sensor.StreamEDA, edaRows("1")),
		combinedInput(t, in, "part_1.csv", sensor.StreamEDA, edaRows("2")),
	}

	r := NewRecombiner(t.TempDir(), 16, 1, nil)
	_, err := r.Recombine(context.Background(), inputs, sensor.StreamEDA)
	assert.ErrorIs(t, err, ErrChunkTooLarge)
}

func TestRecombineCancelled(t *testing.T) {
	in := t.TempDir()
	inputs := []string{
		combinedInput(t, in, "part_0.csv", sensor.StreamEDA, edaRows("1")),
		combinedInput(t, in, "part_1.csv", sensor.StreamEDA, edaRows("2")),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRecombiner(t.TempDir(), 0, 0, nil)
	_, err := r.Recombine(ctx, inputs, sensor.StreamEDA)
	assert.ErrorIs(t, err, context.Canceled)
}
