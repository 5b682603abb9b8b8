package combine

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"timeprep/internal/exporter"
	"timeprep/internal/sensor"
)

// DefaultChunkRows bounds how many rows are held in memory at once while
// merging. One million rows matches the chunk size the raw exports were
// profiled with.
const DefaultChunkRows = 1_000_000

// DefaultPartitionBytes is the soft target for intermediate combined chunks.
// Hundreds of megabytes per physical file avoids single-file memory blowups
// downstream without creating thousands of tiny parts.
const DefaultPartitionBytes int64 = 256 << 20

// Combiner merges all staged, cleaned per-device files for one (month,
// stream) into partitioned combined tables tagged with dev_id and ppt_id.
type Combiner struct {
	stagingDir     string
	partsDir       string
	chunkRows      int
	partitionBytes int64
	logger         *slog.Logger
}

// NewCombiner creates a combiner reading from stagingDir and writing
// partitioned tables under partsDir. Zero chunkRows or partitionBytes select
// the defaults.
func NewCombiner(stagingDir, partsDir string, chunkRows int, partitionBytes int64, logger *slog.Logger) *Combiner {
	if chunkRows <= 0 {
		chunkRows = DefaultChunkRows
	}
	if partitionBytes <= 0 {
		partitionBytes = DefaultPartitionBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Combiner{
		stagingDir:     stagingDir,
		partsDir:       partsDir,
		chunkRows:      chunkRows,
		partitionBytes: partitionBytes,
		logger:         logger,
	}
}

// Result reports what one stream's combine pass produced.
type Result struct {
	Files  []string
	RowsIn int64
}

// CombineStream locates every staged file for the stream and month, tags each
// row with its participant and device, and writes the union into
// size-targeted partitions. Inputs are processed file-at-a-time in row
// chunks.
func (c *Combiner) CombineStream(ctx context.Context, month string, stream sensor.Stream) (res Result, err error) {
	inputs, err := c.findStaged(month, stream)
	if err != nil {
		return Result{}, err
	}
	if len(inputs) == 0 {
		c.logger.Info("No staged files for stream",
			slog.String("month", month),
			slog.String("stream", string(stream)))
		return Result{}, nil
	}

	outDir := filepath.Join(c.partsDir, month, string(stream))
	var w *exporter.ShardWriter
	defer func() {
		if w != nil {
			if closeErr := w.Close(); err == nil {
				err = closeErr
			}
		}
	}()

	partIdx := 0
	for _, input := range inputs {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}

		// The filename determines the stream; a mismatch here means the
		// staging copy or the glob is wrong, never a skippable file.
		got, serr := sensor.StreamFromPath(input)
		if serr != nil || got != stream {
			return res, fmt.Errorf("staged file %s does not belong to stream %s", input, stream)
		}

		meta, merr := sensor.ExtractPathMeta(input)
		if merr != nil {
			return res, merr
		}

		rows, ferr := c.appendFile(input, meta, stream, &w, outDir, &partIdx, &res)
		if ferr != nil {
			return res, fmt.Errorf("combine %s: %w", input, ferr)
		}
		res.RowsIn += rows

		c.logger.Info("Combined staged file",
			slog.String("ppt_id", meta.ParticipantID),
			slog.String("dev_id", meta.DeviceID),
			slog.String("month", month),
			slog.String("stream", string(stream)),
			slog.Int64("rows", rows))
	}

	if w != nil {
		res.Files = append(res.Files, w.Path())
		closeErr := w.Close()
		w = nil
		if closeErr != nil {
			return res, closeErr
		}
	}
	return res, nil
}

// appendFile streams one staged file into the current partition, rotating
// when the partition target is exceeded.
func (c *Combiner) appendFile(path string, meta sensor.Meta, stream sensor.Stream,
	w **exporter.ShardWriter, outDir string, partIdx *int, res *Result) (int64, error) {

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(stream.Header())
	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("read header: %w", err)
	}

	var total int64
	chunk := make([][]string, 0, c.chunkRows)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := c.writeChunk(chunk, stream, w, outDir, partIdx, res); err != nil {
			return err
		}
		total += int64(len(chunk))
		chunk = chunk[:0]
		return nil
	}

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, fmt.Errorf("read rows: %w", err)
		}
		tagged := make([]string, 0, len(row)+2)
		tagged = append(tagged, row...)
		tagged = append(tagged, meta.DeviceID, meta.ParticipantID)
		chunk = append(chunk, tagged)
		if len(chunk) >= c.chunkRows {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	return total, flush()
}

// writeChunk appends a chunk to the open partition, rotating first when the
// chunk would push it past the partition target. The target is soft: a chunk
// larger than the target still lands in a partition of its own.
func (c *Combiner) writeChunk(chunk [][]string, stream sensor.Stream,
	w **exporter.ShardWriter, outDir string, partIdx *int, res *Result) error {

	size := exporter.ChunkSize(chunk)
	if *w != nil && (*w).BytesWritten()+size > c.partitionBytes {
		res.Files = append(res.Files, (*w).Path())
		if err := (*w).Close(); err != nil {
			return err
		}
		*w = nil
		*partIdx++
	}
	if *w == nil {
		path := filepath.Join(outDir, fmt.Sprintf("part_%d.csv", *partIdx))
		nw, err := exporter.NewShardWriter(path, stream.CombinedHeader())
		if err != nil {
			return err
		}
		*w = nw
	}
	return (*w).Append(chunk)
}

// findStaged returns the staged per-device files for a month and stream in
// sorted order.
func (c *Combiner) findStaged(month string, stream sensor.Stream) ([]string, error) {
	root := filepath.Join(c.stagingDir, "sensors_"+month)
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Base(path) == stream.FileName() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("walk staging tree %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}
