package combine

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"timeprep/internal/exporter"
	"timeprep/internal/sensor"
)

// DefaultMaxShardBytes is the upload size budget per output shard: 5 GB with
// headroom, matching the bulk-upload limit of the downstream store.
const DefaultMaxShardBytes int64 = 4_900_000_000

// ErrChunkTooLarge reports a single row chunk that exceeds the shard budget
// on its own. Rotation cannot repair that, so it surfaces instead of an
// oversized shard being written.
var ErrChunkTooLarge = errors.New("chunk exceeds maximum shard size")

// Recombiner repacks already-cleaned, already-combined files for one stream
// into the minimum number of output shards, each below the byte budget.
type Recombiner struct {
	outputDir string
	maxBytes  int64
	chunkRows int
	logger    *slog.Logger
}

// NewRecombiner creates a recombiner writing shards under
// outputDir/<stream>/. Zero maxBytes or chunkRows select the defaults.
func NewRecombiner(outputDir string, maxBytes int64, chunkRows int, logger *slog.Logger) *Recombiner {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxShardBytes
	}
	if chunkRows <= 0 {
		chunkRows = DefaultChunkRows
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recombiner{outputDir: outputDir, maxBytes: maxBytes, chunkRows: chunkRows, logger: logger}
}

// shardPath names the index'th output shard for a stream.
func (r *Recombiner) shardPath(stream sensor.Stream, index int) string {
	return filepath.Join(r.outputDir, string(stream),
		fmt.Sprintf("%s_combined_%d.csv", stream, index))
}

// Recombine streams the sorted inputs into size-bounded shards. Zero inputs
// is a no-op; a single input is copied byte-for-byte since it already carries
// the right header. The currently open shard is closed on any mid-stream
// failure so no unflushed file is left behind.
func (r *Recombiner) Recombine(ctx context.Context, inputs []string, stream sensor.Stream) (shards []string, err error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	inputs = append([]string(nil), inputs...)
	sort.Strings(inputs)

	if len(inputs) == 1 {
		shard, cerr := r.copySingle(inputs[0], stream)
		if cerr != nil {
			return nil, cerr
		}
		return []string{shard}, nil
	}

	var w *exporter.ShardWriter
	defer func() {
		if w != nil {
			if closeErr := w.Close(); err == nil {
				err = closeErr
			}
		}
	}()

	shardIdx := 0
	for _, input := range inputs {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return shards, ctxErr
		}
		if err := r.appendInput(input, stream, &w, &shardIdx, &shards); err != nil {
			return shards, fmt.Errorf("recombine %s: %w", input, err)
		}
	}

	if w != nil {
		shards = append(shards, w.Path())
		closeErr := w.Close()
		w = nil
		if closeErr != nil {
			return shards, closeErr
		}
	}

	r.logger.Info("Recombination complete",
		slog.String("stream", string(stream)),
		slog.Int("inputs", len(inputs)),
		slog.Int("shards", len(shards)))
	return shards, nil
}

func (r *Recombiner) appendInput(input string, stream sensor.Stream,
	w **exporter.ShardWriter, shardIdx *int, shards *[]string) error {

	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = len(stream.CombinedHeader())
	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read header: %w", err)
	}

	chunk := make([][]string, 0, r.chunkRows)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := r.writeChunk(chunk, stream, w, shardIdx, shards); err != nil {
			return err
		}
		chunk = chunk[:0]
		return nil
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read rows: %w", err)
		}
		chunk = append(chunk, row)
		if len(chunk) >= r.chunkRows {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// writeChunk enforces the shard budget: the size check happens before the
// append, the open shard rotates when the chunk would overflow it, and a
// chunk that cannot fit even in an empty shard is an error.
func (r *Recombiner) writeChunk(chunk [][]string, stream sensor.Stream,
	w **exporter.ShardWriter, shardIdx *int, shards *[]string) error {

	size := exporter.ChunkSize(chunk)
	headerSize := exporter.RecordSize(stream.CombinedHeader())
	if size+headerSize > r.maxBytes {
		return fmt.Errorf("%w: chunk of %d bytes, budget %d", ErrChunkTooLarge, size, r.maxBytes)
	}

	if *w != nil && (*w).BytesWritten()+size > r.maxBytes {
		*shards = append(*shards, (*w).Path())
		if err := (*w).Close(); err != nil {
			return err
		}
		*w = nil
		*shardIdx++
	}
	if *w == nil {
		nw, err := exporter.NewShardWriter(r.shardPath(stream, *shardIdx), stream.CombinedHeader())
		if err != nil {
			return err
		}
		*w = nw
	}
	return (*w).Append(chunk)
}

// copySingle passes a lone input through byte-for-byte.
func (r *Recombiner) copySingle(input string, stream sensor.Stream) (string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return "", fmt.Errorf("stat input %s: %w", input, err)
	}
	if info.Size() > r.maxBytes {
		return "", fmt.Errorf("%w: input %s is %d bytes, budget %d",
			ErrChunkTooLarge, input, info.Size(), r.maxBytes)
	}

	dst := r.shardPath(stream, 0)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("create shard directory: %w", err)
	}

	in, err := os.Open(input)
	if err != nil {
		return "", fmt.Errorf("open input %s: %w", input, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create shard %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("copy %s: %w", input, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close shard %s: %w", dst, err)
	}

	r.logger.Info("Single combined input, copied directly",
		slog.String("input", input),
		slog.String("shard", dst))
	return dst, nil
}
