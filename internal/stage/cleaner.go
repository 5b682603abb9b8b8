package stage

import (
	"fmt"
	"log/slog"

	"timeprep/internal/dedup"
	"timeprep/internal/sensor"
)

// Cleaner runs duplicate classification over staged files and persists both
// the cleaned rows and the ledger counts. Classification itself is pure; the
// cleaner owns persistence.
type Cleaner struct {
	ledger   *dedup.Ledger
	scanOnly bool
	logger   *slog.Logger
}

// NewCleaner creates a cleaner writing audit counts to ledger. With scanOnly
// set, files are classified and counted but never rewritten.
func NewCleaner(ledger *dedup.Ledger, scanOnly bool, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{ledger: ledger, scanOnly: scanOnly, logger: logger}
}

// CleanFile classifies one staged stream file, rewrites it with the cleaned
// rows (unless scan-only), and upserts the ledger entry for its key. It
// returns the classification counts and the number of surviving rows (equal
// to the original row count in scan-only mode). Ledger errors carry
// dedup.ErrLedger and must abort the whole run; other errors are scoped to
// this file.
func (c *Cleaner) CleanFile(path string) (dedup.Counts, int, error) {
	meta, err := sensor.ExtractPathMeta(path)
	if err != nil {
		return dedup.Counts{}, 0, err
	}
	stream, err := sensor.StreamFromPath(path)
	if err != nil {
		return dedup.Counts{}, 0, err
	}

	logger := c.logger.With(
		slog.String("ppt_id", meta.ParticipantID),
		slog.String("dev_id", meta.DeviceID),
		slog.String("month", meta.Month),
		slog.String("stream", string(stream)))

	table, err := sensor.ReadTable(path, stream)
	if err != nil {
		return dedup.Counts{}, 0, fmt.Errorf("load staged file: %w", err)
	}

	res, err := dedup.Classify(table, dedup.Options{ScanOnly: c.scanOnly})
	if err != nil {
		return dedup.Counts{}, 0, fmt.Errorf("classify %s: %w", path, err)
	}

	kept := res.Counts.TotalRows
	if !c.scanOnly {
		kept = len(res.Cleaned.Rows)
		if err := sensor.WriteTable(path, res.Cleaned); err != nil {
			return res.Counts, 0, fmt.Errorf("persist cleaned rows: %w", err)
		}
	}

	entry := dedup.Entry{
		Key: dedup.Key{
			PptID:  meta.ParticipantID,
			DevID:  meta.DeviceID,
			Month:  meta.Month,
			Stream: stream,
		},
		Counts: res.Counts,
	}
	if err := c.ledger.RecordOrUpdate(entry); err != nil {
		return res.Counts, kept, err
	}

	logger.Info("Cleaned stream file",
		slog.String("path", path),
		slog.Int("total_rows", res.Counts.TotalRows),
		slog.Int("total_dupes", res.Counts.TotalDupes),
		slog.Int("perfect", res.Counts.Perfect),
		slog.Int("unclear", res.Counts.Unclear),
		slog.Int("nan", res.Counts.NaN),
		slog.Int("rows_kept", kept),
		slog.Bool("scan_only", c.scanOnly))
	return res.Counts, kept, nil
}
