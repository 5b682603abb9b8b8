package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"timeprep/internal/dedup"
)

// ledgerSheet is the worksheet holding the duplicate-handling log.
const ledgerSheet = "duplicates"

// WriteLedgerWorkbook renders ledger entries into an XLSX workbook so study
// auditors can review duplicate handling without touching the raw CSV.
func WriteLedgerWorkbook(path string, entries []dedup.Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), ledgerSheet); err != nil {
		return fmt.Errorf("failed to name ledger sheet: %w", err)
	}

	header := []interface{}{
		"ppt_id", "dev_id", "month", "stream",
		"perfect", "nan", "unclear", "total_rows", "total_dupes",
	}
	if err := f.SetSheetRow(ledgerSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	for i, e := range entries {
		row := []interface{}{
			e.PptID, e.DevID, e.Month, string(e.Stream),
			e.Perfect, e.NaN, e.Unclear, e.TotalRows, e.TotalDupes,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to compute cell name: %w", err)
		}
		if err := f.SetSheetRow(ledgerSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write entry row %d: %w", i, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save ledger workbook: %w", err)
	}

	slog.Info("Wrote ledger workbook",
		slog.String("path", path),
		slog.Int("entries", len(entries)))
	return nil
}
