package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths contains all the pipeline's file-system locations.
// This is the single source of truth for paths: components receive these
// values instead of composing directories themselves.
//
// Layout under the base directory:
//
//	<base>/
//	  ├── dedup_staging/         (staged copies mutated by the cleaner)
//	  ├── pending_upload/<month> (final size-bounded shards per stream)
//	  ├── combined_parts/        (intermediate combined partitions)
//	  ├── ledger/                (dupe_log.csv / dupe_log_test.csv + workbook)
//	  ├── insights/              (wear-time summary, dropped_times/)
//	  └── logs/
type Paths struct {
	BaseDir     string
	StagingDir  string
	PendingDir  string
	PartsDir    string
	LedgerDir   string
	InsightsDir string
	LogsDir     string

	// Well-known files
	LedgerWorkbook string
}

// NewPaths derives every pipeline path from the base directory.
func NewPaths(baseDir string) *Paths {
	ledgerDir := filepath.Join(baseDir, "ledger")
	return &Paths{
		BaseDir:        baseDir,
		StagingDir:     filepath.Join(baseDir, "dedup_staging"),
		PendingDir:     filepath.Join(baseDir, "pending_upload"),
		PartsDir:       filepath.Join(baseDir, "combined_parts"),
		LedgerDir:      ledgerDir,
		InsightsDir:    filepath.Join(baseDir, "insights"),
		LogsDir:        filepath.Join(baseDir, "logs"),
		LedgerWorkbook: filepath.Join(ledgerDir, "dupe_log.xlsx"),
	}
}

// PendingMonthDir returns the shard output directory for one month token.
func (p *Paths) PendingMonthDir(month string) string {
	return filepath.Join(p.PendingDir, month)
}

// GetLogPath returns the path of a named log file under the logs directory.
func (p *Paths) GetLogPath(name string) string {
	return filepath.Join(p.LogsDir, name)
}

// EnsureDirectories creates every pipeline directory that must exist before
// a run starts.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{
		p.StagingDir,
		p.PendingDir,
		p.PartsDir,
		p.LedgerDir,
		p.InsightsDir,
		p.LogsDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
