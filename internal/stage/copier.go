package stage

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"timeprep/internal/sensor"
)

var monthTokenRe = regexp.MustCompile(`\d{8}_\d{8}`)

// Copier copies raw export files into the deduplication staging tree. The
// variable top-level export prefix (site batches name it freely, e.g.
// "Sensors_U02_ALLSITES_20190801_20190831") is collapsed into the canonical
// "sensors_<month>" prefix; every segment below it is preserved unchanged so
// path metadata extraction keeps working on staged paths.
type Copier struct {
	stagingDir string
	logger     *slog.Logger
}

// NewCopier creates a copier targeting stagingDir.
func NewCopier(stagingDir string, logger *slog.Logger) *Copier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Copier{stagingDir: stagingDir, logger: logger}
}

// Stage copies every path into the staging tree and returns the staged
// paths in input order. The staging tree is not trustworthy until the whole
// copy completes: the first error aborts the run.
func (c *Copier) Stage(paths []string) ([]string, error) {
	staged := make([]string, 0, len(paths))
	for _, path := range paths {
		dst, err := c.stagedPath(path)
		if err != nil {
			return nil, err
		}
		if err := copyFile(path, dst); err != nil {
			return nil, fmt.Errorf("stage %s: %w", path, err)
		}
		c.logger.Debug("Staged file",
			slog.String("src", path),
			slog.String("dst", dst))
		staged = append(staged, dst)
	}
	c.logger.Info("Staging copy complete",
		slog.String("staging_dir", c.stagingDir),
		slog.Int("files", len(staged)))
	return staged, nil
}

// stagedPath maps a raw path to its staging location. The export prefix is
// the path segment carrying the month token; everything after it is kept.
func (c *Copier) stagedPath(path string) (string, error) {
	segs := strings.Split(filepath.ToSlash(path), "/")
	prefixIdx := -1
	var month string
	for i, seg := range segs {
		if m := monthTokenRe.FindString(seg); m != "" {
			prefixIdx = i
			month = m
			break
		}
	}
	if prefixIdx < 0 || prefixIdx == len(segs)-1 {
		return "", &sensor.PathError{Path: path, Reason: "no export prefix with month token"}
	}
	rel := filepath.Join(segs[prefixIdx+1:]...)
	return filepath.Join(c.stagingDir, "sensors_"+month, rel), nil
}

// copyFile is a pure structural copy: contents are never transformed here.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy contents: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close destination file: %w", err)
	}
	return nil
}
