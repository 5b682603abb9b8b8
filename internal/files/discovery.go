package files

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"timeprep/internal/sensor"
)

// FindStreamFiles walks root and returns every per-device stream CSV
// (acc.csv, eda.csv, temp.csv) beneath it, sorted for deterministic
// processing order.
func FindStreamFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, serr := sensor.StreamFromPath(path); serr == nil {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(paths)

	slog.Info("Discovered stream files",
		slog.String("root", root),
		slog.Int("count", len(paths)))
	return paths, nil
}

// FilterStreams keeps only paths belonging to the requested streams.
func FilterStreams(paths []string, streams []sensor.Stream) []string {
	want := make(map[sensor.Stream]bool, len(streams))
	for _, s := range streams {
		want[s] = true
	}
	var out []string
	for _, p := range paths {
		s, err := sensor.StreamFromPath(p)
		if err == nil && want[s] {
			out = append(out, p)
		}
	}
	return out
}

// Unzip extracts a sensor export archive into an "unzipped" directory beside
// the archive's parent and returns the extraction root. Callers walk the
// returned directory with FindStreamFiles and remove it when done.
func Unzip(archivePath string) (string, error) {
	grandparent := filepath.Dir(filepath.Dir(archivePath))
	name := strings.TrimSuffix(filepath.Base(archivePath), filepath.Ext(archivePath))
	target := filepath.Join(grandparent, "unzipped", name)
	if err := os.MkdirAll(target, 0755); err != nil {
		return "", fmt.Errorf("create extraction dir %s: %w", target, err)
	}

	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if err := extractOne(f, target); err != nil {
			return "", fmt.Errorf("extract %s from %s: %w", f.Name, archivePath, err)
		}
	}

	slog.Info("Extracted archive",
		slog.String("archive", archivePath),
		slog.String("target", target),
		slog.Int("entries", len(r.File)))
	return target, nil
}

func extractOne(f *zip.File, target string) error {
	// Reject entries that would escape the extraction root.
	dest := filepath.Join(target, filepath.FromSlash(f.Name))
	if !strings.HasPrefix(dest, filepath.Clean(target)+string(os.PathSeparator)) {
		return fmt.Errorf("illegal entry path %q", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0755)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
