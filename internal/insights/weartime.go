// Package insights derives wear-time summaries from cleaned, combined EDA
// data. Only the low-value-row filter lives here; anything past that is out
// of scope for the pipeline.
package insights

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/montanaflynn/stats"
)

// Config controls the non-wear filter and where its audit files land.
type Config struct {
	// Threshold in microsiemens below which a reading counts as "not worn".
	Threshold float64
	// WindowSeconds is the width of the grouping window.
	WindowSeconds int
	// DropFraction is the share of below-threshold readings that flags a
	// window as non-wear.
	DropFraction float64
	// SampleHz is the EDA sampling rate, used to convert row counts into
	// minutes.
	SampleHz float64
	// OutputDir receives dropped_times/<ppt>.csv and the summary file.
	OutputDir string
}

// DefaultConfig mirrors the filter the study settled on: 10-second windows,
// dropped when more than 90% of readings sit below 0.03 uS, at 4 Hz.
func DefaultConfig(outputDir string) Config {
	return Config{
		Threshold:     0.03,
		WindowSeconds: 10,
		DropFraction:  0.9,
		SampleHz:      4,
		OutputDir:     outputDir,
	}
}

// DaySummary is one participant-device-day of wear time.
type DaySummary struct {
	PptID       string
	DevID       string
	Date        string
	MinutesWorn float64
	PercentWorn float64
	MeanEDA     float64
}

type sample struct {
	timeMs int64
	value  float64
}

type wearerKey struct {
	ppt string
	dev string
}

// Summarize reads combined EDA files (time,measure_value,dev_id,ppt_id),
// drops non-wear windows, persists the dropped windows per participant, and
// returns per-day wear summaries sorted by participant, device, date.
func Summarize(paths []string, cfg Config, logger *slog.Logger) ([]DaySummary, error) {
	if logger == nil {
		logger = slog.Default()
	}

	byWearer := make(map[wearerKey][]sample)
	for _, path := range paths {
		if err := readCombinedEDA(path, byWearer); err != nil {
			return nil, err
		}
	}

	keys := make([]wearerKey, 0, len(byWearer))
	for k := range byWearer {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ppt != keys[j].ppt {
			return keys[i].ppt < keys[j].ppt
		}
		return keys[i].dev < keys[j].dev
	})

	var summaries []DaySummary
	for _, k := range keys {
		samples := byWearer[k]
		sort.Slice(samples, func(i, j int) bool { return samples[i].timeMs < samples[j].timeMs })

		worn, dropped := splitNonWear(samples, cfg)
		if err := writeDroppedWindows(cfg.OutputDir, k.ppt, dropped); err != nil {
			return nil, err
		}

		droppedPct := 0.0
		if len(samples) > 0 {
			droppedPct = float64(len(samples)-len(worn)) / float64(len(samples)) * 100
		}
		logger.Info("Filtered non-wear windows",
			slog.String("ppt_id", k.ppt),
			slog.String("dev_id", k.dev),
			slog.Int("rows_dropped", len(samples)-len(worn)),
			slog.Float64("dropped_pct", droppedPct))

		summaries = append(summaries, summarizeDays(k, worn, cfg)...)
	}
	return summaries, nil
}

// splitNonWear groups samples into fixed windows from the first reading and
// separates wear from non-wear windows.
func splitNonWear(samples []sample, cfg Config) (worn []sample, droppedWindows [][2]int64) {
	if len(samples) == 0 {
		return nil, nil
	}
	windowMs := int64(cfg.WindowSeconds) * 1000
	first := samples[0].timeMs

	type window struct {
		below, total int
		minT, maxT   int64
		members      []sample
	}
	windows := make(map[int64]*window)
	var order []int64
	for _, s := range samples {
		idx := (s.timeMs - first) / windowMs
		w, ok := windows[idx]
		if !ok {
			w = &window{minT: s.timeMs, maxT: s.timeMs}
			windows[idx] = w
			order = append(order, idx)
		}
		w.total++
		if s.value < cfg.Threshold {
			w.below++
		}
		if s.timeMs < w.minT {
			w.minT = s.timeMs
		}
		if s.timeMs > w.maxT {
			w.maxT = s.timeMs
		}
		w.members = append(w.members, s)
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	for _, idx := range order {
		w := windows[idx]
		if float64(w.below)/float64(w.total) > cfg.DropFraction {
			droppedWindows = append(droppedWindows, [2]int64{w.minT, w.maxT})
			continue
		}
		worn = append(worn, w.members...)
	}
	return worn, droppedWindows
}

// summarizeDays rolls surviving samples up into per-day minutes and percent
// worn, plus the day's mean EDA.
func summarizeDays(k wearerKey, worn []sample, cfg Config) []DaySummary {
	byDay := make(map[string][]float64)
	var days []string
	for _, s := range worn {
		day := time.UnixMilli(s.timeMs).UTC().Format("2006-01-02")
		if _, ok := byDay[day]; !ok {
			days = append(days, day)
		}
		byDay[day] = append(byDay[day], s.value)
	}
	sort.Strings(days)

	out := make([]DaySummary, 0, len(days))
	for _, day := range days {
		values := byDay[day]
		mean, _ := stats.Mean(stats.Float64Data(values))
		minutes := float64(len(values)) / cfg.SampleHz / 60
		out = append(out, DaySummary{
			PptID:       k.ppt,
			DevID:       k.dev,
			Date:        day,
			MinutesWorn: minutes,
			PercentWorn: minutes / (24 * 60),
			MeanEDA:     mean,
		})
	}
	return out
}

// WriteSummaryCSV persists day summaries as wear_time_summary.csv under dir.
func WriteSummaryCSV(dir string, summaries []DaySummary) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create insights directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, "wear_time_summary.csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create summary %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	writeErr := w.Write([]string{"ppt_id", "dev_id", "date", "minutes_worn", "percent_worn", "mean_eda"})
	for _, s := range summaries {
		if writeErr != nil {
			break
		}
		writeErr = w.Write([]string{
			s.PptID, s.DevID, s.Date,
			strconv.FormatFloat(s.MinutesWorn, 'f', 4, 64),
			strconv.FormatFloat(s.PercentWorn, 'f', 6, 64),
			strconv.FormatFloat(s.MeanEDA, 'f', 6, 64),
		})
	}
	w.Flush()
	if writeErr == nil {
		writeErr = w.Error()
	}
	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return "", fmt.Errorf("write summary %s: %w", path, writeErr)
	}
	return path, nil
}

func writeDroppedWindows(dir, pptID string, windows [][2]int64) error {
	outDir := filepath.Join(dir, "dropped_times")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create dropped_times directory: %w", err)
	}
	path := filepath.Join(outDir, pptID+".csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	writeErr := w.Write([]string{"start_time", "end_time"})
	for _, win := range windows {
		if writeErr != nil {
			break
		}
		writeErr = w.Write([]string{
			strconv.FormatInt(win[0], 10),
			strconv.FormatInt(win[1], 10),
		})
	}
	w.Flush()
	if writeErr == nil {
		writeErr = w.Error()
	}
	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return fmt.Errorf("write %s: %w", path, writeErr)
	}
	return nil
}

// readCombinedEDA appends samples from one combined EDA file.
func readCombinedEDA(path string, byWearer map[wearerKey][]sample) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 4
	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read header of %s: %w", path, err)
	}

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		t, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return fmt.Errorf("%s: bad time %q: %w", path, row[0], err)
		}
		v, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return fmt.Errorf("%s: bad measure value %q: %w", path, row[1], err)
		}
		k := wearerKey{ppt: row[3], dev: row[2]}
		byWearer[k] = append(byWearer[k], sample{timeMs: t, value: v})
	}
	return nil
}
