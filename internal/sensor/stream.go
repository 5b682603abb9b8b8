package sensor

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Stream identifies one sensor modality. The stream type is fixed once, from
// the filename, when a file is first opened; it is never re-derived from the
// file contents.
type Stream string

const (
	StreamACC  Stream = "acc"
	StreamEDA  Stream = "eda"
	StreamTemp Stream = "temp"
)

// AllStreams returns every supported stream in canonical order.
func AllStreams() []Stream {
	return []Stream{StreamACC, StreamEDA, StreamTemp}
}

// ParseStream converts a stream name into a Stream value.
func ParseStream(name string) (Stream, error) {
	switch Stream(strings.ToLower(strings.TrimSpace(name))) {
	case StreamACC:
		return StreamACC, nil
	case StreamEDA:
		return StreamEDA, nil
	case StreamTemp:
		return StreamTemp, nil
	default:
		return "", fmt.Errorf("unknown stream %q", name)
	}
}

// StreamFromPath derives the stream from a file's base name, e.g.
// ".../2M4Y4111FK/temp.csv" -> StreamTemp.
func StreamFromPath(path string) (Stream, error) {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	s, err := ParseStream(name)
	if err != nil {
		return "", fmt.Errorf("stream from path %s: %w", path, err)
	}
	return s, nil
}

// ValueColumns returns the measurement column names for the stream, in file
// order. The first entry is the primary measurement used for null detection.
func (s Stream) ValueColumns() []string {
	if s == StreamACC {
		return []string{"x", "y", "z"}
	}
	return []string{"measure_value"}
}

// Header returns the raw per-device file header for the stream.
func (s Stream) Header() []string {
	return append([]string{"time"}, s.ValueColumns()...)
}

// CombinedHeader returns the header used once participant and device columns
// have been attached by the combine step.
func (s Stream) CombinedHeader() []string {
	return append(s.Header(), "dev_id", "ppt_id")
}

// FileName returns the per-device file name for the stream.
func (s Stream) FileName() string {
	return string(s) + ".csv"
}
