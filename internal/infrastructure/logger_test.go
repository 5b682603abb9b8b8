package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeprep/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARN"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("anything"))
}

func TestRunIDHandlerInjectsRunID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(&runIDHandler{
		Handler: slog.NewJSONHandler(&buf, nil),
	})

	ctx := WithRunID(context.Background(), "run-42")
	logger.InfoContext(ctx, "hello", slog.String("k", "v"))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "run-42", record["run_id"])
	assert.Equal(t, "v", record["k"])
}

func TestRunIDHandlerWithoutRunID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(&runIDHandler{
		Handler: slog.NewJSONHandler(&buf, nil),
	})

	logger.Info("hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	_, ok := record["run_id"]
	assert.False(t, ok)
}

func TestRunIDHandlerSurvivesWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(&runIDHandler{
		Handler: slog.NewJSONHandler(&buf, nil),
	}).With(slog.String("stream", "eda"))

	ctx := WithRunID(context.Background(), "run-7")
	logger.InfoContext(ctx, "hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "run-7", record["run_id"])
	assert.Equal(t, "eda", record["stream"])
}

func TestCreateLoggerFileOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "timeprep.log")

	logger, err := createLogger(config.LoggingConfig{
		Level:    "debug",
		Output:   "file",
		FilePath: path,
	})
	require.NoError(t, err)
	t.Cleanup(func() { CloseLogFile() })

	logger.Debug("written to file")
	require.NoError(t, CloseLogFile())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "written to file")
}

func TestRunIDFromEmptyContext(t *testing.T) {
	assert.Equal(t, "", RunIDFrom(context.Background()))
	ctx := WithRunID(context.Background(), "abc")
	assert.Equal(t, "abc", RunIDFrom(ctx))
}
