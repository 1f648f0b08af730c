package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-ticketing/internal/config"
)

func TestNewWithWriter_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.Info("checkout", "session completed")
	l.LogAPI("GET", "/api/events", 200, 15*time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "INFO  [CHECKOUT  ] session completed")
	assert.Contains(t, out, "GET /api/events - 200 (15ms)")
	assert.Contains(t, out, "logger_test.go:")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)
	l.minLevel = WARN

	l.Debug("APP", "hidden")
	l.Info("APP", "hidden too")
	l.Warn("APP", "shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewLogger_WritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(config.LogConfig{Dir: dir, Service: "test-svc"})
	l.console = &bytes.Buffer{}

	l.Error("inventory", "stock exhausted")
	l.Close()

	matches, err := filepath.Glob(filepath.Join(dir, "test-svc-*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	f, err := os.Open(matches[0])
	require.NoError(t, err)
	defer f.Close()

	var found bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry LogEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		if entry.Message == "stock exhausted" {
			found = true
			assert.Equal(t, "ERROR", entry.Level)
			assert.Equal(t, "INVENTORY", entry.Category)
		}
	}
	assert.True(t, found)
}
