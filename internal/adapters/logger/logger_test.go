package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelInfo, FormatJSON).With(map[string]interface{}{"component": "position"})

	l.Debug(context.Background(), "hidden")
	l.Error(context.Background(), errors.New("broker down"), "close failed", map[string]interface{}{"positionID": "p1", "failures": 3})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]interface{}
	require.NoError(t, jsoniter.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "close failed", rec["msg"])
	assert.Equal(t, "broker down", rec["error"])
	assert.Equal(t, "p1", rec["positionID"])
	assert.Equal(t, float64(3), rec["failures"])
	assert.Equal(t, "position", rec["component"])
}

func TestLogger_TextLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, ParseLevel("warning"), ParseFormat("TEXT"))

	l.Info(context.Background(), "skipped")
	l.Warn(context.Background(), "admissions paused", map[string]interface{}{"reason": "3 consecutive losses"})

	out := buf.String()
	assert.NotContains(t, out, "skipped")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, `reason="3 consecutive losses"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, FormatJSON, ParseFormat("json"))
}
