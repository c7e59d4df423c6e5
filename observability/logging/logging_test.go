package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEmitsCanonicalKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, " lendingsim ", "prod", slog.LevelInfo)
	logger.Info("step applied", slog.Int("step", 3))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "step applied", entry["message"])
	require.Equal(t, "INFO", entry["severity"])
	require.Equal(t, "lendingsim", entry["service"])
	require.Equal(t, "prod", entry["env"])
	require.EqualValues(t, 3, entry["step"])
	require.Contains(t, entry, "timestamp")
	require.NotContains(t, entry, "msg")
	require.NotContains(t, entry, "level")
}

func TestLevelForEnv(t *testing.T) {
	require.Equal(t, slog.LevelDebug, LevelForEnv("DEV"))
	require.Equal(t, slog.LevelDebug, LevelForEnv(" local "))
	require.Equal(t, slog.LevelInfo, LevelForEnv("prod"))
	require.Equal(t, slog.LevelInfo, LevelForEnv(""))

	var buf bytes.Buffer
	New(&buf, "svc", "", LevelForEnv("")).Debug("hidden")
	require.Zero(t, buf.Len())
}
