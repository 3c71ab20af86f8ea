package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestDefaults(t *testing.T) {
	var cfg Config
	cfg.setDefaults()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.Equal(t, 100, cfg.MaxSizeMB)
}

func TestNew_FileOutputWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")
	lg, err := New(Config{Output: "file", FilePath: path, Level: "warn"})
	require.NoError(t, err)

	lg.Info("dropped")
	lg.Warn("security_violation", zap.String("entity", "financial_transactions"))
	require.NoError(t, lg.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var line map[string]any
	require.NoError(t, json.Unmarshal(raw, &line))
	assert.Equal(t, "security_violation", line["msg"])
	assert.Equal(t, "financial_transactions", line["entity"])
	assert.Contains(t, line, "timestamp")
}

func TestNew_Rejects(t *testing.T) {
	_, err := New(Config{Output: "file"})
	assert.Error(t, err)
	_, err = New(Config{Output: "syslog"})
	assert.Error(t, err)

	lg, err := New(Config{Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, lg)
}
