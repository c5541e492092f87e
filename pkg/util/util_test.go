package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepClock(t *testing.T) {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c := &StepClock{Start: start, Step: time.Second}
	assert.Equal(t, start, c.Now())
	assert.Equal(t, start.Add(time.Second), c.Now())
	assert.Equal(t, start.Add(2*time.Second), c.Now())
}

func TestNewLoggerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "exchange.log")
	logger, err := NewLoggerWithFile(path, true)
	require.NoError(t, err)
	logger.Debug("debug_line")
	logger.Info("info_line")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"debug_line"`)
	assert.Contains(t, string(data), `"level":"INFO"`)
}

func TestNewLoggerWithFile_EmptyPath(t *testing.T) {
	logger, err := NewLoggerWithFile("", false)
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
