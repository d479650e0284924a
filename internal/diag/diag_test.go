package diag

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerDefaults(t *testing.T) {
	logger := NewLogger(nil)
	require.NotNil(t, logger)
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("should not appear")
	logger.Info("also should not appear")
	require.Empty(t, buf.String())

	logger.Warn("danger", "pid", 7)
	out := buf.String()
	require.Contains(t, out, "[WARN]")
	require.Contains(t, out, "danger")
	require.Contains(t, out, "pid=7")
}

func TestLoggerErrorf(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Errorf("alloc failed: need %d bytes", 128)
	require.True(t, strings.Contains(buf.String(), "alloc failed: need 128 bytes"))
}

type fixedTicks uint32

func (f fixedTicks) Ticks() uint32 { return uint32(f) }

func TestTickStampingWhenSourceAttached(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf, Ticks: fixedTicks(42)})

	logger.Info("stamped")
	require.Contains(t, buf.String(), "[tick 00000042] [INFO] stamped")

	buf.Reset()
	logger.SetTicks(nil)
	logger.Info("bare")
	require.NotContains(t, buf.String(), "tick")
}

func TestSetTicksAfterConstruction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Info("before")
	require.NotContains(t, buf.String(), "tick")

	buf.Reset()
	logger.SetTicks(fixedTicks(7))
	logger.Info("after")
	require.Contains(t, buf.String(), "[tick 00000007]")
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf}))
	t.Cleanup(func() { SetDefault(NewLogger(nil)) })

	Debug("debug message", "key", "value")
	require.Contains(t, buf.String(), "debug message")
	require.Contains(t, buf.String(), "key=value")

	buf.Reset()
	Info("info message")
	require.Contains(t, buf.String(), "info message")

	buf.Reset()
	Warn("warning message")
	require.Contains(t, buf.String(), "warning message")

	buf.Reset()
	Error("error message")
	require.Contains(t, buf.String(), "error message")
}
