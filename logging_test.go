package taskrt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Contains(t, LogLevel(99).String(), "UNKNOWN")
}

func TestNoOpLogger_NeverEnabled(t *testing.T) {
	l := NewNoOpLogger()
	assert.False(t, l.IsEnabled(LevelDebug))
	assert.False(t, l.IsEnabled(LevelError))
	l.Log(LogEntry{Level: LevelError, Message: "ignored"})
}

func TestWriterLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(LevelWarn, &buf)

	require.False(t, l.IsEnabled(LevelDebug))
	require.True(t, l.IsEnabled(LevelWarn))

	l.Log(LogEntry{Level: LevelDebug, Category: "test", Message: "should not appear"})
	assert.Empty(t, buf.String())

	l.Log(LogEntry{Level: LevelWarn, Category: "test", Message: "should appear"})
	assert.Contains(t, buf.String(), "should appear")
	assert.Contains(t, buf.String(), "WARN")
}

func TestWriterLogger_IncludesContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(LevelDebug, &buf)

	l.Log(LogEntry{
		Level:       LevelInfo,
		Category:    "processor",
		Message:     "picked routine",
		GroupName:   "default_grp",
		RoutineID:   7,
		ProcessorID: 1,
	})

	out := buf.String()
	assert.Contains(t, out, "group=default_grp")
	assert.Contains(t, out, "routine=7")
	assert.Contains(t, out, "proc=1")
}

func TestLogEntryBuilder_Fluent(t *testing.T) {
	entry := NewLogEntry(LevelError, "scheduler", "dispatch failed").
		Group("g").
		Routine(9).
		Processor(2).
		Field("k", "v").
		Build()

	assert.Equal(t, "g", entry.GroupName)
	assert.Equal(t, uint64(9), entry.RoutineID)
	assert.Equal(t, 2, entry.ProcessorID)
	assert.Equal(t, "v", entry.Context["k"])
}

func TestSetStructuredLogger_GlobalDefaultIsNoOp(t *testing.T) {
	SetStructuredLogger(nil)
	l := getGlobalLogger()
	assert.False(t, l.IsEnabled(LevelDebug))
}

func TestSetStructuredLogger_Roundtrip(t *testing.T) {
	var buf bytes.Buffer
	custom := NewWriterLogger(LevelDebug, &buf)
	SetStructuredLogger(custom)
	defer SetStructuredLogger(nil)

	LogInfo(getGlobalLogger(), "test", "hello", nil)
	assert.True(t, strings.Contains(buf.String(), "hello"))
}

func TestLogHelpers_SkipWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(LevelError, &buf)

	LogDebug(l, "cat", "debug msg", nil)
	LogInfo(l, "cat", "info msg", nil)
	LogWarn(l, "cat", "warn msg", nil)
	assert.Empty(t, buf.String())

	LogError(l, "cat", "error msg", nil, nil)
	assert.Contains(t, buf.String(), "error msg")
}
