package keepself

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestFormatTemplate(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		args []any
		want string
	}{
		{name: "no args", msg: "Worker {ProcessId} started.", want: "Worker {ProcessId} started."},
		{name: "one arg", msg: "Worker {ProcessId} started.", args: []any{123}, want: "Worker 123 started."},
		{name: "positional", msg: "{A} then {B}", args: []any{"x", "y"}, want: "x then y"},
		{name: "same name twice", msg: "{A} and {A}", args: []any{1, 2}, want: "1 and 2"},
		{name: "too few args", msg: "{A} {B} {C}", args: []any{1}, want: "1 {B} {C}"},
		{name: "extra args", msg: "{A}", args: []any{1, 2}, want: "1"},
		{name: "empty braces", msg: "{} is {Value}", args: []any{"v"}, want: "{} is v"},
		{name: "unclosed", msg: "value {Value", args: []any{"v"}, want: "value {Value"},
		{name: "error arg", msg: "fail. {Error}", args: []any{ErrNilWorker}, want: "fail. " + ErrNilWorker.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTemplate(tt.msg, tt.args...))
		})
	}
}

func TestLogSinkNil(t *testing.T) {
	var sink logSink

	assert.NotPanics(t, func() {
		sink.Debug("debug {A}", 1)
		sink.Info("info")
		sink.Warn("warn")
		sink.Error("error {A}", 2)
	})
}

func TestConsoleLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLoggerWriter(&buf, "KeepSelf", log.JSONFormatter)

	logger.Warn("Worker process {ProcessId} exited with code {ExitCode}.", 55, 3)

	line := strings.TrimSpace(buf.String())
	require.True(t, gjson.Valid(line), "not JSON: %s", line)
	assert.Equal(t, "Worker process 55 exited with code 3.", gjson.Get(line, "msg").String())
	assert.Contains(t, gjson.Get(line, "prefix").String(), "KeepSelf")
	assert.Equal(t, int64(os.Getpid()), gjson.Get(line, "pid").Int())
	assert.Contains(t, strings.ToLower(gjson.Get(line, "level").String()), "warn")
}

func TestConsoleLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLoggerWriter(&buf, "KeepSelf", log.TextFormatter)
	logger.SetLevel(log.InfoLevel)

	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.Info("shown {N}", 1)
	assert.Contains(t, buf.String(), "shown 1")

	var _ Logger = logger
}
