package keepself

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
)

// ConsoleLogger is a Logger backed by charmbracelet/log
type ConsoleLogger struct {
	l *log.Logger
}

// NewConsoleLogger returns a Logger writing to stderr with the given prefix and the
// current process id. Output is JSON when stderr is not a terminal.
func NewConsoleLogger(name string) *ConsoleLogger {
	formatter := log.TextFormatter
	if fd := os.Stderr.Fd(); !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		formatter = log.JSONFormatter
	}
	return NewConsoleLoggerWriter(os.Stderr, name, formatter)
}

// NewConsoleLoggerWriter returns a Logger writing to w with the given formatter
func NewConsoleLoggerWriter(w io.Writer, name string, formatter log.Formatter) *ConsoleLogger {
	l := log.NewWithOptions(w, log.Options{
		Prefix:          name,
		ReportTimestamp: true,
		TimeFormat:      "01-02 15:04:05.000",
		Level:           log.DebugLevel,
		Formatter:       formatter,
	})
	return &ConsoleLogger{l: l.With("pid", os.Getpid())}
}

// SetLevel sets the minimum level that is written
func (c *ConsoleLogger) SetLevel(level log.Level) {
	c.l.SetLevel(level)
}

// Debug logs at debug level
func (c *ConsoleLogger) Debug(msg string, args ...any) {
	c.l.Debug(FormatTemplate(msg, args...))
}

// Info logs at info level
func (c *ConsoleLogger) Info(msg string, args ...any) {
	c.l.Info(FormatTemplate(msg, args...))
}

// Warn logs at warn level
func (c *ConsoleLogger) Warn(msg string, args ...any) {
	c.l.Warn(FormatTemplate(msg, args...))
}

// Error logs at error level
func (c *ConsoleLogger) Error(msg string, args ...any) {
	c.l.Error(FormatTemplate(msg, args...))
}
