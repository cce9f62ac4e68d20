package keepself

import (
	"fmt"
	"strings"
)

// Logger receives supervision activity. Messages are templates with {name}
// placeholders that are replaced, in order, by args.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// FormatTemplate replaces each {name} placeholder in msg with the next value from args.
// Placeholders left over once args run out are kept as written.
func FormatTemplate(msg string, args ...any) string {
	if len(args) == 0 || !strings.Contains(msg, "{") {
		return msg
	}

	var b strings.Builder
	b.Grow(len(msg) + 16*len(args))

	for next := 0; next < len(args); {
		open := strings.IndexByte(msg, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(msg[open+1:], '}')
		if end < 0 {
			break
		}
		if end == 0 {
			// "{}" has no name and is not a placeholder
			b.WriteString(msg[:open+2])
			msg = msg[open+2:]
			continue
		}
		b.WriteString(msg[:open])
		fmt.Fprint(&b, args[next])
		next++
		msg = msg[open+end+2:]
	}
	b.WriteString(msg)

	return b.String()
}

// logSink wraps an optional Logger so callers never check for nil
type logSink struct {
	l Logger
}

func (s logSink) Debug(msg string, args ...any) {
	if s.l != nil {
		s.l.Debug(msg, args...)
	}
}

func (s logSink) Info(msg string, args ...any) {
	if s.l != nil {
		s.l.Info(msg, args...)
	}
}

func (s logSink) Warn(msg string, args ...any) {
	if s.l != nil {
		s.l.Warn(msg, args...)
	}
}

func (s logSink) Error(msg string, args ...any) {
	if s.l != nil {
		s.l.Error(msg, args...)
	}
}
