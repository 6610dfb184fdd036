package logger

import (
	"os"

	"github.com/fatih/color"
)

// ColoredLogger is the console default: short timestamps, coloured levels
// and faint key=value pairs when the output is a terminal.
type ColoredLogger struct {
	*StandardLogger
}

// NewColoredLogger returns a logger configured for terminal output.
func NewColoredLogger(options ...Option) *ColoredLogger {
	std := NewStandardLogger(options...)
	std.formatter = &ColoredFormatter{
		timestampFormat: "15:04:05",
		enableColors:    isTerminal(std.output) && os.Getenv("NO_COLOR") == "",
	}
	return &ColoredLogger{StandardLogger: std}
}

// With keeps the coloured formatter on derived loggers.
func (l *ColoredLogger) With(fields ...Field) Logger {
	return &ColoredLogger{StandardLogger: l.StandardLogger.derive(fields)}
}

// ColoredFormatter renders log entries with coloured levels when enabled.
type ColoredFormatter struct {
	timestampFormat string
	enableColors    bool
}

// Format converts the Entry into a coloured textual representation.
func (f *ColoredFormatter) Format(entry *Entry) ([]byte, error) {
	timestamp := entry.Time.Format(f.timestampFormat)

	level := entry.Level.String()
	if !f.enableColors {
		return formatEntry(entry, timestamp, level, nil), nil
	}

	if c := levelColor(entry.Level); c != nil {
		level = c.Sprint(level)
	}
	faint := color.New(color.Faint)
	return formatEntry(entry, timestamp, level, func(field Field) string {
		return faint.Sprint(defaultFieldFormatter(field))
	}), nil
}
