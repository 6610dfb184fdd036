package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Formatter converts log entries to their textual representation.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Entry represents a single log record.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
	Fields  []Field
	Caller  *Caller
}

// Caller carries caller information when caller reporting is enabled.
type Caller struct {
	File     string
	Line     int
	Function string
}

// TextFormatter renders entries as "time [LEVEL] message key=value".
type TextFormatter struct {
	TimestampFormat  string
	DisableColors    bool
	DisableTimestamp bool
	Output           io.Writer
}

// Format converts the Entry into a textual representation.
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var timestamp string
	if !f.DisableTimestamp {
		layout := f.TimestampFormat
		if layout == "" {
			layout = time.RFC3339
		}
		timestamp = entry.Time.Format(layout)
	}

	levelText := entry.Level.String()
	if !f.DisableColors && isTerminal(f.Output) {
		if c := levelColor(entry.Level); c != nil {
			levelText = c.Sprint(levelText)
		}
	}
	return formatEntry(entry, timestamp, levelText, nil), nil
}

func levelColor(level Level) *color.Color {
	switch level {
	case LevelDebug:
		return color.New(color.FgCyan)
	case LevelInfo:
		return color.New(color.FgBlue)
	case LevelWarn:
		return color.New(color.FgYellow)
	case LevelError:
		return color.New(color.FgRed)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	if file, ok := w.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	return false
}

type fieldFormatter func(Field) string

func defaultFieldFormatter(field Field) string {
	return fmt.Sprintf("%s=%v", field.Key, field.Value)
}

func formatEntry(entry *Entry, timestamp, levelText string, formatter fieldFormatter) []byte {
	if formatter == nil {
		formatter = defaultFieldFormatter
	}

	var buf bytes.Buffer
	if timestamp != "" {
		buf.WriteString(timestamp)
		buf.WriteString(" ")
	}

	buf.WriteString("[")
	buf.WriteString(levelText)
	buf.WriteString("] ")
	buf.WriteString(entry.Message)

	for _, field := range entry.Fields {
		buf.WriteString(" ")
		buf.WriteString(formatter(field))
	}

	if entry.Caller != nil {
		fmt.Fprintf(&buf, " caller=%s:%d", entry.Caller.File, entry.Caller.Line)
	}

	buf.WriteString("\n")
	return buf.Bytes()
}
