package logger

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockLogger records log entries in memory for assertions in tests.
type MockLogger struct {
	store  *mockStore
	fields []Field
}

type mockStore struct {
	mu      sync.Mutex
	entries []MockEntry
	level   Level
}

// MockEntry stores a single log emission.
type MockEntry struct {
	Level   Level
	Message string
	Fields  []Field
}

// Field returns the value recorded under key and whether it was present.
func (e MockEntry) Field(key string) (interface{}, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// NewMockLogger creates a MockLogger with the lowest log level.
func NewMockLogger() *MockLogger {
	return &MockLogger{store: &mockStore{level: LevelDebug}}
}

func (m *MockLogger) Debug(format string, args ...interface{}) {
	m.record(LevelDebug, fmt.Sprintf(format, args...), nil)
}

func (m *MockLogger) Info(format string, args ...interface{}) {
	m.record(LevelInfo, fmt.Sprintf(format, args...), nil)
}

func (m *MockLogger) Warn(format string, args ...interface{}) {
	m.record(LevelWarn, fmt.Sprintf(format, args...), nil)
}

func (m *MockLogger) Error(format string, args ...interface{}) {
	m.record(LevelError, fmt.Sprintf(format, args...), nil)
}

func (m *MockLogger) DebugContext(ctx context.Context, msg string, fields ...Field) {
	m.record(LevelDebug, msg, append(traceFieldsFromContext(ctx), fields...))
}

func (m *MockLogger) InfoContext(ctx context.Context, msg string, fields ...Field) {
	m.record(LevelInfo, msg, append(traceFieldsFromContext(ctx), fields...))
}

func (m *MockLogger) WarnContext(ctx context.Context, msg string, fields ...Field) {
	m.record(LevelWarn, msg, append(traceFieldsFromContext(ctx), fields...))
}

func (m *MockLogger) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	m.record(LevelError, msg, append(traceFieldsFromContext(ctx), fields...))
}

// With returns a child that records into the same store.
func (m *MockLogger) With(fields ...Field) Logger {
	merged := append(append([]Field{}, m.fields...), fields...)
	return &MockLogger{store: m.store, fields: merged}
}

func (m *MockLogger) SetLevel(level Level) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.level = level
}

func (m *MockLogger) GetLevel() Level {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	return m.store.level
}

func (m *MockLogger) record(level Level, msg string, fields []Field) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	if level < m.store.level {
		return
	}
	all := append(append([]Field{}, m.fields...), fields...)
	m.store.entries = append(m.store.entries, MockEntry{Level: level, Message: msg, Fields: all})
}

// GetEntries returns a copy of all stored entries.
func (m *MockLogger) GetEntries() []MockEntry {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	return append([]MockEntry(nil), m.store.entries...)
}

// HasEntry reports whether an entry with the provided level contains the substring.
func (m *MockLogger) HasEntry(level Level, substring string) bool {
	for _, entry := range m.GetEntries() {
		if entry.Level == level && strings.Contains(entry.Message, substring) {
			return true
		}
	}
	return false
}

// CountEntries counts entries recorded with the supplied level.
func (m *MockLogger) CountEntries(level Level) int {
	count := 0
	for _, entry := range m.GetEntries() {
		if entry.Level == level {
			count++
		}
	}
	return count
}

// Reset clears all stored entries.
func (m *MockLogger) Reset() {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.entries = nil
}
