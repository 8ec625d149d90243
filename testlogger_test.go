package modregistry

import (
	"sync"
)

// LogEntry is one captured log call.
type LogEntry struct {
	Level   string
	Message string
	Args    []any
}

// TestLogger captures log output for assertions.
type TestLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewTestLogger creates an empty capturing logger.
func NewTestLogger() *TestLogger {
	return &TestLogger{}
}

func (l *TestLogger) log(level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Message: msg, Args: args})
}

// Info implements Logger.
func (l *TestLogger) Info(msg string, args ...any) { l.log("info", msg, args...) }

// Error implements Logger.
func (l *TestLogger) Error(msg string, args ...any) { l.log("error", msg, args...) }

// Warn implements Logger.
func (l *TestLogger) Warn(msg string, args ...any) { l.log("warn", msg, args...) }

// Debug implements Logger.
func (l *TestLogger) Debug(msg string, args ...any) { l.log("debug", msg, args...) }

// Entries returns a copy of the captured entries.
func (l *TestLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make([]LogEntry, len(l.entries))
	copy(entries, l.entries)
	return entries
}

// Messages returns the captured messages at the given level.
func (l *TestLogger) Messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var messages []string
	for _, e := range l.entries {
		if e.Level == level {
			messages = append(messages, e.Message)
		}
	}
	return messages
}
