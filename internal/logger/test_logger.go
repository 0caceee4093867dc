package logger

import "sync"

// Entry is one captured log call.
type Entry struct {
	Level   string
	Message string
	Fields  []Field
}

// TestLogger records entries for assertions in tests.
type TestLogger struct {
	mu      sync.Mutex
	entries []Entry
}

// NewTestLogger creates an empty TestLogger.
func NewTestLogger() *TestLogger {
	return &TestLogger{}
}

func (l *TestLogger) Debug(msg string, fields ...Field) { l.log("DEBUG", msg, fields) }
func (l *TestLogger) Info(msg string, fields ...Field)  { l.log("INFO", msg, fields) }
func (l *TestLogger) Warn(msg string, fields ...Field)  { l.log("WARN", msg, fields) }
func (l *TestLogger) Error(msg string, fields ...Field) { l.log("ERROR", msg, fields) }

// With returns the same recorder; fields are not tracked per child.
func (l *TestLogger) With(...Field) Logger { return l }

// Named returns the same recorder.
func (l *TestLogger) Named(string) Logger { return l }

// Sync is a no-op.
func (l *TestLogger) Sync() error { return nil }

func (l *TestLogger) log(level, msg string, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Level: level, Message: msg, Fields: fields})
}

// Entries returns a copy of everything logged so far.
func (l *TestLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Clear drops all captured entries.
func (l *TestLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
}
