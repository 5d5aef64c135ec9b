// Package logger provides leveled, structured logging for TonerTrack
// components. Messages are written to the console and an optional log file
// with size-based rotation, and a bounded in-memory buffer keeps recent
// entries available for diagnostics.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents the severity level of a log message.
type Level int

const (
	ERROR Level = iota
	WARN
	INFO
	DEBUG
)

var levelNames = map[Level]string{
	ERROR: "ERROR",
	WARN:  "WARN",
	INFO:  "INFO",
	DEBUG: "DEBUG",
}

// Entry is a single log entry.
type Entry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Context   map[string]interface{}
}

// Logger writes leveled key/value log entries.
type Logger struct {
	mu            sync.Mutex
	level         Level
	logDir        string
	currentFile   *os.File
	currentPath   string
	buffer        []Entry
	maxBufferSize int
	maxFileBytes  int64
	console       bool
}

// New creates a Logger. logDir may be empty for console-only logging.
func New(level Level, logDir string, maxBufferSize int) *Logger {
	if maxBufferSize <= 0 {
		maxBufferSize = 500
	}
	return &Logger{
		level:         level,
		logDir:        logDir,
		buffer:        make([]Entry, 0, maxBufferSize),
		maxBufferSize: maxBufferSize,
		maxFileBytes:  20 * 1024 * 1024,
		console:       true,
	}
}

// SetConsoleOutput enables or disables console output.
func (l *Logger) SetConsoleOutput(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.console = enabled
}

// SetLevel changes the current log level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Error logs an error level message.
func (l *Logger) Error(msg string, context ...interface{}) { l.log(ERROR, msg, context...) }

// Warn logs a warning level message.
func (l *Logger) Warn(msg string, context ...interface{}) { l.log(WARN, msg, context...) }

// Info logs an info level message.
func (l *Logger) Info(msg string, context ...interface{}) { l.log(INFO, msg, context...) }

// Debug logs a debug level message.
func (l *Logger) Debug(msg string, context ...interface{}) { l.log(DEBUG, msg, context...) }

func (l *Logger) log(level Level, msg string, context ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level > l.level {
		return
	}

	ctx := make(map[string]interface{})
	for i := 0; i+1 < len(context); i += 2 {
		if key, ok := context[i].(string); ok {
			ctx[key] = context[i+1]
		}
	}

	entry := Entry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		Context:   ctx,
	}

	if len(l.buffer) >= l.maxBufferSize {
		l.buffer = l.buffer[1:]
	}
	l.buffer = append(l.buffer, entry)

	if l.console {
		fmt.Println(formatEntry(entry))
	}
	if l.logDir != "" {
		l.writeToFile(entry)
	}
}

func (l *Logger) writeToFile(entry Entry) {
	if err := os.MkdirAll(l.logDir, 0o755); err != nil {
		return
	}

	if l.currentFile == nil {
		filename := filepath.Join(l.logDir, "tonertrack.log")
		f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return
		}
		l.currentFile = f
		l.currentPath = filename
	}

	l.currentFile.WriteString(formatEntry(entry) + "\n")

	if stat, err := l.currentFile.Stat(); err == nil && stat.Size() >= l.maxFileBytes {
		l.rotate()
	}
}

// rotate closes the current log file and renames it with a timestamp suffix.
func (l *Logger) rotate() {
	if l.currentFile == nil {
		return
	}
	l.currentFile.Close()
	l.currentFile = nil

	if l.currentPath != "" {
		stamp := time.Now().Format("20060102_150405")
		backup := filepath.Join(l.logDir, fmt.Sprintf("tonertrack_%s.log", stamp))
		os.Rename(l.currentPath, backup)
	}
}

func formatEntry(entry Entry) string {
	line := fmt.Sprintf("%s [%s] %s",
		entry.Timestamp.Format("2006-01-02T15:04:05-07:00"),
		levelNames[entry.Level],
		entry.Message,
	)
	for k, v := range entry.Context {
		line += fmt.Sprintf(" %s=%v", k, v)
	}
	return line
}

// Buffer returns a copy of the in-memory entry buffer.
func (l *Logger) Buffer() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.buffer))
	copy(out, l.buffer)
	return out
}

// Close closes the current log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.currentFile != nil {
		err := l.currentFile.Close()
		l.currentFile = nil
		return err
	}
	return nil
}

// LevelFromString converts a string to a Level, defaulting to INFO.
func LevelFromString(s string) Level {
	switch s {
	case "ERROR", "error":
		return ERROR
	case "WARN", "warn":
		return WARN
	case "DEBUG", "debug":
		return DEBUG
	default:
		return INFO
	}
}
