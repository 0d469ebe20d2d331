// Package logger provides the leveled logging utility used across surfin-dualdb.
// It wraps the standard `log` package, filters messages by level, and supports
// lightweight key/value prefixes so that concurrent job invocations can be told apart.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel is a type representing the logging level.
type LogLevel int32

const (
	// LevelDebug is used for detailed debugging information such as SQL statements.
	LevelDebug LogLevel = iota
	// LevelInfo is used for general informational messages.
	LevelInfo
	// LevelWarn is used for recoverable problems, e.g. a swallowed metadata race.
	LevelWarn
	// LevelError is used for failures that abort an operation.
	LevelError
	// LevelFatal is used for errors that terminate the process.
	LevelFatal
)

var (
	logLevel atomic.Int32
	std      = log.New(os.Stderr, "", log.LstdFlags)
)

func init() {
	logLevel.Store(int32(LevelInfo))
}

// SetLogLevel sets the global log level.
// Valid values are "DEBUG", "INFO", "WARN", "ERROR", "FATAL" (case-insensitive).
// An unknown value falls back to INFO.
func SetLogLevel(level string) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG", "TRACE":
		logLevel.Store(int32(LevelDebug))
	case "INFO":
		logLevel.Store(int32(LevelInfo))
	case "WARN":
		logLevel.Store(int32(LevelWarn))
	case "ERROR":
		logLevel.Store(int32(LevelError))
	case "FATAL", "SILENT":
		logLevel.Store(int32(LevelFatal))
	default:
		fmt.Fprintf(os.Stderr, "Unknown log level '%s' specified. Defaulting to INFO level.\n", level)
		logLevel.Store(int32(LevelInfo))
	}
}

// GetLogLevel returns the currently active log level.
func GetLogLevel() LogLevel {
	return LogLevel(logLevel.Load())
}

// SetOutput redirects all log output. Mainly used by tests.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

func enabled(level LogLevel) bool {
	return LogLevel(logLevel.Load()) <= level
}

// Debugf formats and outputs a DEBUG level log message.
func Debugf(format string, v ...interface{}) {
	if enabled(LevelDebug) {
		std.Printf("[DEBUG] "+format, v...)
	}
}

// Infof formats and outputs an INFO level log message.
func Infof(format string, v ...interface{}) {
	if enabled(LevelInfo) {
		std.Printf("[INFO] "+format, v...)
	}
}

// Warnf formats and outputs a WARN level log message.
func Warnf(format string, v ...interface{}) {
	if enabled(LevelWarn) {
		std.Printf("[WARN] "+format, v...)
	}
}

// Errorf formats and outputs an ERROR level log message.
func Errorf(format string, v ...interface{}) {
	if enabled(LevelError) {
		std.Printf("[ERROR] "+format, v...)
	}
}

// Fatalf formats and outputs a FATAL level log message, then calls os.Exit(1).
func Fatalf(format string, v ...interface{}) {
	std.Fatalf("[FATAL] "+format, v...)
}

// Entry carries a fixed set of key/value fields that prefix every message it logs.
// The zero value logs without a prefix.
type Entry struct {
	prefix string
}

// With starts a new Entry with a single field.
func With(key string, value interface{}) Entry {
	return Entry{}.With(key, value)
}

// With returns a copy of the entry with one more field appended.
func (e Entry) With(key string, value interface{}) Entry {
	field := fmt.Sprintf("%s=%v", key, value)
	if e.prefix == "" {
		return Entry{prefix: field}
	}
	return Entry{prefix: e.prefix + " " + field}
}

func (e Entry) format(format string) string {
	if e.prefix == "" {
		return format
	}
	return "[" + strings.ReplaceAll(e.prefix, "%", "%%") + "] " + format
}

// Debugf logs at DEBUG with the entry's fields.
func (e Entry) Debugf(format string, v ...interface{}) { Debugf(e.format(format), v...) }

// Infof logs at INFO with the entry's fields.
func (e Entry) Infof(format string, v ...interface{}) { Infof(e.format(format), v...) }

// Warnf logs at WARN with the entry's fields.
func (e Entry) Warnf(format string, v ...interface{}) { Warnf(e.format(format), v...) }

// Errorf logs at ERROR with the entry's fields.
func (e Entry) Errorf(format string, v ...interface{}) { Errorf(e.format(format), v...) }
