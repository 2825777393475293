// Package logging wraps the standard logger with level prefixes.
//
// Output always goes to stderr: stdout carries the MCP stdio transport.
package logging

import (
	"io"
	"log"
	"os"
)

// Logger writes prefixed log lines. Debug lines are dropped unless enabled.
type Logger struct {
	*log.Logger
	debug bool
}

// New creates a Logger writing to stderr.
func New(debug bool) *Logger {
	return NewWithWriter(os.Stderr, debug)
}

// NewWithWriter creates a Logger writing to w.
func NewWithWriter(w io.Writer, debug bool) *Logger {
	return &Logger{
		Logger: log.New(w, "substrate: ", log.LstdFlags),
		debug:  debug,
	}
}

// Discard returns a Logger that writes nothing.
func Discard() *Logger {
	return NewWithWriter(io.Discard, false)
}

// Info logs an informational message.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.Printf("INFO: "+msg, args...)
}

// Warn logs a recoverable problem.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.Printf("WARNING: "+msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.Printf("ERROR: "+msg, args...)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.Printf("DEBUG: "+msg, args...)
}
