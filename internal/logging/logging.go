// Package logging wraps the stdlib log package with a leveled Printf-style
// surface. Grounded on the teacher's own application code, which never
// reaches for a structured logging library and logs via plain
// log.Printf/log.Println throughout internal/cluster and internal/store;
// see DESIGN.md for why that choice is kept rather than adopting zap (a
// controller-runtime-only dependency this module drops).
package logging

import (
	"fmt"
	"log"
	"os"
)

// Level orders the severities Info < Warn < Error.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger is a *log.Logger with a minimum level below which calls are
// dropped, so callers can silence Info noise in production without
// removing the call sites.
type Logger struct {
	out *log.Logger
	min Level
}

// New returns a Logger writing to os.Stderr with the standard date/time
// prefix, logging at min and above.
func New(min Level) *Logger {
	return &Logger{out: log.New(os.Stderr, "", log.LstdFlags), min: min}
}

func (l *Logger) logf(level Level, format string, args ...any) {
	if level < l.min {
		return
	}
	l.out.Printf("[%s] %s", level, fmt.Sprintf(format, args...))
}

// Info logs at LevelInfo.
func (l *Logger) Info(format string, args ...any) { l.logf(LevelInfo, format, args...) }

// Warn logs at LevelWarn.
func (l *Logger) Warn(format string, args ...any) { l.logf(LevelWarn, format, args...) }

// Error logs at LevelError.
func (l *Logger) Error(format string, args ...any) { l.logf(LevelError, format, args...) }

// Default is the package-level logger used by call sites that don't carry
// their own Logger (observer/connector panic recovery, mainly), matching
// the teacher's use of the global "log" package rather than a logger
// threaded through every function.
var Default = New(LevelInfo)
