// Package logger provides ubifsck's leveled, structured log output: a
// package-level default logger backed by log/slog, switchable between
// text and JSON formats and gated by the run's -g debug level.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// Level is the logger's verbosity gate, six values from LevelOff (silent)
// to LevelTrace; cmd maps -g 0..4 through cfg.LogSeverity onto
// LevelError..LevelTrace.
type Level int

const (
	LevelOff Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// slogLevel maps a Level to the underlying slog.Level, placing Trace
// below slog's built-in Debug so both remain distinguishable.
func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelTrace:
		return slog.Level(-8)
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default: // LevelOff
		return slog.Level(64)
	}
}

const severityKey = "severity"

var levelNames = map[slog.Level]string{
	slog.Level(-8):    "TRACE",
	slog.LevelDebug:   "DEBUG",
	slog.LevelInfo:    "INFO",
	slog.LevelWarn:    "WARNING",
	slog.LevelError:   "ERROR",
}

type loggerFactory struct {
	out    io.Writer
	level  *slog.LevelVar
	format string // "text" or "json"
	prefix string
}

func (f *loggerFactory) replaceAttr(groups []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		if f.format == "json" {
			return a
		}
		return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339Nano))
	case slog.LevelKey:
		lvl := a.Value.Any().(slog.Level)
		name, ok := levelNames[lvl]
		if !ok {
			name = lvl.String()
		}
		return slog.String(severityKey, name)
	case slog.MessageKey:
		return slog.String(slog.MessageKey, f.prefix+a.Value.String())
	}
	return a
}

func (f *loggerFactory) createHandler() slog.Handler {
	opts := &slog.HandlerOptions{Level: f.level, ReplaceAttr: f.replaceAttr}
	if f.format == "json" {
		return slog.NewJSONHandler(f.out, opts)
	}
	return slog.NewTextHandler(f.out, opts)
}

var defaultLoggerFactory = &loggerFactory{
	out:    os.Stderr,
	level:  func() *slog.LevelVar { v := new(slog.LevelVar); v.Set(slog.LevelInfo); return v }(),
	format: "text",
}

var defaultLogger = slog.New(defaultLoggerFactory.createHandler())

// SetLevel sets the gate applied to every subsequent log call, the
// runtime effect of the CLI's -g flag.
func SetLevel(l Level) {
	defaultLoggerFactory.level.Set(l.slogLevel())
}

// SetFormat switches between "text" and "json" output; any other value
// falls back to "json", matching the permissive behavior of a
// CLI-bound format flag.
func SetFormat(format string) {
	if format != "text" && format != "json" {
		format = "json"
	}
	defaultLoggerFactory.format = format
	defaultLogger = slog.New(defaultLoggerFactory.createHandler())
}

// SetOutput redirects the default logger's sink, used by tests and by
// InitLogFile.
func SetOutput(w io.Writer) {
	defaultLoggerFactory.out = w
	defaultLogger = slog.New(defaultLoggerFactory.createHandler())
}

func log(level slog.Level, format string, args ...interface{}) {
	defaultLogger.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

func Tracef(format string, args ...interface{}) { log(slog.Level(-8), format, args...) }
func Debugf(format string, args ...interface{}) { log(slog.LevelDebug, format, args...) }
func Infof(format string, args ...interface{})  { log(slog.LevelInfo, format, args...) }
func Warnf(format string, args ...interface{})  { log(slog.LevelWarn, format, args...) }
func Errorf(format string, args ...interface{}) { log(slog.LevelError, format, args...) }
