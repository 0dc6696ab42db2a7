// Package logger provides structured logging and metrics tracking for shuttle-schedule.
//
// Log output is produced by zerolog as one JSON object per line, or as colorized
// console lines when writing to a terminal. File output rotates through lumberjack.
// Metrics tracking includes counters, gauges, and timings with automatic
// statistical aggregation.
//
// Example usage:
//
//	logger.Info("Strategy succeeded", logger.Fields{
//	    "source": "direct",
//	    "records": 42,
//	})
//
//	logger.Error("Saving cache failed", logger.Fields{
//	    "generation": "current",
//	}, err)
//
//	metrics := logger.NewMetrics()
//	metrics.IncrCounter("fetch.failures")
//	metrics.RecordTiming("fetch.strategy.direct", duration)
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Fields represents structured log fields
type Fields map[string]interface{}

// Logger provides structured logging
type Logger struct {
	zl zerolog.Logger
}

var defaultLogger = New(LevelInfo, os.Stderr)

// New creates a logger writing JSON lines to output.
// Messages below the minimum level are discarded.
func New(level Level, output io.Writer) *Logger {
	zl := zerolog.New(output).With().Timestamp().Logger().Level(level.zerolog())
	return &Logger{zl: zl}
}

// NewMulti creates a logger that writes every entry to all writers
func NewMulti(level Level, writers ...io.Writer) *Logger {
	return New(level, zerolog.MultiLevelWriter(writers...))
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// ConsoleWriter returns a human-friendly writer for terminals
func ConsoleWriter(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
}

// FileWriter returns a file writer with rotation
func FileWriter(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
}

// ParseLevel converts a level name such as "debug" into a Level, defaulting to INFO
func ParseLevel(name string) Level {
	switch Level(strings.ToUpper(strings.TrimSpace(name))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn, "WARNING":
		return LevelWarn
	case LevelError:
		return LevelError
	}
	return LevelInfo
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

// SetDefault sets the logger used by the package-level functions
func SetDefault(logger *Logger) {
	defaultLogger = logger
}

// Default returns the package-level logger
func Default() *Logger {
	return defaultLogger
}

func (l *Logger) log(event *zerolog.Event, message string, fields Fields, err error) {
	if event == nil {
		return
	}
	if len(fields) > 0 {
		event = event.Fields(map[string]interface{}(fields))
	}
	if err != nil {
		event = event.Err(err)
	}
	event.Msg(message)
}

// Debug logs a debug message with optional structured fields
func (l *Logger) Debug(message string, fields Fields) {
	l.log(l.zl.Debug(), message, fields, nil)
}

// Info logs an informational message with optional structured fields
func (l *Logger) Info(message string, fields Fields) {
	l.log(l.zl.Info(), message, fields, nil)
}

// Warn logs a warning message with optional structured fields and error.
// Warnings are recoverable failures, such as one fetch strategy failing.
func (l *Logger) Warn(message string, fields Fields, err error) {
	l.log(l.zl.Warn(), message, fields, err)
}

// Error logs an error message with optional structured fields and an error object
func (l *Logger) Error(message string, fields Fields, err error) {
	l.log(l.zl.Error(), message, fields, err)
}

// Debug logs a debug message with the default logger
func Debug(message string, fields Fields) {
	defaultLogger.Debug(message, fields)
}

// Info logs an info message with the default logger
func Info(message string, fields Fields) {
	defaultLogger.Info(message, fields)
}

// Warn logs a warning message with the default logger
func Warn(message string, fields Fields, err error) {
	defaultLogger.Warn(message, fields, err)
}

// Error logs an error message with the default logger
func Error(message string, fields Fields, err error) {
	defaultLogger.Error(message, fields, err)
}
