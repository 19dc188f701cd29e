// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for vibes components.
//
// # Description
//
// Built on the standard library slog package, with two extensions:
// optional file output alongside stderr, and an Exporter hook for
// shipping entries to external systems.
//
//   - Default: stderr output (Unix CLI convention)
//   - Optional: file logging with automatic directory creation; file
//     logs are always JSON regardless of the stderr format
//   - Extension: LogExporter for cloud upload or log aggregation
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{Service: "vibesd", JSON: true})
//	defer logger.Close()
//	logger.Slog().Info("experiment created", "experiment", name)
//
// This package does not redact sensitive data; callers must keep tokens
// and PII out of log attributes.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Level represents log severity, ordered Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a level name (case-insensitive) to a Level, defaulting
// to Info for unknown names.
func ParseLevel(name string) Level {
	switch strings.ToLower(name) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// LogEntry is the structured record handed to a LogExporter.
type LogEntry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Service   string
	Attrs     map[string]any
}

// LogExporter ships log entries to an external system.
//
// Implementations should buffer internally and never block the logging
// path; export failures are swallowed so they cannot disrupt the program
// being logged.
type LogExporter interface {
	// Export receives one entry. Called synchronously on the logging
	// path, so it must return quickly.
	Export(ctx context.Context, entry LogEntry) error

	// Flush sends all buffered entries. Called during shutdown.
	Flush(ctx context.Context) error

	// Close releases exporter resources, after Flush.
	Close() error
}

// Config configures a Logger. The zero value logs Info and above to
// stderr as text.
type Config struct {
	// Level is the minimum level; lower entries are discarded.
	Level Level

	// LogDir enables file logging when set. The file is named
	// "{Service}_{YYYY-MM-DD}.log" and is always JSON. Supports a
	// leading ~ for the home directory.
	LogDir string

	// Service is attached to every entry as the "service" attribute.
	Service string

	// JSON switches stderr output from text to JSON.
	JSON bool

	// Quiet disables stderr output (file and exporter only).
	Quiet bool

	// Exporter optionally receives every entry. May be nil.
	Exporter LogExporter
}

// Logger is a multi-destination structured logger. Safe for concurrent
// use. Call Close() to flush and release the file and exporter.
type Logger struct {
	slogger  *slog.Logger
	file     *os.File
	exporter LogExporter
	service  string
}

// New creates a Logger for the given configuration. Setup failures
// (unwritable log dir) degrade to stderr-only logging rather than fail.
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	var handlers []slog.Handler
	if !config.Quiet {
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	l := &Logger{exporter: config.Exporter, service: config.Service}

	if config.LogDir != "" {
		dir := expandPath(config.LogDir)
		if err := os.MkdirAll(dir, 0750); err == nil {
			service := config.Service
			if service == "" {
				service = "vibes"
			}
			path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02")))
			if file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640); err == nil {
				l.file = file
				handlers = append(handlers, slog.NewJSONHandler(file, opts))
			}
		}
	}
	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
	}

	var handler slog.Handler = multiHandler(handlers)
	if config.Exporter != nil {
		handler = &exportHandler{next: handler, exporter: config.Exporter, service: config.Service}
	}

	l.slogger = slog.New(handler)
	if config.Service != "" {
		l.slogger = l.slogger.With("service", config.Service)
	}
	return l
}

// Default returns a stderr-only Info-level text logger.
func Default() *Logger {
	return New(Config{})
}

// Slog exposes the underlying slog.Logger for direct use and for handing
// to libraries that take one.
func (l *Logger) Slog() *slog.Logger {
	return l.slogger
}

// Close flushes the exporter and closes the log file.
func (l *Logger) Close() error {
	var firstErr error
	if l.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.exporter.Flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		cancel()
		if err := l.exporter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if l.file != nil {
		if err := l.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// multiHandler fans one record out to several slog handlers.
type multiHandler []slog.Handler

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range m {
		if h.Enabled(ctx, record.Level) {
			if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(multiHandler, len(m))
	for i, h := range m {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	next := make(multiHandler, len(m))
	for i, h := range m {
		next[i] = h.WithGroup(name)
	}
	return next
}

// exportHandler mirrors records to a LogExporter. Export errors are
// dropped on purpose.
type exportHandler struct {
	next     slog.Handler
	exporter LogExporter
	service  string
}

func (e *exportHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return e.next.Enabled(ctx, level)
}

func (e *exportHandler) Handle(ctx context.Context, record slog.Record) error {
	entry := LogEntry{
		Timestamp: record.Time,
		Level:     fromSlogLevel(record.Level),
		Message:   record.Message,
		Service:   e.service,
		Attrs:     make(map[string]any, record.NumAttrs()),
	}
	record.Attrs(func(attr slog.Attr) bool {
		entry.Attrs[attr.Key] = attr.Value.Any()
		return true
	})

	exportCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	_ = e.exporter.Export(exportCtx, entry)
	cancel()

	return e.next.Handle(ctx, record)
}

func (e *exportHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &exportHandler{next: e.next.WithAttrs(attrs), exporter: e.exporter, service: e.service}
}

func (e *exportHandler) WithGroup(name string) slog.Handler {
	return &exportHandler{next: e.next.WithGroup(name), exporter: e.exporter, service: e.service}
}

func fromSlogLevel(level slog.Level) Level {
	switch {
	case level <= slog.LevelDebug:
		return LevelDebug
	case level <= slog.LevelInfo:
		return LevelInfo
	case level <= slog.LevelWarn:
		return LevelWarn
	default:
		return LevelError
	}
}

// expandPath resolves a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
		}
	}
	return path
}
