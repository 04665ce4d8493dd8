// Package logging wraps log/slog behind a small typed Logger, the way the
// upstream server wraps slog behind its own tag-scoped logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Config captures logging configuration options.
type Config struct {
	Level string // DEBUG, INFO, WARN, ERROR
	Dir   string // if non-empty, logs are also written to Dir/File
	File  string
}

// Logger is a structured logger scoped by tag (component name). Every
// pipeline stage derives a tagged child via WithTag so log lines carry
// session id, generation and stage name as fields.
type Logger struct {
	slog   *slog.Logger
	closer io.Closer
}

// New builds a Logger from cfg. When cfg.Dir is set, log output is
// duplicated to Dir/File in addition to stderr.
func New(cfg Config) (*Logger, error) {
	level := parseLevel(cfg.Level)

	var out io.Writer = os.Stderr
	var closer io.Closer

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		filename := cfg.File
		if filename == "" {
			filename = "server.log"
		}
		f, err := os.OpenFile(filepath.Join(cfg.Dir, filename), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		closer = f
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return &Logger{slog: slog.New(handler), closer: closer}, nil
}

func parseLevel(raw string) slog.Level {
	switch strings.ToUpper(raw) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Slog exposes the underlying structured logger for callers that want to
// attach their own typed fields.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// WithTag returns a child Logger that always attaches a "component" field.
func (l *Logger) WithTag(tag string) *Logger {
	return &Logger{slog: l.slog.With("component", tag), closer: l.closer}
}

// With returns a child Logger carrying the given key/value pairs on every
// subsequent log line, e.g. l.With("session", id, "gen", gen).
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), closer: l.closer}
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// InfoTag/WarnTag/ErrorTag log a printf-style message tagged with a
// one-off component, for call sites that don't hold a pre-scoped logger.
func (l *Logger) InfoTag(tag, format string, args ...any) {
	l.slog.Info(fmt.Sprintf(format, args...), "component", tag)
}

func (l *Logger) WarnTag(tag, format string, args ...any) {
	l.slog.Warn(fmt.Sprintf(format, args...), "component", tag)
}

func (l *Logger) ErrorTag(tag, format string, args ...any) {
	l.slog.Error(fmt.Sprintf(format, args...), "component", tag)
}

// Close releases the file sink, if any.
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// RateLimited wraps a Logger so that a given key logs at most once per
// interval, dropping the rest silently. Grounded on the Python original's
// RateLimitedLogger: periodic "still alive" / audio-level status lines
// would otherwise flood the log at one line per 20ms frame.
type RateLimited struct {
	logger   *Logger
	interval time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewRateLimited builds a RateLimited logger with the given minimum
// interval between log lines sharing the same key.
func NewRateLimited(logger *Logger, interval time.Duration) *RateLimited {
	return &RateLimited{
		logger:   logger,
		interval: interval,
		last:     make(map[string]time.Time),
	}
}

// Info logs at most once per interval for a given key. Returns true if the
// line was actually emitted.
func (r *RateLimited) Info(key, msg string, args ...any) bool {
	return r.emit(key, func() { r.logger.Info(msg, args...) })
}

func (r *RateLimited) Warn(key, msg string, args ...any) bool {
	return r.emit(key, func() { r.logger.Warn(msg, args...) })
}

func (r *RateLimited) emit(key string, log func()) bool {
	r.mu.Lock()
	now := time.Now()
	if last, ok := r.last[key]; ok && now.Sub(last) < r.interval {
		r.mu.Unlock()
		return false
	}
	r.last[key] = now
	r.mu.Unlock()

	log()
	return true
}
