package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Attribute keys stamped by the With* helpers.
const (
	KeyRank  = "rank"
	KeyRound = "round"
	KeyPhase = "phase"
)

// FileName returns the log file name for a rank. A negative rank means the
// process hosts the whole run.
func FileName(rank int) string {
	if rank < 0 {
		return "gridflow.log"
	}
	return fmt.Sprintf("gridflow.%04d.log", rank)
}

// Logger provides structured logging with context propagation.
// It is safe for concurrent use.
type Logger struct {
	logger *slog.Logger
	out    io.Closer
	mu     *sync.Mutex
	attrs  []slog.Attr
}

// NewLogger creates a Logger writing to {dir}/gridflow.log, or to stderr when
// dir is empty. Unrecognized levels fall back to INFO.
func NewLogger(dir string, level string) (*Logger, error) {
	if dir == "" {
		return newLogger(os.Stderr, nil, level), nil
	}
	return NewFileLogger(dir, FileName(-1), level, RotationConfig{})
}

// NewFileLogger creates a Logger writing to {dir}/{name} through a
// RotatingWriter.
func NewFileLogger(dir, name, level string, rotation RotationConfig) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	w, err := NewRotatingWriter(filepath.Join(dir, name), rotation)
	if err != nil {
		return nil, err
	}
	return newLogger(w, w, level), nil
}

func newLogger(w io.Writer, closer io.Closer, level string) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &Logger{
		logger: slog.New(handler),
		out:    closer,
		mu:     &sync.Mutex{},
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
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

// WithRank returns a child logger stamping the rank on every entry.
func (l *Logger) WithRank(rank int) *Logger {
	return l.withAttr(slog.Int(KeyRank, rank))
}

// WithRound returns a child logger stamping the round number.
func (l *Logger) WithRound(round uint64) *Logger {
	return l.withAttr(slog.Uint64(KeyRound, round))
}

// WithPhase returns a child logger stamping a phase name such as "prime",
// "step", "exchange" or "snapshot".
func (l *Logger) WithPhase(phase string) *Logger {
	return l.withAttr(slog.String(KeyPhase, phase))
}

// With returns a child logger with arbitrary key-value attributes. Keys and
// values alternate; a non-string key drops its pair.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	attrs := make([]slog.Attr, 0, len(l.attrs)+len(args)/2)
	attrs = append(attrs, l.attrs...)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(key, args[i+1]))
	}
	child := *l
	child.attrs = attrs
	return &child
}

func (l *Logger) withAttr(attr slog.Attr) *Logger {
	attrs := make([]slog.Attr, len(l.attrs), len(l.attrs)+1)
	copy(attrs, l.attrs)
	child := *l
	child.attrs = append(attrs, attr)
	return &child
}

// Enabled reports whether a message at level would be written.
func (l *Logger) Enabled(level slog.Level) bool {
	return l.logger.Enabled(context.Background(), level)
}

// Debug logs a message at DEBUG level.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, msg, args...)
}

// Info logs a message at INFO level.
func (l *Logger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, msg, args...)
}

// Warn logs a message at WARN level.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, msg, args...)
}

// Error logs a message at ERROR level.
func (l *Logger) Error(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
}

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	all := make([]any, 0, len(l.attrs)+len(args))
	for _, attr := range l.attrs {
		all = append(all, attr)
	}
	all = append(all, args...)
	l.logger.Log(ctx, level, msg, all...)
}

// Close flushes and closes the log file. Loggers writing to stderr, and
// child loggers after the parent was closed, are unaffected.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil {
		return nil
	}
	err := l.out.Close()
	l.out = nil
	return err
}

// NopLogger returns a Logger that discards all log output.
func NopLogger() *Logger {
	return newLogger(io.Discard, nil, LevelError)
}

// ParseLevel normalizes a level string, returning LevelInfo when the level
// is not recognized.
func ParseLevel(level string) string {
	upper := strings.ToUpper(level)
	for _, l := range ValidLevels() {
		if upper == l {
			return l
		}
	}
	return LevelInfo
}

// ValidLevels returns the list of valid log level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
