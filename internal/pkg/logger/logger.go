package logger

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/lmittmann/tint"
	"golang.org/x/sys/unix"
)

var (
	defaultLogger *slog.Logger
	once          sync.Once
	mu            sync.Mutex
)

// Initialize sets up the structured logger. Output is colorized tint when
// stderr is a terminal, JSON otherwise (service/pipe use).
func Initialize() {
	once.Do(func() {
		level := slog.LevelInfo
		if os.Getenv("LOG_LEVEL") == "DEBUG" {
			level = slog.LevelDebug
		}

		var handler slog.Handler
		if isTerminal(os.Stderr) {
			handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level})
		} else {
			handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level:     level,
				AddSource: false,
			})
		}
		defaultLogger = slog.New(handler)
	})
}

// Get returns the default structured logger
func Get() *slog.Logger {
	Initialize() // Always call Initialize, sync.Once ensures it only runs once
	mu.Lock()
	defer mu.Unlock()
	return defaultLogger
}

func isTerminal(f *os.File) bool {
	_, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	return err == nil
}

// AttachStatusBuffer tees all future log records into the given status
// buffer in addition to the primary handler. Used by the session so that
// device and cycle events remain inspectable after they scroll by.
func AttachStatusBuffer(buf *StatusBuffer) {
	base := Get()
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = slog.New(newTeeHandler(base.Handler(), NewStatusHandler(buf, slog.LevelInfo)))
}

// Info logs an info level message
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// InfoContext logs an info level message with context
func InfoContext(ctx context.Context, msg string, args ...any) {
	Get().InfoContext(ctx, msg, args...)
}

// Warn logs a warning level message
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// WarnContext logs a warning level message with context
func WarnContext(ctx context.Context, msg string, args ...any) {
	Get().WarnContext(ctx, msg, args...)
}

// Error logs an error level message
func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}

// ErrorContext logs an error level message with context
func ErrorContext(ctx context.Context, msg string, args ...any) {
	Get().ErrorContext(ctx, msg, args...)
}

// Debug logs a debug level message
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

// DebugContext logs a debug level message with context
func DebugContext(ctx context.Context, msg string, args ...any) {
	Get().DebugContext(ctx, msg, args...)
}

// With returns a logger with the given attributes
func With(args ...any) *slog.Logger {
	return Get().With(args...)
}

// WithGroup returns a logger with the given group name
func WithGroup(name string) *slog.Logger {
	return Get().WithGroup(name)
}

// teeHandler fans a record out to two handlers.
type teeHandler struct {
	primary slog.Handler
	second  slog.Handler
}

func newTeeHandler(primary, second slog.Handler) *teeHandler {
	return &teeHandler{primary: primary, second: second}
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.primary.Enabled(ctx, level) || t.second.Enabled(ctx, level)
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if t.primary.Enabled(ctx, r.Level) {
		err = t.primary.Handle(ctx, r)
	}
	if t.second.Enabled(ctx, r.Level) {
		if e := t.second.Handle(ctx, r.Clone()); err == nil {
			err = e
		}
	}
	return err
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{primary: t.primary.WithAttrs(attrs), second: t.second.WithAttrs(attrs)}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{primary: t.primary.WithGroup(name), second: t.second.WithGroup(name)}
}
