package log

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/raiich/roomstream/lib/log"
)

var level = func() *slog.LevelVar {
	v := &slog.LevelVar{}
	v.Set(slog.LevelDebug)
	return v
}()

var defaultLogger = newLogger(os.Stdout)

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(&log.Handler{
		Handler: slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		}),
	})
}

// Default returns the process-wide logger.
func Default() *slog.Logger {
	return defaultLogger
}

// SetOutput redirects the process-wide logger. Not safe to call concurrently with logging.
func SetOutput(w io.Writer) {
	defaultLogger = newLogger(w)
}

func SetLevel(l slog.Level) {
	level.Set(l)
}

// ParseLevel accepts debug, info, warn and error.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(s))
	return l, err
}

func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

func DebugContext(ctx context.Context, msg string, args ...any) {
	defaultLogger.DebugContext(ctx, msg, args...)
}

func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	defaultLogger.InfoContext(ctx, msg, args...)
}

func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	defaultLogger.WarnContext(ctx, msg, args...)
}

func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	defaultLogger.ErrorContext(ctx, msg, args...)
}

func OnError(err error, args ...any) {
	if err != nil {
		defaultLogger.Error("unexpected error", append(args, "error", err)...)
	}
}
