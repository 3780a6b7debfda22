package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls how Setup builds the process logger
type Options struct {
	Level   slog.Level
	Format  string // "text" (colored, default) or "json"
	NoColor bool

	// File enables a rotated copy of every record. Empty disables it.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ParseLevel maps DEBUG/INFO/WARN/ERROR (any case) to a slog level, falling
// back to INFO.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// New builds a logger writing to w. tint renders the console format.
func New(w io.Writer, opts Options) *slog.Logger {
	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level})
	default:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      opts.Level,
			TimeFormat: time.RFC3339,
			NoColor:    opts.NoColor,
		})
	}
	return slog.New(handler)
}

// Setup installs the default logger. When opts.File is set, records are
// also written as JSON to a lumberjack-rotated file. The returned closer
// flushes the file and is a no-op otherwise.
func Setup(w io.Writer, opts Options) (*slog.Logger, io.Closer) {
	if w == nil {
		w = os.Stdout
	}
	logger := New(w, opts)
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		fileHandler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: opts.Level})
		logger = slog.New(fanout{logger.Handler(), fileHandler})
		closer = rotator
	}

	slog.SetDefault(logger)
	return logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Component returns the default logger tagged with a component attribute.
func Component(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

func Debug(msg string, args ...any) { slog.Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { slog.Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { slog.Default().Warn(msg, args...) }
func Error(msg string, args ...any) { slog.Default().Error(msg, args...) }

func DebugWithComponent(component, msg string, args ...any) {
	Component(component).Debug(msg, args...)
}

func InfoWithComponent(component, msg string, args ...any) {
	Component(component).Info(msg, args...)
}

func WarnWithComponent(component, msg string, args ...any) {
	Component(component).Warn(msg, args...)
}

func ErrorWithComponent(component, msg string, args ...any) {
	Component(component).Error(msg, args...)
}
