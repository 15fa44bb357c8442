package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Config configures the process-wide structured log handler.
type Config struct {
	Level  string    // debug, info, warn, error
	Format string    // json, text
	Output io.Writer // defaults to stderr
}

var base atomic.Pointer[slog.Logger]

func init() {
	base.Store(newSlog(Config{}))
}

// Configure replaces the handler used by every component logger, including
// loggers created before the call.
func Configure(cfg Config) {
	base.Store(newSlog(cfg))
}

func newSlog(cfg Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(cfg.Level)) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	return slog.New(handler)
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return &componentLogger{component: component}
}

// FromSlog adapts an explicit slog logger, preserving printf-style call sites.
func FromSlog(logger *slog.Logger, component string) Logger {
	if logger == nil {
		return Nop()
	}
	return &componentLogger{component: component, logger: logger}
}

type componentLogger struct {
	component string
	logger    *slog.Logger
}

func (l *componentLogger) target() *slog.Logger {
	if l.logger != nil {
		return l.logger
	}
	return base.Load()
}

func (l *componentLogger) emit(level slog.Level, format string, args []any) {
	logger := l.target()
	if !logger.Enabled(context.Background(), level) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	if l.component != "" {
		logger.Log(context.Background(), level, msg, "component", l.component)
		return
	}
	logger.Log(context.Background(), level, msg)
}

func (l *componentLogger) Debug(format string, args ...any) {
	l.emit(slog.LevelDebug, format, args)
}

func (l *componentLogger) Info(format string, args ...any) {
	l.emit(slog.LevelInfo, format, args)
}

func (l *componentLogger) Warn(format string, args ...any) {
	l.emit(slog.LevelWarn, format, args)
}

func (l *componentLogger) Error(format string, args ...any) {
	l.emit(slog.LevelError, format, args)
}
