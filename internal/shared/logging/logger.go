package logging

import (
	"reflect"
)

// Logger is the printf-style sink shared by sessions, schedulers, stores
// and the HTTP layer. Constructors accept nil and substitute Nop, so a
// component built in a test never needs a real backend.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop discards everything.
func Nop() Logger {
	return nopLogger{}
}

// IsNil also catches a nil *T stored in the interface, which a plain
// comparison with nil misses.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	v := reflect.ValueOf(logger)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// OrNop is the guard every With*Logger option runs its argument through.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

// fanout forwards each line to every member in order.
type fanout []Logger

// Multi combines loggers, for example the component logger and a test
// recorder. Nil members are skipped and nested fan-outs are merged.
func Multi(loggers ...Logger) Logger {
	var out fanout
	for _, logger := range loggers {
		switch l := logger.(type) {
		case fanout:
			out = append(out, l...)
		default:
			if !IsNil(l) {
				out = append(out, l)
			}
		}
	}
	switch len(out) {
	case 0:
		return Nop()
	case 1:
		return out[0]
	}
	return out
}

func (f fanout) Debug(format string, args ...any) {
	for _, l := range f {
		l.Debug(format, args...)
	}
}

func (f fanout) Info(format string, args ...any) {
	for _, l := range f {
		l.Info(format, args...)
	}
}

func (f fanout) Warn(format string, args ...any) {
	for _, l := range f {
		l.Warn(format, args...)
	}
}

func (f fanout) Error(format string, args ...any) {
	for _, l := range f {
		l.Error(format, args...)
	}
}

// WithPrefix returns a logger that tags every line with key=value, as a
// session does with its id.
func WithPrefix(logger Logger, key, value string) Logger {
	if IsNil(logger) {
		return Nop()
	}
	if key == "" || value == "" {
		return logger
	}
	return &prefixLogger{logger: logger, prefix: key + "=" + value + " "}
}

type prefixLogger struct {
	logger Logger
	prefix string
}

func (l *prefixLogger) Debug(format string, args ...any) {
	l.logger.Debug(l.prefix+format, args...)
}

func (l *prefixLogger) Info(format string, args ...any) {
	l.logger.Info(l.prefix+format, args...)
}

func (l *prefixLogger) Warn(format string, args ...any) {
	l.logger.Warn(l.prefix+format, args...)
}

func (l *prefixLogger) Error(format string, args ...any) {
	l.logger.Error(l.prefix+format, args...)
}
