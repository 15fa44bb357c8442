// Package async starts background goroutines that log panics instead of
// crashing the process.
package async

import "runtime/debug"

// PanicLogger receives panic reports.
type PanicLogger interface {
	Error(format string, args ...any)
}

// Go runs fn on a new goroutine. A panic in fn is reported to logger under
// name and swallowed.
func Go(logger PanicLogger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover must be deferred directly. It reports a recovered panic with its
// stack; a nil logger drops the report.
func Recover(logger PanicLogger, name string) {
	r := recover()
	if r == nil || logger == nil {
		return
	}
	if name == "" {
		name = "anonymous"
	}
	logger.Error("goroutine %s panicked: %v\n%s", name, r, debug.Stack())
}
