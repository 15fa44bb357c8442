package errors

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Sentinel errors surfaced synchronously to callers.
var (
	// ErrPermissionDenied means location permission was not granted; the
	// session never starts and callers must not retry automatically.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrAlreadyActive reports that a session for the task was already
	// running. The coordinator replaces the prior session and emits this as
	// an informational event rather than returning it.
	ErrAlreadyActive = errors.New("reminder session already active")
	// ErrInvalidTask rejects a task snapshot that cannot drive a session.
	ErrInvalidTask = errors.New("invalid task")
	// ErrNotFound reports a missing task, session or record.
	ErrNotFound = errors.New("not found")
)

// NotificationFailure wraps a failed speech or alert side effect. It is
// logged and swallowed; it never changes scheduler state.
type NotificationFailure struct {
	Channel string // "speech" or "alert" or a notification channel name
	TaskID  string
	Err     error
}

func (e *NotificationFailure) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("notification via %s failed: %v", e.Channel, e.Err)
	}
	return fmt.Sprintf("notification via %s failed for task %s: %v", e.Channel, e.TaskID, e.Err)
}

func (e *NotificationFailure) Unwrap() error {
	return e.Err
}

// PersistenceFailure wraps a failed store write. Terminal writes that fail
// are logged; the in-memory session stays terminal.
type PersistenceFailure struct {
	Op     string
	TaskID string
	Err    error
}

func (e *PersistenceFailure) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence %s failed for task %s: %v", e.Op, e.TaskID, e.Err)
}

func (e *PersistenceFailure) Unwrap() error {
	return e.Err
}

// TransientError marks an error from an outbound collaborator that may
// succeed if attempted again later.
type TransientError struct {
	Err        error
	StatusCode int
	Message    string
}

func (e *TransientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewNotificationFailure builds a NotificationFailure.
func NewNotificationFailure(channel, taskID string, err error) error {
	return &NotificationFailure{Channel: channel, TaskID: taskID, Err: err}
}

// NewPersistenceFailure builds a PersistenceFailure.
func NewPersistenceFailure(op, taskID string, err error) error {
	return &PersistenceFailure{Op: op, TaskID: taskID, Err: err}
}

// NewTransientError wraps err with a retry-able classification.
func NewTransientError(err error, statusCode int, message string) error {
	return &TransientError{Err: err, StatusCode: statusCode, Message: message}
}

// InvalidTaskf returns an error wrapping ErrInvalidTask.
func InvalidTaskf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTask, fmt.Sprintf(format, args...))
}

// NotFoundf returns an error wrapping ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// IsPermissionDenied reports whether err carries ErrPermissionDenied.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsNotFound reports whether err carries ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidTask reports whether err carries ErrInvalidTask.
func IsInvalidTask(err error) bool {
	return errors.Is(err, ErrInvalidTask)
}

// IsNotificationFailure reports whether err wraps a NotificationFailure.
func IsNotificationFailure(err error) bool {
	var target *NotificationFailure
	return errors.As(err, &target)
}

// IsPersistenceFailure reports whether err wraps a PersistenceFailure.
func IsPersistenceFailure(err error) bool {
	var target *PersistenceFailure
	return errors.As(err, &target)
}

// IsTransient checks if an outbound call error is worth attempting again.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}

	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrInvalidTask) || errors.Is(err, ErrNotFound) {
		return false
	}

	if isNetworkError(err) || isSyscallError(err) {
		return true
	}

	lower := strings.ToLower(err.Error())
	for _, code := range []string{"429", "500", "502", "503", "504"} {
		if strings.Contains(lower, code) {
			return true
		}
	}
	return false
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"timeout",
		"deadline exceeded",
		"connection reset",
		"broken pipe",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

func isSyscallError(err error) bool {
	var syscallErr syscall.Errno
	if errors.As(err, &syscallErr) {
		switch syscallErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}
	return false
}
