package errors

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "explicit transient error", err: NewTransientError(errors.New("boom"), 503, ""), expected: true},
		{name: "permission denied", err: fmt.Errorf("start: %w", ErrPermissionDenied), expected: false},
		{name: "not found", err: NotFoundf("task %s", "t1"), expected: false},
		{name: "rate limit 429", err: fmt.Errorf("webhook returned 429"), expected: true},
		{name: "server error 502", err: fmt.Errorf("502 bad gateway"), expected: true},
		{name: "timeout", err: fmt.Errorf("context deadline exceeded"), expected: true},
		{name: "connection refused", err: fmt.Errorf("dial tcp 127.0.0.1:5432: connect: connection refused"), expected: true},
		{name: "syscall reset", err: fmt.Errorf("write: %w", syscall.ECONNRESET), expected: true},
		{name: "bad request 400", err: fmt.Errorf("HTTP 400: bad request"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTransient(tt.err))
		})
	}
}

func TestFailureTypesUnwrap(t *testing.T) {
	cause := errors.New("disk full")

	persist := NewPersistenceFailure("complete_task", "task-1", cause)
	assert.True(t, IsPersistenceFailure(persist))
	assert.False(t, IsNotificationFailure(persist))
	assert.ErrorIs(t, persist, cause)
	assert.Contains(t, persist.Error(), "task-1")

	notify := fmt.Errorf("tick 2: %w", NewNotificationFailure("speech", "task-1", cause))
	assert.True(t, IsNotificationFailure(notify))
	assert.ErrorIs(t, notify, cause)
	assert.Contains(t, notify.Error(), "speech")
}

func TestSentinelHelpers(t *testing.T) {
	assert.True(t, IsPermissionDenied(fmt.Errorf("watch: %w", ErrPermissionDenied)))
	assert.True(t, IsInvalidTask(InvalidTaskf("task id is empty")))
	assert.Contains(t, InvalidTaskf("radius %v", -1.0).Error(), "radius -1")
	assert.True(t, IsNotFound(NotFoundf("session for %s", "t1")))
	assert.False(t, IsNotFound(nil))
}
