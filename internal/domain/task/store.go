package task

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyCompleted is returned when completing a task that is already completed.
var ErrAlreadyCompleted = errors.New("task already completed")

// ListFilter narrows ListTasks results.
type ListFilter struct {
	Status Status
	Limit  int
}

// Matches reports whether t passes the filter's field predicates.
func (f ListFilter) Matches(t *Task) bool {
	if t == nil {
		return false
	}
	return f.Status == "" || t.Status == f.Status
}

// Store is the task persistence port. Every call is scoped to
// UserContext.UserID; records owned by other users read as not found.
type Store interface {
	// EnsureSchema creates or migrates the backing schema.
	EnsureSchema(ctx context.Context) error

	// CreateTask persists a new task. Missing ID and timestamps are filled in.
	CreateTask(ctx context.Context, user UserContext, t *Task) error

	// GetTask retrieves a task by ID.
	GetTask(ctx context.Context, user UserContext, taskID string) (*Task, error)

	// ListTasks returns the user's tasks, newest first.
	ListTasks(ctx context.Context, user UserContext, filter ListFilter) ([]*Task, error)

	// DeleteTask removes a task.
	DeleteTask(ctx context.Context, user UserContext, taskID string) error

	// CompleteTask atomically marks the task completed and appends a
	// completion record. Completing a completed task returns ErrAlreadyCompleted.
	CompleteTask(ctx context.Context, user UserContext, c Completion) (*CompletionRecord, error)

	// ReopenTask moves a completed task back to pending.
	ReopenTask(ctx context.Context, user UserContext, taskID string) (*Task, error)

	// ListCompletions returns completion records at or after since, newest first.
	// A zero since returns all records.
	ListCompletions(ctx context.Context, user UserContext, since time.Time) ([]CompletionRecord, error)

	// RecordAction appends an audit entry.
	RecordAction(ctx context.Context, user UserContext, a Action) error

	// ListActions returns audit entries, newest first. An empty taskID lists all.
	ListActions(ctx context.Context, user UserContext, taskID string, limit int) ([]Action, error)

	// ListUsers returns the sorted ids of users owning at least one task.
	// It is the only call not scoped to a user and serves background jobs.
	ListUsers(ctx context.Context) ([]string, error)
}
