// Package task defines the location-tagged task model and its store port.
//
// The engine only ever reads a snapshot of a task to run a reminder session;
// status is mutated through the store's terminal completion write.
package task

import (
	"strings"
	"time"

	"georemind/internal/domain/geo"
	sherrors "georemind/internal/shared/errors"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// IsTerminal reports whether the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted
}

// CompletionMethod records how a task reached completion.
type CompletionMethod string

const (
	CompletionGeofenceArrival    CompletionMethod = "geofence-arrival"
	CompletionReminderExhaustion CompletionMethod = "reminder-exhaustion"
	CompletionManual             CompletionMethod = "manual"
	CompletionBatch              CompletionMethod = "batch"
)

// Valid reports whether m is a known completion method.
func (m CompletionMethod) Valid() bool {
	switch m {
	case CompletionGeofenceArrival, CompletionReminderExhaustion, CompletionManual, CompletionBatch:
		return true
	default:
		return false
	}
}

// UserContext identifies the caller explicitly on every engine and store call.
type UserContext struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// Validate rejects an anonymous context.
func (u UserContext) Validate() error {
	if strings.TrimSpace(u.UserID) == "" {
		return sherrors.InvalidTaskf("user id is required")
	}
	return nil
}

// Task is one location-tagged reminder task.
type Task struct {
	ID          string     `json:"id" yaml:"id"`
	UserID      string     `json:"user_id" yaml:"user_id"`
	Label       string     `json:"label" yaml:"label"`
	Details     string     `json:"details,omitempty" yaml:"details,omitempty"`
	Source      *geo.Place `json:"source,omitempty" yaml:"source,omitempty"`
	Destination *geo.Place `json:"destination,omitempty" yaml:"destination,omitempty"`
	// ScheduledTime is an opaque caller marker; the engine never parses it.
	ScheduledTime string `json:"scheduled_time,omitempty" yaml:"scheduled_time,omitempty"`

	Status           Status           `json:"status" yaml:"status"`
	CompletionMethod CompletionMethod `json:"completion_method,omitempty" yaml:"completion_method,omitempty"`

	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// HasDestination reports whether geofence detection can run for the task.
func (t *Task) HasDestination() bool {
	return t != nil && t.Destination != nil
}

// Validate checks the fields a reminder session depends on.
func (t *Task) Validate() error {
	if t == nil {
		return sherrors.InvalidTaskf("task is nil")
	}
	if strings.TrimSpace(t.ID) == "" {
		return sherrors.InvalidTaskf("task id is required")
	}
	if t.Source != nil && !t.Source.Valid() {
		return sherrors.InvalidTaskf("source coordinate %s out of range", t.Source.Coordinate)
	}
	if t.Destination != nil && !t.Destination.Valid() {
		return sherrors.InvalidTaskf("destination coordinate %s out of range", t.Destination.Coordinate)
	}
	return nil
}

// Clone returns a deep copy so sessions hold an immutable snapshot.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	if t.Source != nil {
		src := *t.Source
		out.Source = &src
	}
	if t.Destination != nil {
		dst := *t.Destination
		out.Destination = &dst
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		out.CompletedAt = &at
	}
	return &out
}

// Completion is the terminal write applied to a task.
type Completion struct {
	TaskID        string           `json:"task_id"`
	Method        CompletionMethod `json:"completion_method"`
	CompletedAt   time.Time        `json:"completed_at"`
	ReminderCount int              `json:"reminder_count"`
}

// CompletionRecord is the history entry written alongside a completion.
type CompletionRecord struct {
	ID               string           `json:"id" yaml:"id"`
	TaskID           string           `json:"task_id" yaml:"task_id"`
	UserID           string           `json:"user_id" yaml:"user_id"`
	Label            string           `json:"label" yaml:"label"`
	Details          string           `json:"details,omitempty" yaml:"details,omitempty"`
	Source           *geo.Place       `json:"source,omitempty" yaml:"source,omitempty"`
	Destination      *geo.Place       `json:"destination,omitempty" yaml:"destination,omitempty"`
	ScheduledTime    string           `json:"scheduled_time,omitempty" yaml:"scheduled_time,omitempty"`
	CompletionMethod CompletionMethod `json:"completion_method" yaml:"completion_method"`
	CompletedAt      time.Time        `json:"completed_at" yaml:"completed_at"`
	ReminderCount    int              `json:"reminder_count" yaml:"reminder_count"`
}

// NewCompletionRecord snapshots t with the completion applied.
func NewCompletionRecord(id string, t *Task, c Completion) CompletionRecord {
	rec := CompletionRecord{
		ID:               id,
		TaskID:           c.TaskID,
		CompletionMethod: c.Method,
		CompletedAt:      c.CompletedAt,
		ReminderCount:    c.ReminderCount,
	}
	if t != nil {
		snap := t.Clone()
		rec.UserID = snap.UserID
		rec.Label = snap.Label
		rec.Details = snap.Details
		rec.Source = snap.Source
		rec.Destination = snap.Destination
		rec.ScheduledTime = snap.ScheduledTime
	}
	return rec
}

// ActionKind names an audited user or engine action.
type ActionKind string

const (
	ActionCreateTask     ActionKind = "create_task"
	ActionDeleteTask     ActionKind = "delete"
	ActionCompleteTask   ActionKind = "complete_task"
	ActionCompleteAll    ActionKind = "complete_all"
	ActionReopenTask     ActionKind = "reopen_task"
	ActionStartReminder  ActionKind = "start_reminder"
	ActionCancelReminder ActionKind = "cancel_reminder"
)

// Action is an append-only audit entry.
type Action struct {
	ID      string     `json:"id" yaml:"id"`
	UserID  string     `json:"user_id" yaml:"user_id"`
	Kind    ActionKind `json:"action" yaml:"action"`
	TaskID  string     `json:"task_id,omitempty" yaml:"task_id,omitempty"`
	TaskIDs []string   `json:"task_ids,omitempty" yaml:"task_ids,omitempty"`
	Label   string     `json:"label,omitempty" yaml:"label,omitempty"`
	Count   int        `json:"count,omitempty" yaml:"count,omitempty"`
	At      time.Time  `json:"timestamp" yaml:"timestamp"`
}
