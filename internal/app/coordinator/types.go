// Package coordinator owns reminder sessions: one per task, each running a
// location watcher with an arrival detector alongside a reminder scheduler,
// and reporting exactly one terminal outcome.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"georemind/internal/app/arrival"
	"georemind/internal/app/location"
	"georemind/internal/app/reminder"
	"georemind/internal/domain/task"
)

// Speaker speaks text aloud. Calls are fire-and-forget.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Alerter shows a user-facing alert. Calls are fire-and-forget.
type Alerter interface {
	NotifyUser(ctx context.Context, user task.UserContext, title, message string) error
}

// Watcher starts location subscriptions behind a permission check.
type Watcher interface {
	CheckPermission(ctx context.Context, userID string) error
	Start(ctx context.Context, userID string, cfg location.WatchConfig, handler location.Handler) (*location.Subscription, error)
}

// Metrics observes session lifecycle counters.
type Metrics interface {
	SessionStarted()
	SessionEnded(reason string, lifetime time.Duration)
	ReminderSent()
	ArrivalDetected(distanceKm float64)
	NotificationFailed(channel string)
	PersistenceFailed(op string)
}

type nopMetrics struct{}

func (nopMetrics) SessionStarted()                    {}
func (nopMetrics) SessionEnded(string, time.Duration) {}
func (nopMetrics) ReminderSent()                      {}
func (nopMetrics) ArrivalDetected(float64)            {}
func (nopMetrics) NotificationFailed(string)          {}
func (nopMetrics) PersistenceFailed(string)           {}

// State is the session lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateWatching  State = "watching"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether the session has ended.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Reason explains why a session ended.
type Reason string

const (
	ReasonArrival       Reason = "arrival"
	ReasonReminderLimit Reason = "reminder_limit"
	ReasonCancelled     Reason = "cancelled"
	ReasonReplaced      Reason = "replaced"
	ReasonShutdown      Reason = "shutdown"
)

// CompletionMethod maps a completing reason to the persisted method.
func (r Reason) CompletionMethod() (task.CompletionMethod, bool) {
	switch r {
	case ReasonArrival:
		return task.CompletionGeofenceArrival, true
	case ReasonReminderLimit:
		return task.CompletionReminderExhaustion, true
	default:
		return "", false
	}
}

// Outcome is the single terminal report of a session.
type Outcome struct {
	Reason        Reason           `json:"reason"`
	SessionID     string           `json:"session_id"`
	TaskID        string           `json:"task_id"`
	RemindersSent int              `json:"reminders_sent"`
	Arrival       *arrival.Arrival `json:"arrival,omitempty"`
	EndedAt       time.Time        `json:"ended_at"`
	// PersistErr is set when the terminal write failed. The session stays
	// terminal regardless.
	PersistErr error `json:"-"`
}

// Completed reports whether the outcome marks the task completed.
func (o Outcome) Completed() bool {
	_, ok := o.Reason.CompletionMethod()
	return ok
}

// SessionConfig holds per-session tuning.
type SessionConfig struct {
	ArrivalRadiusKm   float64
	InitialDelay      time.Duration
	ReminderInterval  time.Duration
	MaxReminders      int
	MinDistanceMeters float64
	Accuracy          location.Accuracy
}

// DefaultSessionConfig returns the stock timings: a 50 m geofence, first
// reminder 30 minutes after start, then every minute up to three reminders.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ArrivalRadiusKm:   arrival.DefaultRadiusKm,
		InitialDelay:      30 * time.Minute,
		ReminderInterval:  time.Minute,
		MaxReminders:      3,
		MinDistanceMeters: 10,
		Accuracy:          location.AccuracyHighest,
	}
}

// Validate rejects configs a session cannot run with.
func (c SessionConfig) Validate() error {
	if !(c.ArrivalRadiusKm > 0) {
		return fmt.Errorf("arrival radius must be positive, got %v", c.ArrivalRadiusKm)
	}
	if c.MinDistanceMeters < 0 {
		return fmt.Errorf("min distance must not be negative, got %v", c.MinDistanceMeters)
	}
	return c.reminderConfig().Validate()
}

func (c SessionConfig) reminderConfig() reminder.Config {
	return reminder.Config{
		InitialDelay: c.InitialDelay,
		Interval:     c.ReminderInterval,
		MaxReminders: c.MaxReminders,
	}
}

// SessionOption overrides one SessionConfig field for a single session.
type SessionOption func(*SessionConfig)

// WithSessionConfig replaces the whole config.
func WithSessionConfig(cfg SessionConfig) SessionOption {
	return func(c *SessionConfig) { *c = cfg }
}

// WithArrivalRadiusKm sets the geofence radius.
func WithArrivalRadiusKm(km float64) SessionOption {
	return func(c *SessionConfig) { c.ArrivalRadiusKm = km }
}

// WithInitialDelay sets the wait before reminders start.
func WithInitialDelay(d time.Duration) SessionOption {
	return func(c *SessionConfig) { c.InitialDelay = d }
}

// WithReminderInterval sets the spacing between reminders.
func WithReminderInterval(d time.Duration) SessionOption {
	return func(c *SessionConfig) { c.ReminderInterval = d }
}

// WithMaxReminders sets the reminder cap.
func WithMaxReminders(n int) SessionOption {
	return func(c *SessionConfig) { c.MaxReminders = n }
}

// WithMinDistanceMeters sets the location update distance filter.
func WithMinDistanceMeters(m float64) SessionOption {
	return func(c *SessionConfig) { c.MinDistanceMeters = m }
}

// WithAccuracy sets the location accuracy hint.
func WithAccuracy(a location.Accuracy) SessionOption {
	return func(c *SessionConfig) { c.Accuracy = a }
}

// SessionInfo is a read-only view of a session.
type SessionInfo struct {
	ID            string     `json:"id"`
	TaskID        string     `json:"task_id"`
	UserID        string     `json:"user_id"`
	Label         string     `json:"label"`
	State         State      `json:"state"`
	ReminderState string     `json:"reminder_state"`
	RemindersSent int        `json:"reminders_sent"`
	MaxReminders  int        `json:"max_reminders"`
	HasGeofence   bool       `json:"has_geofence"`
	StartedAt     time.Time  `json:"started_at"`
	NextReminder  *time.Time `json:"next_reminder_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	Outcome       *Outcome   `json:"outcome,omitempty"`
}
