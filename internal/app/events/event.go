// Package events fans out reminder session events to live subscribers.
package events

import "time"

// Type names a session event.
type Type string

const (
	TypeSessionStarted     Type = "session.started"
	TypeSessionReplaced    Type = "session.replaced"
	TypeReminderSent       Type = "session.reminder"
	TypeArrivalDetected    Type = "session.arrival"
	TypeSessionCompleted   Type = "session.completed"
	TypeSessionCancelled   Type = "session.cancelled"
	TypePersistenceFailed  Type = "session.persistence_failed"
	TypeNotificationFailed Type = "session.notification_failed"
)

// Critical reports whether the event marks the end of a session and must
// reach subscribers even when their buffer is full.
func (t Type) Critical() bool {
	switch t {
	case TypeSessionCompleted, TypeSessionCancelled:
		return true
	default:
		return false
	}
}

// Event is one session lifecycle notification.
type Event struct {
	Type          Type      `json:"type"`
	SessionID     string    `json:"session_id"`
	TaskID        string    `json:"task_id"`
	UserID        string    `json:"user_id"`
	Reason        string    `json:"reason,omitempty"`
	RemindersSent int       `json:"reminders_sent,omitempty"`
	MaxReminders  int       `json:"max_reminders,omitempty"`
	DistanceKm    *float64  `json:"distance_km,omitempty"`
	Message       string    `json:"message,omitempty"`
	At            time.Time `json:"at"`
}

// Sink receives events. Publish must not block.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Publish implements Sink.
func (f SinkFunc) Publish(e Event) {
	if f != nil {
		f(e)
	}
}

// Nop discards every event.
var Nop Sink = SinkFunc(nil)
