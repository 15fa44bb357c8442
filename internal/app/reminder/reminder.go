// Package reminder implements the timed reminder escalation for one task:
// an initial delay, then a fixed number of reminders at a fixed interval.
package reminder

import (
	"fmt"
	"strings"
	"time"
)

// State is the scheduler lifecycle state.
type State int

const (
	StateIdle State = iota
	StateWaiting
	StateFiring
	StateExhausted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateFiring:
		return "firing"
	case StateExhausted:
		return "exhausted"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// IsTerminal reports whether no further transitions can occur.
func (s State) IsTerminal() bool {
	return s == StateExhausted || s == StateCancelled
}

// Config controls the escalation timing.
type Config struct {
	InitialDelay time.Duration
	Interval     time.Duration
	MaxReminders int
}

// Validate rejects timings the scheduler cannot run.
func (c Config) Validate() error {
	if c.InitialDelay < 0 {
		return fmt.Errorf("initial delay must not be negative, got %s", c.InitialDelay)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("reminder interval must be positive, got %s", c.Interval)
	}
	if c.MaxReminders < 1 {
		return fmt.Errorf("max reminders must be at least 1, got %d", c.MaxReminders)
	}
	return nil
}

// Subject is the task a scheduler reminds about.
type Subject struct {
	TaskID  string
	Label   string
	Details string
}

// Reminder is one tick's payload.
type Reminder struct {
	Subject
	Number int
	Max    int
	At     time.Time
}

// Message renders the spoken and displayed reminder text.
func (r Reminder) Message() string {
	label := strings.TrimSpace(r.Label)
	details := strings.TrimSpace(r.Details)
	switch {
	case details == "":
		return fmt.Sprintf("Reminder %d: %s", r.Number, label)
	case label == "":
		return fmt.Sprintf("Reminder %d: %s", r.Number, details)
	default:
		return fmt.Sprintf("Reminder %d: %s - %s", r.Number, label, details)
	}
}

// Final reports whether this tick reaches the cap.
func (r Reminder) Final() bool {
	return r.Number >= r.Max
}

// Snapshot is a point-in-time view of a scheduler.
type Snapshot struct {
	State         State
	RemindersSent int
	MaxReminders  int
	StartedAt     time.Time
	NextAt        time.Time
}
