package id

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// Strategy identifies the identifier generation algorithm to use.
type Strategy int

const (
	// StrategyKSUID generates lexicographically sortable identifiers using KSUID.
	StrategyKSUID Strategy = iota
	// StrategyUUIDv7 generates time-ordered identifiers using UUID version 7.
	StrategyUUIDv7
)

var defaultGenerator = &Generator{strategy: StrategyKSUID}

// Generator produces prefixed identifiers for tasks, sessions and records.
type Generator struct {
	mu       sync.RWMutex
	strategy Strategy
}

// ParseStrategy maps a config value to a Strategy. Unknown values use KSUID.
func ParseStrategy(name string) Strategy {
	switch name {
	case "uuidv7", "uuid":
		return StrategyUUIDv7
	default:
		return StrategyKSUID
	}
}

// SetStrategy configures the generation strategy for the default generator.
func SetStrategy(strategy Strategy) {
	defaultGenerator.mu.Lock()
	defaultGenerator.strategy = strategy
	defaultGenerator.mu.Unlock()
}

// NewSessionID generates a reminder session identifier.
func NewSessionID() string {
	return defaultGenerator.newIdentifier("session")
}

// NewTaskID generates a task identifier.
func NewTaskID() string {
	return defaultGenerator.newIdentifier("task")
}

// NewCompletionID generates an identifier for a completed-task record.
func NewCompletionID() string {
	return defaultGenerator.newIdentifier("completion")
}

// NewActionID generates an identifier for a task action log entry.
func NewActionID() string {
	return defaultGenerator.newIdentifier("action")
}

// NewNotificationID generates an identifier for an outbound notification.
func NewNotificationID() string {
	return defaultGenerator.newIdentifier("notif")
}

// NewRequestID generates an identifier for an inbound API request.
func NewRequestID() string {
	return defaultGenerator.newIdentifier("req")
}

func (g *Generator) newIdentifier(prefix string) string {
	g.mu.RLock()
	strategy := g.strategy
	g.mu.RUnlock()

	var body string
	switch strategy {
	case StrategyUUIDv7:
		uuidv7, err := uuid.NewV7()
		if err == nil {
			body = uuidv7.String()
			break
		}
		body = ksuid.New().String()
	default:
		body = ksuid.New().String()
	}

	return fmt.Sprintf("%s-%s", prefix, body)
}
