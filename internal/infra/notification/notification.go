// Package notification routes user-facing alerts to delivery channels.
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// NotificationPriority orders notifications for channel filtering.
type NotificationPriority int

const (
	PriorityLow NotificationPriority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p NotificationPriority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("PRIORITY(%d)", int(p))
	}
}

// ParsePriority maps a config value to a priority. Empty means low.
func ParsePriority(value string) (NotificationPriority, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "low":
		return PriorityLow, nil
	case "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return 0, fmt.Errorf("unknown notification priority %q", value)
	}
}

// Notification is one message for one user.
type Notification struct {
	ID        string               `json:"id"`
	UserID    string               `json:"user_id,omitempty"`
	Title     string               `json:"title"`
	Body      string               `json:"body"`
	Priority  NotificationPriority `json:"priority"`
	Channel   string               `json:"channel,omitempty"`
	Metadata  map[string]string    `json:"metadata,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// DeliveryStatus is the outcome of one channel send.
type DeliveryStatus string

const (
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
)

// DeliveryResult reports one channel send.
type DeliveryResult struct {
	NotificationID string         `json:"notification_id"`
	Channel        string         `json:"channel"`
	Status         DeliveryStatus `json:"status"`
	Error          string         `json:"error,omitempty"`
	At             time.Time      `json:"at"`
}

// Channel delivers notifications over one medium.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	Supports(p NotificationPriority) bool
}

// ChannelConfig is the routing policy for a registered channel.
type ChannelConfig struct {
	Name        string               `json:"name"`
	Enabled     bool                 `json:"enabled"`
	MinPriority NotificationPriority `json:"min_priority"`
	IsDefault   bool                 `json:"is_default"`
}
