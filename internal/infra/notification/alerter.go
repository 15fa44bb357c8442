package notification

import (
	"context"
	"fmt"
	"strings"

	"georemind/internal/domain/task"
)

// Alerter adapts a Center to the coordinator's user alert port.
type Alerter struct {
	center   *Center
	channels []string
	priority NotificationPriority
}

// AlerterOption customizes an Alerter.
type AlerterOption func(*Alerter)

// WithAlertChannels sends every alert to these channels instead of the default.
func WithAlertChannels(channels ...string) AlerterOption {
	return func(a *Alerter) { a.channels = channels }
}

// WithAlertPriority sets the priority of alerts.
func WithAlertPriority(p NotificationPriority) AlerterOption {
	return func(a *Alerter) { a.priority = p }
}

// NewAlerter creates an Alerter.
func NewAlerter(center *Center, opts ...AlerterOption) *Alerter {
	a := &Alerter{center: center, priority: PriorityHigh}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NotifyUser sends title and message to user. It fails only when no
// channel delivered the alert.
func (a *Alerter) NotifyUser(ctx context.Context, user task.UserContext, title, message string) error {
	n := Notification{
		UserID:   user.UserID,
		Title:    title,
		Body:     message,
		Priority: a.priority,
	}
	if user.Email != "" {
		n.Metadata = map[string]string{"email": user.Email}
	}

	var results []DeliveryResult
	if len(a.channels) > 0 {
		var err error
		if results, err = a.center.SendMulti(ctx, n, a.channels); err != nil {
			return err
		}
	} else {
		result, err := a.center.Send(ctx, n)
		if err != nil {
			return err
		}
		results = []DeliveryResult{result}
	}

	var failures []string
	for _, r := range results {
		if r.Status == StatusDelivered {
			return nil
		}
		failures = append(failures, fmt.Sprintf("%s: %s", r.Channel, r.Error))
	}
	return fmt.Errorf("alert not delivered (%s)", strings.Join(failures, "; "))
}
