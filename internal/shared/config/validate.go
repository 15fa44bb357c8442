package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationIssue represents a single validation finding.
type ValidationIssue struct {
	ID      string
	Message string
}

// ValidationReport summarizes config validation findings.
type ValidationReport struct {
	Errors   []ValidationIssue
	Warnings []ValidationIssue
}

// HasErrors reports whether the validation report contains blocking errors.
func (r ValidationReport) HasErrors() bool {
	return len(r.Errors) > 0
}

// Err joins blocking issues into one error, or returns nil.
func (r ValidationReport) Err() error {
	if !r.HasErrors() {
		return nil
	}
	errs := make([]error, 0, len(r.Errors))
	for _, issue := range r.Errors {
		errs = append(errs, fmt.Errorf("%s: %s", issue.ID, issue.Message))
	}
	return errors.Join(errs...)
}

// Validate checks the configuration for values the engine cannot run with.
func Validate(cfg Config) ValidationReport {
	var report ValidationReport
	addErr := func(id, format string, args ...any) {
		report.Errors = append(report.Errors, ValidationIssue{ID: id, Message: fmt.Sprintf(format, args...)})
	}
	addWarn := func(id, format string, args ...any) {
		report.Warnings = append(report.Warnings, ValidationIssue{ID: id, Message: fmt.Sprintf(format, args...)})
	}

	r := cfg.Reminder
	if r.ArrivalRadiusKm <= 0 {
		addErr("reminder.arrival_radius_km", "must be positive, got %v", r.ArrivalRadiusKm)
	}
	if r.InitialDelay < 0 {
		addErr("reminder.initial_delay", "must not be negative, got %s", r.InitialDelay)
	}
	if r.Interval <= 0 {
		addErr("reminder.interval", "must be positive, got %s", r.Interval)
	}
	if r.MaxReminders < 1 {
		addErr("reminder.max_reminders", "must be at least 1, got %d", r.MaxReminders)
	}
	if r.MinDistanceMeters < 0 {
		addErr("reminder.min_distance_meters", "must not be negative, got %v", r.MinDistanceMeters)
	}
	switch strings.ToLower(strings.TrimSpace(r.DefaultPermission)) {
	case "granted", "denied":
	default:
		addErr("reminder.default_permission", "must be granted or denied, got %q", r.DefaultPermission)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Store.Driver)) {
	case "memory":
	case "file":
		if strings.TrimSpace(cfg.Store.Dir) == "" {
			addErr("store.dir", "required for the file driver")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Store.DatabaseURL) == "" {
			addErr("store.database_url", "required for the postgres driver")
		}
	default:
		addErr("store.driver", "unknown driver %q", cfg.Store.Driver)
	}

	n := cfg.Notification
	if n.Webhook.Enabled && strings.TrimSpace(n.Webhook.URL) == "" {
		addErr("notification.webhook.url", "required when the webhook channel is enabled")
	}
	if n.Lark.Enabled {
		if strings.TrimSpace(n.Lark.AppID) == "" || strings.TrimSpace(n.Lark.AppSecret) == "" {
			addErr("notification.lark", "app_id and app_secret are required when lark is enabled")
		}
		if strings.TrimSpace(n.Lark.ReceiveID) == "" {
			addErr("notification.lark.receive_id", "required when lark is enabled")
		}
	}
	if !n.Log.Enabled && !n.Webhook.Enabled && !n.Lark.Enabled {
		addWarn("notification", "no channel enabled; alerts will be dropped")
	}

	if cfg.Speech.Enabled && cfg.Speech.Sink == "dir" && strings.TrimSpace(cfg.Speech.Dir) == "" {
		addErr("speech.dir", "required for the dir sink")
	}
	if cfg.Geocode.Enabled && cfg.Geocode.RatePerSecond <= 0 {
		addErr("geocode.rate_per_second", "must be positive")
	}
	if cfg.Digest.Enabled {
		if strings.TrimSpace(cfg.Digest.Schedule) == "" {
			addErr("digest.schedule", "required when the digest is enabled")
		}
		if cfg.Digest.MaxItems < 0 {
			addErr("digest.max_items", "must not be negative, got %d", cfg.Digest.MaxItems)
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Digest.ConcurrencyPolicy)) {
	case "", "skip", "delay":
	default:
		addErr("digest.concurrency_policy", "must be skip or delay, got %q", cfg.Digest.ConcurrencyPolicy)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Observability.Tracing.Exporter)) {
	case "", "otlp", "zipkin":
	default:
		addErr("observability.tracing.exporter", "must be otlp or zipkin, got %q", cfg.Observability.Tracing.Exporter)
	}
	if cfg.Observability.Tracing.Enabled && strings.TrimSpace(cfg.Observability.Tracing.Endpoint) == "" {
		addWarn("observability.tracing.endpoint", "empty endpoint uses the exporter default")
	}
	return report
}
