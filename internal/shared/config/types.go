package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvLookup resolves the value for an environment variable.
type EnvLookup func(string) (string, bool)

// Config is the full georemind configuration file.
type Config struct {
	IDStrategy    string              `yaml:"id_strategy"`
	Server        ServerConfig        `yaml:"server"`
	Reminder      ReminderConfig      `yaml:"reminder"`
	Store         StoreConfig         `yaml:"store"`
	Notification  NotificationConfig  `yaml:"notification"`
	Speech        SpeechConfig        `yaml:"speech"`
	Geocode       GeocodeConfig       `yaml:"geocode"`
	Digest        DigestConfig        `yaml:"digest"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	RateLimitRPS    float64  `yaml:"rate_limit_rps"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// ReminderConfig holds the defaults applied to every reminder session.
type ReminderConfig struct {
	ArrivalRadiusKm   float64  `yaml:"arrival_radius_km"`
	InitialDelay      Duration `yaml:"initial_delay"`
	Interval          Duration `yaml:"interval"`
	MaxReminders      int      `yaml:"max_reminders"`
	MinDistanceMeters float64  `yaml:"min_distance_meters"`
	Accuracy          string   `yaml:"accuracy"`
	// DefaultPermission applies to users that never reported their OS
	// location permission: "granted" or "denied".
	DefaultPermission string `yaml:"default_permission"`
}

// StoreConfig selects the task store adapter.
type StoreConfig struct {
	Driver      string `yaml:"driver"` // memory | file | postgres
	Dir         string `yaml:"dir"`
	DatabaseURL string `yaml:"database_url"`
}

// NotificationConfig configures the notification center and its channels.
type NotificationConfig struct {
	DefaultChannel string               `yaml:"default_channel"`
	HistorySize    int                  `yaml:"history_size"`
	Log            LogChannelConfig     `yaml:"log"`
	Webhook        WebhookChannelConfig `yaml:"webhook"`
	Lark           LarkChannelConfig    `yaml:"lark"`
}

// LogChannelConfig writes notifications to the process log output.
type LogChannelConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MinPriority string `yaml:"min_priority"`
}

// WebhookChannelConfig posts notifications as JSON.
type WebhookChannelConfig struct {
	Enabled     bool              `yaml:"enabled"`
	URL         string            `yaml:"url"`
	Headers     map[string]string `yaml:"headers"`
	Timeout     Duration          `yaml:"timeout"`
	MinPriority string            `yaml:"min_priority"`
}

// LarkChannelConfig delivers notifications as Lark IM messages.
type LarkChannelConfig struct {
	Enabled       bool   `yaml:"enabled"`
	AppID         string `yaml:"app_id"`
	AppSecret     string `yaml:"app_secret"`
	BaseDomain    string `yaml:"base_domain"`
	ReceiveIDType string `yaml:"receive_id_type"`
	ReceiveID     string `yaml:"receive_id"`
	MinPriority   string `yaml:"min_priority"`
}

// SpeechConfig configures spoken reminders.
type SpeechConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Provider string  `yaml:"provider"` // mock
	Sink     string  `yaml:"sink"`     // log | dir
	Dir      string  `yaml:"dir"`
	Language string  `yaml:"language"`
	Pitch    float64 `yaml:"pitch"`
	Rate     float64 `yaml:"rate"`
}

// GeocodeConfig configures the places lookup client.
type GeocodeConfig struct {
	Enabled       bool     `yaml:"enabled"`
	BaseURL       string   `yaml:"base_url"`
	UserAgent     string   `yaml:"user_agent"`
	RatePerSecond float64  `yaml:"rate_per_second"`
	CacheSize     int      `yaml:"cache_size"`
	CacheTTL      Duration `yaml:"cache_ttl"`
	Timeout       Duration `yaml:"timeout"`
}

// DigestConfig schedules the pending-task digest.
type DigestConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Schedule          string   `yaml:"schedule"`
	MaxItems          int      `yaml:"max_items"`
	Timeout           Duration `yaml:"timeout"`
	ConcurrencyPolicy string   `yaml:"concurrency_policy"` // skip | delay
}

// ObservabilityConfig toggles metrics and tracing.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig toggles the Prometheus registry and /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // otlp | zipkin
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// LoggingConfig configures the slog backend.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration decodes YAML values such as "30m" or "1500ms". Bare integers
// are read as milliseconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = 0
		return nil
	}
	if node.ShortTag() == "!!int" {
		var ms int64
		if err := node.Decode(&ms); err != nil {
			return err
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
