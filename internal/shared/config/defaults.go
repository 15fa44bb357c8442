package config

import "time"

const (
	DefaultServerAddr        = ":8080"
	DefaultArrivalRadiusKm   = 0.05
	DefaultInitialDelay      = 30 * time.Minute
	DefaultReminderInterval  = 60 * time.Second
	DefaultMaxReminders      = 3
	DefaultMinDistanceMeters = 10
	DefaultAccuracy          = "highest"
	DefaultNominatimURL      = "https://nominatim.openstreetmap.org"
	DefaultDigestSchedule    = "0 8 * * *"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		IDStrategy: "ksuid",
		Server: ServerConfig{
			Addr:            DefaultServerAddr,
			RateLimitRPS:    20,
			RateLimitBurst:  40,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Reminder: ReminderConfig{
			ArrivalRadiusKm:   DefaultArrivalRadiusKm,
			InitialDelay:      Duration(DefaultInitialDelay),
			Interval:          Duration(DefaultReminderInterval),
			MaxReminders:      DefaultMaxReminders,
			MinDistanceMeters: DefaultMinDistanceMeters,
			Accuracy:          DefaultAccuracy,
			DefaultPermission: "denied",
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		Notification: NotificationConfig{
			DefaultChannel: "log",
			HistorySize:    200,
			Log:            LogChannelConfig{Enabled: true, MinPriority: "low"},
			Webhook:        WebhookChannelConfig{Timeout: Duration(5 * time.Second), MinPriority: "normal"},
			Lark:           LarkChannelConfig{ReceiveIDType: "chat_id", MinPriority: "normal"},
		},
		Speech: SpeechConfig{
			Enabled:  true,
			Provider: "mock",
			Sink:     "log",
			Language: "en",
			Pitch:    1.0,
			Rate:     0.9,
		},
		Geocode: GeocodeConfig{
			BaseURL:       DefaultNominatimURL,
			UserAgent:     "georemind/1.0",
			RatePerSecond: 1,
			CacheSize:     512,
			CacheTTL:      Duration(time.Hour),
			Timeout:       Duration(10 * time.Second),
		},
		Digest: DigestConfig{
			Schedule:          DefaultDigestSchedule,
			MaxItems:          5,
			Timeout:           Duration(time.Minute),
			ConcurrencyPolicy: "skip",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{Enabled: true},
			Tracing: TracingConfig{Exporter: "otlp", ServiceName: "georemind", SampleRate: 1},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
