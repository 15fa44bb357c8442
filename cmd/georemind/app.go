package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"georemind/internal/app/coordinator"
	"georemind/internal/app/digest"
	"georemind/internal/app/events"
	"georemind/internal/app/location"
	"georemind/internal/app/tasks"
	serverhttp "georemind/internal/delivery/server/http"
	"georemind/internal/domain/task"
	"georemind/internal/infra/geocode"
	"georemind/internal/infra/httpclient"
	"georemind/internal/infra/notification"
	"georemind/internal/infra/observability"
	"georemind/internal/infra/store"
	"georemind/internal/infra/tts"
	"georemind/internal/shared/config"
	"georemind/internal/shared/logging"
)

// application owns every long-lived component of the server.
type application struct {
	cfg          config.Config
	logger       logging.Logger
	store        task.Store
	releaseStore func()
	metrics      *observability.Metrics
	tracing      *observability.TracerProvider
	center       *notification.Center
	hub          *events.Hub
	positions    *location.PushSource
	permissions  *location.PermissionRegistry
	coordinator  *coordinator.Coordinator
	tasks        *tasks.Service
	places       geocode.Searcher
	digest       *digest.Scheduler
}

// buildApplication wires the store, notification, speech, location and
// reminder components from cfg. out receives log-channel notifications.
func buildApplication(ctx context.Context, cfg config.Config, out io.Writer) (*application, error) {
	app := &application{
		cfg:    cfg,
		logger: logging.NewComponentLogger("Server"),
	}

	tp, err := observability.NewTracerProvider(ctx, observability.TracingConfig{
		Enabled:        cfg.Observability.Tracing.Enabled,
		Exporter:       cfg.Observability.Tracing.Exporter,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		Insecure:       cfg.Observability.Tracing.Insecure,
		ServiceName:    cfg.Observability.Tracing.ServiceName,
		ServiceVersion: version,
		SampleRate:     cfg.Observability.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	app.tracing = tp
	if cfg.Observability.Metrics.Enabled {
		app.metrics = observability.NewMetrics()
	}

	s, release, err := store.Open(ctx, cfg.Store, logging.NewComponentLogger("Store"))
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("open store: %w", err)
	}
	app.store, app.releaseStore = s, release

	center, err := buildNotificationCenter(cfg.Notification, out, app.metrics)
	if err != nil {
		app.release(ctx)
		return nil, err
	}
	app.center = center

	speaker, err := buildSpeaker(cfg.Speech)
	if err != nil {
		app.release(ctx)
		return nil, err
	}

	defaults, err := sessionDefaults(cfg.Reminder)
	if err != nil {
		app.release(ctx)
		return nil, err
	}
	fallback, err := location.ParsePermission(cfg.Reminder.DefaultPermission)
	if err != nil {
		app.release(ctx)
		return nil, err
	}

	app.hub = events.NewHub(events.WithHubLogger(logging.NewComponentLogger("EventHub")))
	app.positions = location.NewPushSource(location.WithPushLogger(logging.NewComponentLogger("Positions")))
	app.permissions = location.NewPermissionRegistry(fallback)
	watcher := location.NewWatcher(app.positions, app.permissions,
		location.WithWatcherLogger(logging.NewComponentLogger("Watcher")))

	coordOpts := []coordinator.Option{
		coordinator.WithAlerter(notification.NewAlerter(center)),
		coordinator.WithEventSink(app.hub),
		coordinator.WithLogger(logging.NewComponentLogger("Coordinator")),
		coordinator.WithTracer(tp.Tracer()),
		coordinator.WithDefaults(defaults),
	}
	if speaker != nil {
		coordOpts = append(coordOpts, coordinator.WithSpeaker(speaker))
	}
	if app.metrics != nil {
		coordOpts = append(coordOpts, coordinator.WithMetrics(app.metrics))
	}
	app.coordinator = coordinator.New(s, watcher, coordOpts...)
	app.tasks = tasks.NewService(s, app.coordinator, tasks.WithLogger(logging.NewComponentLogger("Tasks")))

	if cfg.Geocode.Enabled {
		client, err := geocode.New(geocode.Config{
			BaseURL:       cfg.Geocode.BaseURL,
			UserAgent:     cfg.Geocode.UserAgent,
			RatePerSecond: cfg.Geocode.RatePerSecond,
			CacheSize:     cfg.Geocode.CacheSize,
			CacheTTL:      cfg.Geocode.CacheTTL.Std(),
			Timeout:       cfg.Geocode.Timeout.Std(),
		}, geocode.WithLogger(logging.NewComponentLogger("Geocode")))
		if err != nil {
			app.release(ctx)
			return nil, err
		}
		app.places = client
	}

	dg, err := digest.New(digest.Config{
		Enabled:           cfg.Digest.Enabled,
		Schedule:          cfg.Digest.Schedule,
		MaxItems:          cfg.Digest.MaxItems,
		Timeout:           cfg.Digest.Timeout.Std(),
		ConcurrencyPolicy: cfg.Digest.ConcurrencyPolicy,
	}, s, notification.NewAlerter(center, notification.WithAlertPriority(notification.PriorityNormal)),
		digest.WithLogger(logging.NewComponentLogger("Digest")))
	if err != nil {
		app.release(ctx)
		return nil, err
	}
	if err := dg.Start(ctx); err != nil {
		app.release(ctx)
		return nil, err
	}
	app.digest = dg
	return app, nil
}

// router builds the HTTP handler for the application.
func (a *application) router(debug bool) *gin.Engine {
	deps := serverhttp.RouterDeps{
		Tasks:       a.tasks,
		Events:      a.hub,
		Positions:   a.positions,
		Permissions: a.permissions,
		Places:      a.places,
		Metrics:     a.metrics,
		Tracer:      a.tracing.Tracer(),
		Logger:      logging.NewComponentLogger("HTTP"),
	}
	return serverhttp.NewRouter(deps, serverhttp.RouterConfig{
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		RateLimit: serverhttp.RateLimitConfig{
			RequestsPerSecond: a.cfg.Server.RateLimitRPS,
			Burst:             a.cfg.Server.RateLimitBurst,
		},
		Debug: debug,
	})
}

// Close stops the digest and every session, flushes traces and releases
// the store.
func (a *application) Close(ctx context.Context) error {
	var errs []error
	if a.digest != nil {
		a.digest.Stop()
	}
	if a.coordinator != nil {
		if err := a.coordinator.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown coordinator: %w", err))
		}
	}
	if a.tracing != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	if a.releaseStore != nil {
		a.releaseStore()
	}
	return errors.Join(errs...)
}

func (a *application) release(ctx context.Context) {
	if a.tracing != nil {
		_ = a.tracing.Shutdown(ctx)
	}
	if a.releaseStore != nil {
		a.releaseStore()
	}
}

// buildNotificationCenter registers every enabled channel. The first
// enabled channel becomes the default unless the configured one is enabled.
func buildNotificationCenter(cfg config.NotificationConfig, out io.Writer, metrics *observability.Metrics) (*notification.Center, error) {
	opts := []notification.CenterOption{
		notification.WithHistorySize(cfg.HistorySize),
		notification.WithCenterLogger(logging.NewComponentLogger("Notifications")),
	}
	if metrics != nil {
		opts = append(opts, notification.WithObserver(metrics.ObserveDelivery))
	}
	center := notification.NewCenter(opts...)

	var registered []string
	register := func(ch notification.Channel, minPriority string) error {
		priority, err := notification.ParsePriority(minPriority)
		if err != nil {
			return fmt.Errorf("notification channel %s: %w", ch.Name(), err)
		}
		center.RegisterChannel(ch, notification.ChannelConfig{
			Name:        ch.Name(),
			Enabled:     true,
			MinPriority: priority,
		})
		registered = append(registered, ch.Name())
		return nil
	}

	if cfg.Log.Enabled {
		if err := register(notification.NewLogChannel("log", out), cfg.Log.MinPriority); err != nil {
			return nil, err
		}
	}
	if cfg.Webhook.Enabled {
		if _, err := httpclient.ValidateOutboundURL(cfg.Webhook.URL, httpclient.URLValidationOptions{AllowPrivateNetworks: true}); err != nil {
			return nil, fmt.Errorf("notification.webhook.url: %w", err)
		}
		ch := notification.NewWebhookChannel("webhook", cfg.Webhook.URL,
			notification.WithTimeout(cfg.Webhook.Timeout.Std()),
			notification.WithHeaders(cfg.Webhook.Headers))
		if err := register(ch, cfg.Webhook.MinPriority); err != nil {
			return nil, err
		}
	}
	if cfg.Lark.Enabled {
		ch := notification.NewLarkChannel("lark", notification.LarkConfig{
			AppID:         cfg.Lark.AppID,
			AppSecret:     cfg.Lark.AppSecret,
			BaseDomain:    cfg.Lark.BaseDomain,
			ReceiveIDType: cfg.Lark.ReceiveIDType,
			ReceiveID:     cfg.Lark.ReceiveID,
		}, logging.NewComponentLogger("LarkChannel"))
		if err := register(ch, cfg.Lark.MinPriority); err != nil {
			return nil, err
		}
	}

	if len(registered) == 0 {
		return center, nil
	}
	def := strings.TrimSpace(cfg.DefaultChannel)
	if !slices.Contains(registered, def) {
		def = registered[0]
	}
	if err := center.SetDefault(def); err != nil {
		return nil, fmt.Errorf("notification.default_channel: %w", err)
	}
	return center, nil
}

// buildSpeaker returns nil when speech is disabled.
func buildSpeaker(cfg config.SpeechConfig) (*tts.Speaker, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	var provider tts.Provider
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "mock":
		provider = tts.NewMockProvider()
	default:
		return nil, fmt.Errorf("unknown speech provider %q", cfg.Provider)
	}

	logger := logging.NewComponentLogger("Speech")
	var sink tts.Sink
	switch strings.ToLower(strings.TrimSpace(cfg.Sink)) {
	case "", "log":
		sink = tts.NewLoggerSink(logger)
	case "dir":
		sink = tts.NewDirSink(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown speech sink %q", cfg.Sink)
	}

	voice := tts.DefaultVoice()
	if cfg.Language != "" {
		voice.Language = cfg.Language
	}
	if cfg.Pitch > 0 {
		voice.Pitch = cfg.Pitch
	}
	if cfg.Rate > 0 {
		voice.Rate = cfg.Rate
	}
	return tts.NewSpeaker(provider, sink, tts.WithVoice(voice), tts.WithSpeakerLogger(logger)), nil
}

// sessionDefaults converts the reminder config into coordinator defaults.
func sessionDefaults(cfg config.ReminderConfig) (coordinator.SessionConfig, error) {
	accuracy, err := location.ParseAccuracy(cfg.Accuracy)
	if err != nil {
		return coordinator.SessionConfig{}, fmt.Errorf("reminder.accuracy: %w", err)
	}
	defaults := coordinator.SessionConfig{
		ArrivalRadiusKm:   cfg.ArrivalRadiusKm,
		InitialDelay:      cfg.InitialDelay.Std(),
		ReminderInterval:  cfg.Interval.Std(),
		MaxReminders:      cfg.MaxReminders,
		MinDistanceMeters: cfg.MinDistanceMeters,
		Accuracy:          accuracy,
	}
	if err := defaults.Validate(); err != nil {
		return coordinator.SessionConfig{}, fmt.Errorf("reminder: %w", err)
	}
	return defaults, nil
}
