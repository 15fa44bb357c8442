package http

import (
	"georemind/internal/app/events"
	"georemind/internal/app/location"
	"georemind/internal/app/tasks"
	"georemind/internal/infra/geocode"
	"georemind/internal/infra/observability"
	"georemind/internal/shared/logging"

	"go.opentelemetry.io/otel/trace"
)

// RouterDeps holds the services the API is wired to. Places, Metrics and
// Tracer are optional.
type RouterDeps struct {
	Tasks       *tasks.Service
	Events      *events.Hub
	Positions   *location.PushSource
	Permissions *location.PermissionRegistry
	Places      geocode.Searcher
	Metrics     *observability.Metrics
	Tracer      trace.Tracer
	Logger      logging.Logger
}

// RouterConfig holds transport level settings.
type RouterConfig struct {
	AllowedOrigins []string
	RateLimit      RateLimitConfig
	Debug          bool
	MaxBodyBytes   int64
}
