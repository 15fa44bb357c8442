package observability

import (
	"net/http"
	"strconv"
	"time"

	"georemind/internal/infra/notification"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "georemind"

// Metrics records reminder session, notification and HTTP metrics on a
// private registry. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	sessionsActive   prometheus.Gauge
	sessionsStarted  prometheus.Counter
	sessionsEnded    *prometheus.CounterVec
	sessionLifetime  *prometheus.HistogramVec
	remindersSent    prometheus.Counter
	arrivalDistance  prometheus.Histogram
	notifyFailures   *prometheus.CounterVec
	persistFailures  *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
	httpResponseSize *prometheus.HistogramVec
}

// NewMetrics registers every collector on a fresh registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sessions", Name: "active",
			Help: "Reminder sessions currently watching.",
		}),
		sessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sessions", Name: "started_total",
			Help: "Reminder sessions started.",
		}),
		sessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sessions", Name: "ended_total",
			Help: "Reminder sessions ended, by reason.",
		}, []string{"reason"}),
		sessionLifetime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "sessions", Name: "lifetime_seconds",
			Help:    "Time from session start to its terminal state.",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 14400},
		}, []string{"reason"}),
		remindersSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reminders", Name: "sent_total",
			Help: "Periodic reminders emitted.",
		}),
		arrivalDistance: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "arrivals", Name: "distance_km",
			Help:    "Distance to the destination at the moment arrival was detected.",
			Buckets: []float64{0.005, 0.01, 0.02, 0.03, 0.04, 0.05, 0.1},
		}),
		notifyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notifications", Name: "session_failures_total",
			Help: "Speech or alert effects that failed inside a session.",
		}, []string{"channel"}),
		persistFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "failures_total",
			Help: "Terminal writes that could not be persisted.",
		}, []string{"op"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notifications", Name: "deliveries_total",
			Help: "Notification channel sends, by channel and status.",
		}, []string{"channel", "status"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests handled by the API.",
		}, []string{"method", "route", "status"}),
		httpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "latency_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpResponseSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "response_bytes",
			Help:    "HTTP response sizes.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"method", "route"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionEnded(reason string, lifetime time.Duration) {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
	m.sessionsEnded.WithLabelValues(reason).Inc()
	m.sessionLifetime.WithLabelValues(reason).Observe(lifetime.Seconds())
}

func (m *Metrics) ReminderSent() {
	if m == nil {
		return
	}
	m.remindersSent.Inc()
}

func (m *Metrics) ArrivalDetected(distanceKm float64) {
	if m == nil {
		return
	}
	m.arrivalDistance.Observe(distanceKm)
}

func (m *Metrics) NotificationFailed(channel string) {
	if m == nil {
		return
	}
	m.notifyFailures.WithLabelValues(channel).Inc()
}

func (m *Metrics) PersistenceFailed(op string) {
	if m == nil {
		return
	}
	m.persistFailures.WithLabelValues(op).Inc()
}

// ObserveDelivery is installed as the notification center observer.
func (m *Metrics) ObserveDelivery(result notification.DeliveryResult) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result.Channel, string(result.Status)).Inc()
}

// RecordHTTPRequest records one served request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration, responseBytes int64) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
	if responseBytes >= 0 {
		m.httpResponseSize.WithLabelValues(method, route).Observe(float64(responseBytes))
	}
}
