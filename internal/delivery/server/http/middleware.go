package http

import (
	"net"
	"net/http"
	"strings"
	"time"

	"georemind/internal/domain/task"
	"georemind/internal/infra/observability"
	"georemind/internal/shared/logging"
	id "georemind/internal/shared/utils/id"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	userIDHeader    = "X-User-ID"
	userEmailHeader = "X-User-Email"
	requestIDHeader = "X-Request-Id"

	userContextKey = "georemind.user"
)

func resolveRequestID(r *http.Request) string {
	for _, header := range []string{requestIDHeader, "X-Correlation-Id"} {
		if value := strings.TrimSpace(r.Header.Get(header)); value != "" {
			return value
		}
	}
	return ""
}

// requestContextMiddleware assigns a request id and stores it on the request context.
func requestContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := resolveRequestID(c.Request)
		if requestID == "" {
			requestID = id.NewRequestID()
		}
		c.Header(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(id.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// identityMiddleware turns the caller headers into an explicit UserContext.
// Requests without a user id are rejected.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(userIDHeader))
		if userID == "" {
			userID = strings.TrimSpace(c.Query("user_id"))
		}
		if userID == "" {
			abortWithError(c, http.StatusUnauthorized, "missing "+userIDHeader+" header")
			return
		}
		user := task.UserContext{UserID: userID, Email: strings.TrimSpace(c.GetHeader(userEmailHeader))}
		c.Set(userContextKey, user)
		c.Request = c.Request.WithContext(id.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

func currentUser(c *gin.Context) task.UserContext {
	if v, ok := c.Get(userContextKey); ok {
		if user, ok := v.(task.UserContext); ok {
			return user
		}
	}
	return task.UserContext{}
}

func bodyLimitMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// loggingMiddleware logs each request once it has been served.
func loggingMiddleware(logger logging.Logger) gin.HandlerFunc {
	logger = logging.OrNop(logger)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/healthz" || c.Request.URL.Path == "/metrics" {
			return
		}
		reqLogger := logging.WithPrefix(logger, "request_id", id.RequestIDFromContext(c.Request.Context()))
		reqLogger.Info("%s %s -> %d in %s (user=%s)", c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start).Round(time.Microsecond), currentUser(c).UserID)
	}
}

// observabilityMiddleware records request metrics and wraps the request in a span.
func observabilityMiddleware(metrics *observability.Metrics, tracer trace.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		var span trace.Span
		if tracer != nil {
			ctx, s := tracer.Start(c.Request.Context(), c.Request.Method+" "+routeOf(c),
				trace.WithSpanKind(trace.SpanKindServer))
			span = s
			c.Request = c.Request.WithContext(ctx)
		}

		c.Next()

		status := c.Writer.Status()
		if span != nil {
			span.SetAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", routeOf(c)),
				attribute.Int("http.status_code", status),
			)
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
			span.End()
		}
		metrics.RecordHTTPRequest(c.Request.Method, routeOf(c), status, time.Since(start), int64(c.Writer.Size()))
	}
}

func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}

// clientIP extracts the client IP from common proxy headers or the remote address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return strings.Trim(r.RemoteAddr, "[]")
}
