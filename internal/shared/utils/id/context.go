package id

import "context"

type contextKey string

const (
	userKey      contextKey = "georemind_user_id"
	sessionKey   contextKey = "georemind_session_id"
	taskKey      contextKey = "georemind_task_id"
	requestIDKey contextKey = "georemind_request_id"
)

// IDs captures identifiers propagated through a session's side effects.
type IDs struct {
	UserID    string
	SessionID string
	TaskID    string
	RequestID string
}

// WithUserID stores the caller's user identifier on the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey, userID)
}

// WithSessionID stores the reminder session identifier on the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// WithTaskID stores the task identifier on the context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	if taskID == "" {
		return ctx
	}
	return context.WithValue(ctx, taskKey, taskID)
}

// WithRequestID stores the inbound request identifier on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithIDs applies every non-empty identifier in ids.
func WithIDs(ctx context.Context, ids IDs) context.Context {
	ctx = WithUserID(ctx, ids.UserID)
	ctx = WithSessionID(ctx, ids.SessionID)
	ctx = WithTaskID(ctx, ids.TaskID)
	return WithRequestID(ctx, ids.RequestID)
}

// UserIDFromContext returns the user identifier if present.
func UserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, userKey)
}

// SessionIDFromContext returns the session identifier if present.
func SessionIDFromContext(ctx context.Context) string {
	return stringValue(ctx, sessionKey)
}

// TaskIDFromContext returns the task identifier if present.
func TaskIDFromContext(ctx context.Context) string {
	return stringValue(ctx, taskKey)
}

// RequestIDFromContext returns the request identifier if present.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// IDsFromContext extracts all known identifiers.
func IDsFromContext(ctx context.Context) IDs {
	return IDs{
		UserID:    UserIDFromContext(ctx),
		SessionID: SessionIDFromContext(ctx),
		TaskID:    TaskIDFromContext(ctx),
		RequestID: RequestIDFromContext(ctx),
	}
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
