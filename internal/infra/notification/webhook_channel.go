package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"georemind/internal/infra/httpclient"
	sherrors "georemind/internal/shared/errors"
	jsonx "georemind/internal/shared/json"
)

const defaultWebhookTimeout = 10 * time.Second

type webhookPayload struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id,omitempty"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Priority  int               `json:"priority"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// WebhookChannel POSTs notifications as JSON.
type WebhookChannel struct {
	name    string
	url     string
	headers map[string]string
	client  *http.Client
}

// WebhookOption customizes a WebhookChannel.
type WebhookOption func(*WebhookChannel)

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) WebhookOption {
	return func(w *WebhookChannel) {
		if d > 0 {
			w.client.Timeout = d
		}
	}
}

// WithHeaders adds static request headers.
func WithHeaders(headers map[string]string) WebhookOption {
	return func(w *WebhookChannel) {
		for k, v := range headers {
			w.headers[k] = v
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(w *WebhookChannel) {
		if client != nil {
			w.client = client
		}
	}
}

// NewWebhookChannel creates a channel posting to url.
func NewWebhookChannel(name, url string, opts ...WebhookOption) *WebhookChannel {
	w := &WebhookChannel{
		name:    name,
		url:     url,
		headers: make(map[string]string),
		client:  httpclient.New(defaultWebhookTimeout, nil),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *WebhookChannel) Name() string { return w.name }

// Send posts the payload. 5xx and 429 responses are reported as transient.
func (w *WebhookChannel) Send(ctx context.Context, n Notification) error {
	body, err := jsonx.Marshal(webhookPayload{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Body:      n.Body,
		Priority:  int(n.Priority),
		Metadata:  n.Metadata,
		CreatedAt: n.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return sherrors.NewTransientError(err, 0, fmt.Sprintf("webhook %s: %v", w.name, err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("webhook %s returned status %d", w.name, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return sherrors.NewTransientError(statusErr, resp.StatusCode, statusErr.Error())
		}
		return statusErr
	}
	return nil
}

func (w *WebhookChannel) Supports(NotificationPriority) bool { return true }
