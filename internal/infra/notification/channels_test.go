package notification

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sherrors "georemind/internal/shared/errors"
	jsonx "georemind/internal/shared/json"
)

func TestLogChannelFormatsLine(t *testing.T) {
	var buf bytes.Buffer
	ch := NewLogChannel("log", &buf)
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("IST", 19800))

	err := ch.Send(context.Background(), Notification{
		Title:     "Task Completed",
		Body:      "You have reached Office",
		Priority:  PriorityHigh,
		CreatedAt: at,
	})
	require.NoError(t, err)
	assert.Equal(t, "[2026-03-01T04:00:00Z] [HIGH] Task Completed: You have reached Office\n", buf.String())
	assert.True(t, ch.Supports(PriorityLow))
}

func TestWebhookChannelPostsJSON(t *testing.T) {
	var got webhookPayload
	var header http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		_ = jsonx.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ch := NewWebhookChannel("webhook", srv.URL,
		WithTimeout(2*time.Second),
		WithHeaders(map[string]string{"Authorization": "Bearer token"}))
	err := ch.Send(context.Background(), Notification{
		ID:       "notification-1",
		UserID:   "alice",
		Title:    "Task Reminder",
		Body:     "Reminder 2: Buy milk - oat milk",
		Priority: PriorityHigh,
		Metadata: map[string]string{"email": "alice@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, "Bearer token", header.Get("Authorization"))
	assert.Equal(t, "notification-1", got.ID)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, int(PriorityHigh), got.Priority)
	assert.Equal(t, "alice@example.com", got.Metadata["email"])
}

func TestWebhookChannelClassifiesFailures(t *testing.T) {
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()
	ch := NewWebhookChannel("webhook", srv.URL)

	err := ch.Send(context.Background(), Notification{Title: "Task Reminder"})
	require.Error(t, err)
	assert.True(t, sherrors.IsTransient(err))

	status = http.StatusBadRequest
	err = ch.Send(context.Background(), Notification{Title: "Task Reminder"})
	require.ErrorContains(t, err, "status 400")
	assert.False(t, sherrors.IsTransient(err))
}

func TestWebhookChannelThroughCenter(t *testing.T) {
	hits := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhookPayload
		body, _ := io.ReadAll(r.Body)
		_ = jsonx.Unmarshal(body, &p)
		hits <- p.Title
	}))
	defer srv.Close()

	c := newTestCenter()
	c.RegisterChannel(NewWebhookChannel("webhook", srv.URL), ChannelConfig{Enabled: true, IsDefault: true})
	res, err := c.Send(context.Background(), Notification{Title: "Pending tasks"})
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, res.Status)
	assert.Equal(t, "Pending tasks", <-hits)
}
