package notification

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"georemind/internal/domain/task"
	"georemind/internal/shared/logging"
)

type larkCall struct {
	idType string
	id     string
	text   string
}

type fakeMessenger struct {
	mu    sync.Mutex
	calls []larkCall
	err   error
}

func (f *fakeMessenger) SendText(_ context.Context, idType, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, larkCall{idType: idType, id: id, text: text})
	return f.err
}

func TestLarkChannelSendsTitleAndBody(t *testing.T) {
	m := &fakeMessenger{}
	ch := NewLarkChannelWithMessenger("lark", LarkConfig{ReceiveID: "oc_team"}, m, logging.Nop())

	err := ch.Send(context.Background(), Notification{ID: "n1", Title: "Task Completed", Body: "You reached Office!"})
	require.NoError(t, err)
	require.Len(t, m.calls, 1)
	assert.Equal(t, larkCall{idType: "chat_id", id: "oc_team", text: "Task Completed\nYou reached Office!"}, m.calls[0])
}

func TestLarkChannelRecipientOverride(t *testing.T) {
	m := &fakeMessenger{}
	ch := NewLarkChannelWithMessenger("lark", LarkConfig{ReceiveIDType: "open_id"}, m, logging.Nop())

	err := ch.Send(context.Background(), Notification{Body: "hi"})
	assert.ErrorContains(t, err, "no recipient")

	err = ch.Send(context.Background(), Notification{Body: "hi", Metadata: map[string]string{MetadataLarkReceiveID: "ou_123"}})
	require.NoError(t, err)
	assert.Equal(t, "ou_123", m.calls[0].id)
	assert.Equal(t, "open_id", m.calls[0].idType)
	assert.Equal(t, "hi", m.calls[0].text)
}

func TestAlerterDeliversThroughDefault(t *testing.T) {
	c := NewCenter(WithCenterLogger(logging.Nop()))
	ch := newMockChannel("push")
	c.RegisterChannel(ch, ChannelConfig{Enabled: true, MinPriority: PriorityLow, IsDefault: true})

	a := NewAlerter(c)
	err := a.NotifyUser(context.Background(), task.UserContext{UserID: "u1", Email: "u1@example.com"}, "Task Reminder", "Reminder 1: Buy milk")
	require.NoError(t, err)
	require.Equal(t, 1, ch.sentCount())
	sent := ch.sent[0]
	assert.Equal(t, "u1", sent.UserID)
	assert.Equal(t, PriorityHigh, sent.Priority)
	assert.Equal(t, "u1@example.com", sent.Metadata["email"])

	history := c.History("u1", 0)
	require.Len(t, history, 1)
	assert.Equal(t, "Task Reminder", history[0].Title)
	assert.Empty(t, c.History("someone-else", 0))
}

func TestAlerterSucceedsIfAnyChannelDelivers(t *testing.T) {
	c := NewCenter(WithCenterLogger(logging.Nop()))
	bad := newMockChannel("bad")
	bad.sendErr = errors.New("offline")
	good := newMockChannel("good")
	c.RegisterChannel(bad, ChannelConfig{Enabled: true})
	c.RegisterChannel(good, ChannelConfig{Enabled: true})

	a := NewAlerter(c, WithAlertChannels("bad", "good"), WithAlertPriority(PriorityNormal))
	require.NoError(t, a.NotifyUser(context.Background(), task.UserContext{UserID: "u1"}, "t", "m"))

	only := NewAlerter(c, WithAlertChannels("bad"))
	err := only.NotifyUser(context.Background(), task.UserContext{UserID: "u1"}, "t", "m")
	assert.ErrorContains(t, err, "offline")
}

func TestAlerterWithoutChannels(t *testing.T) {
	a := NewAlerter(NewCenter(WithCenterLogger(logging.Nop())))
	err := a.NotifyUser(context.Background(), task.UserContext{UserID: "u1"}, "t", "m")
	assert.ErrorIs(t, err, ErrNoChannel)
}

func TestObserverSeesEveryDelivery(t *testing.T) {
	var mu sync.Mutex
	var seen []DeliveryStatus
	c := NewCenter(WithCenterLogger(logging.Nop()), WithObserver(func(r DeliveryResult) {
		mu.Lock()
		seen = append(seen, r.Status)
		mu.Unlock()
	}))
	c.RegisterChannel(newMockChannel("a"), ChannelConfig{Enabled: true, IsDefault: true})

	_, _ = c.Send(context.Background(), Notification{Title: "x"})
	_, _ = c.Send(context.Background(), Notification{Title: "y", Channel: "missing"})
	assert.Equal(t, []DeliveryStatus{StatusDelivered, StatusFailed}, seen)
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("HIGH")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, p)
	p, err = ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityLow, p)
	_, err = ParsePriority("urgent")
	assert.Error(t, err)
}
