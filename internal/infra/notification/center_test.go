package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"georemind/internal/shared/logging"
)

type mockChannel struct {
	name    string
	mu      sync.Mutex
	sent    []Notification
	sendErr error
	maxOnly bool
}

func newMockChannel(name string) *mockChannel {
	return &mockChannel{name: name}
}

func (m *mockChannel) Name() string { return m.name }

func (m *mockChannel) Send(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, n)
	return nil
}

func (m *mockChannel) Supports(p NotificationPriority) bool {
	return !m.maxOnly || p == PriorityCritical
}

func (m *mockChannel) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func newTestCenter(opts ...CenterOption) *Center {
	return NewCenter(append([]CenterOption{WithCenterLogger(logging.Nop())}, opts...)...)
}

func TestCenterRoutesToNamedOrDefaultChannel(t *testing.T) {
	c := newTestCenter()
	phone := newMockChannel("phone")
	chat := newMockChannel("chat")
	c.RegisterChannel(phone, ChannelConfig{Enabled: true, IsDefault: true})
	c.RegisterChannel(chat, ChannelConfig{Enabled: true})

	res, err := c.Send(context.Background(), Notification{UserID: "alice", Title: "Task Reminder", Body: "Reminder 1: Buy milk"})
	require.NoError(t, err)
	assert.Equal(t, "phone", res.Channel)
	assert.Equal(t, StatusDelivered, res.Status)

	res, err = c.Send(context.Background(), Notification{UserID: "alice", Title: "Task Completed", Channel: "chat"})
	require.NoError(t, err)
	assert.Equal(t, "chat", res.Channel)
	assert.Equal(t, 1, phone.sentCount())
	assert.Equal(t, 1, chat.sentCount())
}

func TestCenterFillsIDTimestampAndPriority(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := newTestCenter()
	c.now = func() time.Time { return at }
	ch := newMockChannel("phone")
	c.RegisterChannel(ch, ChannelConfig{Enabled: true, IsDefault: true})

	res, err := c.Send(context.Background(), Notification{Title: "Task Reminder"})
	require.NoError(t, err)
	require.Len(t, ch.sent, 1)
	sent := ch.sent[0]
	assert.NotEmpty(t, sent.ID)
	assert.Equal(t, sent.ID, res.NotificationID)
	assert.Equal(t, at, sent.CreatedAt)
	assert.Equal(t, PriorityNormal, sent.Priority)
}

func TestCenterWithoutDefaultFails(t *testing.T) {
	c := newTestCenter()
	c.RegisterChannel(newMockChannel("chat"), ChannelConfig{Enabled: true})

	res, err := c.Send(context.Background(), Notification{Title: "Task Reminder"})
	assert.ErrorIs(t, err, ErrNoChannel)
	assert.Equal(t, StatusFailed, res.Status)

	_, err = c.SendMulti(context.Background(), Notification{Title: "Task Reminder"}, nil)
	assert.ErrorIs(t, err, ErrNoChannel)
}

func TestCenterReportsChannelFailures(t *testing.T) {
	c := newTestCenter()
	broken := newMockChannel("broken")
	broken.sendErr = errors.New("gateway timeout")
	quiet := newMockChannel("quiet")
	off := newMockChannel("off")
	c.RegisterChannel(broken, ChannelConfig{Enabled: true})
	c.RegisterChannel(quiet, ChannelConfig{Enabled: true, MinPriority: PriorityHigh})
	c.RegisterChannel(off, ChannelConfig{Enabled: false})

	results, err := c.SendMulti(context.Background(),
		Notification{UserID: "alice", Title: "Task Reminder", Priority: PriorityNormal},
		[]string{"broken", "quiet", "off", "missing"})
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, r := range results {
		assert.Equal(t, StatusFailed, r.Status, r.Channel)
	}
	assert.Contains(t, results[0].Error, "gateway timeout")
	assert.Contains(t, results[1].Error, "below channel")
	assert.Contains(t, results[2].Error, "disabled")
	assert.Contains(t, results[3].Error, "not found")
	assert.Zero(t, quiet.sentCount())
	assert.Zero(t, off.sentCount())
}

func TestCenterFansOutCriticalNotifications(t *testing.T) {
	c := newTestCenter()
	phone := newMockChannel("phone")
	chat := newMockChannel("chat")
	pager := newMockChannel("pager")
	pager.maxOnly = true
	off := newMockChannel("off")
	c.RegisterChannel(phone, ChannelConfig{Enabled: true, IsDefault: true})
	c.RegisterChannel(chat, ChannelConfig{Enabled: true})
	c.RegisterChannel(pager, ChannelConfig{Enabled: true})
	c.RegisterChannel(off, ChannelConfig{Enabled: false})

	_, err := c.Send(context.Background(), Notification{Title: "Location unavailable", Priority: PriorityCritical})
	require.NoError(t, err)
	assert.Equal(t, 1, phone.sentCount())
	assert.Equal(t, 1, chat.sentCount())
	assert.Equal(t, 1, pager.sentCount())
	assert.Zero(t, off.sentCount())

	_, err = c.Send(context.Background(), Notification{Title: "Task Reminder", Priority: PriorityHigh})
	require.NoError(t, err)
	assert.Equal(t, 2, phone.sentCount())
	assert.Equal(t, 1, chat.sentCount())
}

func TestCenterChannelRegistry(t *testing.T) {
	c := newTestCenter()
	c.RegisterChannel(newMockChannel("webhook"), ChannelConfig{Enabled: true})
	c.RegisterChannel(newMockChannel("log"), ChannelConfig{Enabled: true, IsDefault: true})

	channels := c.ListChannels()
	require.Len(t, channels, 2)
	assert.Equal(t, "log", channels[0].Name)
	assert.True(t, channels[0].IsDefault)
	assert.False(t, channels[1].IsDefault)

	require.NoError(t, c.SetDefault("webhook"))
	assert.Error(t, c.SetDefault("lark"))
	assert.True(t, c.ListChannels()[1].IsDefault)

	c.UnregisterChannel("webhook")
	_, err := c.Send(context.Background(), Notification{Title: "Task Reminder"})
	assert.ErrorIs(t, err, ErrNoChannel)
	assert.Len(t, c.ListChannels(), 1)
}

func TestCenterHistoryIsBoundedAndNewestFirst(t *testing.T) {
	c := newTestCenter(WithHistorySize(3))
	c.RegisterChannel(newMockChannel("phone"), ChannelConfig{Enabled: true, IsDefault: true})

	for i := 1; i <= 5; i++ {
		user := "alice"
		if i%2 == 0 {
			user = "bob"
		}
		_, err := c.Send(context.Background(), Notification{UserID: user, Title: fmt.Sprintf("Reminder %d", i)})
		require.NoError(t, err)
	}

	all := c.History("", 0)
	require.Len(t, all, 3)
	assert.Equal(t, "Reminder 5", all[0].Title)
	assert.Equal(t, "Reminder 3", all[2].Title)

	alice := c.History("alice", 1)
	require.Len(t, alice, 1)
	assert.Equal(t, "Reminder 5", alice[0].Title)
	assert.Len(t, c.History("bob", 0), 1)
}

func TestCenterConcurrentSends(t *testing.T) {
	c := newTestCenter(WithHistorySize(1000))
	ch := newMockChannel("phone")
	c.RegisterChannel(ch, ChannelConfig{Enabled: true, IsDefault: true})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = c.Send(context.Background(), Notification{UserID: fmt.Sprintf("user-%d", i%5), Title: "Task Reminder"})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, ch.sentCount())
	assert.Len(t, c.History("", 0), 50)
}

func TestPriorityString(t *testing.T) {
	assert.Equal(t, "NORMAL", PriorityNormal.String())
	assert.Equal(t, "CRITICAL", PriorityCritical.String())
	assert.Equal(t, "PRIORITY(9)", NotificationPriority(9).String())
}
