package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"georemind/internal/shared/logging"
	id "georemind/internal/shared/utils/id"
)

const defaultHistorySize = 200

// ErrNoChannel is returned when a notification names no channel and no
// default is configured.
var ErrNoChannel = errors.New("no channel specified and no default channel configured")

// HistoryEntry is a delivery result with the notification it belongs to.
type HistoryEntry struct {
	DeliveryResult
	UserID string `json:"user_id,omitempty"`
	Title  string `json:"title"`
}

type registeredChannel struct {
	channel Channel
	cfg     ChannelConfig
}

// Center routes notifications to registered channels. Critical
// notifications are also fanned out to every other channel able to carry
// them.
type Center struct {
	mu             sync.RWMutex
	channels       map[string]*registeredChannel
	defaultChannel string

	historyMu   sync.Mutex
	history     []HistoryEntry
	historySize int

	observer func(DeliveryResult)
	logger   logging.Logger
	now      func() time.Time
}

// CenterOption customizes a Center.
type CenterOption func(*Center)

// WithDefaultChannel names the channel used when a notification names none.
func WithDefaultChannel(name string) CenterOption {
	return func(c *Center) { c.defaultChannel = name }
}

// WithHistorySize bounds the delivery history.
func WithHistorySize(n int) CenterOption {
	return func(c *Center) {
		if n > 0 {
			c.historySize = n
		}
	}
}

// WithObserver is called after every channel send.
func WithObserver(fn func(DeliveryResult)) CenterOption {
	return func(c *Center) { c.observer = fn }
}

// WithCenterLogger sets the center logger.
func WithCenterLogger(logger logging.Logger) CenterOption {
	return func(c *Center) { c.logger = logging.OrNop(logger) }
}

// NewCenter creates an empty Center.
func NewCenter(opts ...CenterOption) *Center {
	c := &Center{
		channels:    make(map[string]*registeredChannel),
		historySize: defaultHistorySize,
		logger:      logging.NewComponentLogger("NotificationCenter"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterChannel adds or replaces a channel.
func (c *Center) RegisterChannel(ch Channel, cfg ChannelConfig) {
	cfg.Name = ch.Name()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[cfg.Name] = &registeredChannel{channel: ch, cfg: cfg}
	if cfg.IsDefault {
		c.defaultChannel = cfg.Name
	}
}

// UnregisterChannel removes a channel, clearing the default if it pointed there.
func (c *Center) UnregisterChannel(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, name)
	if c.defaultChannel == name {
		c.defaultChannel = ""
	}
}

// SetDefault makes a registered channel the default.
func (c *Center) SetDefault(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[name]; !ok {
		return fmt.Errorf("channel %q not found", name)
	}
	c.defaultChannel = name
	return nil
}

// ListChannels returns every registered channel config, sorted by name.
func (c *Center) ListChannels() []ChannelConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ChannelConfig, 0, len(c.channels))
	for name, rc := range c.channels {
		cfg := rc.cfg
		cfg.IsDefault = name == c.defaultChannel
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Send delivers n to its channel (or the default). Channel failures are
// reported in the result; the error is reserved for routing problems.
func (c *Center) Send(ctx context.Context, n Notification) (DeliveryResult, error) {
	n = c.prepare(n)

	target := n.Channel
	if target == "" {
		c.mu.RLock()
		target = c.defaultChannel
		c.mu.RUnlock()
	}
	if target == "" {
		return DeliveryResult{NotificationID: n.ID, Status: StatusFailed, Error: ErrNoChannel.Error(), At: c.now()}, ErrNoChannel
	}

	result := c.deliver(ctx, target, n)
	if n.Priority == PriorityCritical {
		c.fanOut(ctx, n, target)
	}
	return result, nil
}

// SendMulti delivers n to each named channel in order.
func (c *Center) SendMulti(ctx context.Context, n Notification, channels []string) ([]DeliveryResult, error) {
	if len(channels) == 0 {
		return nil, ErrNoChannel
	}
	n = c.prepare(n)
	results := make([]DeliveryResult, 0, len(channels))
	for _, name := range channels {
		results = append(results, c.deliver(ctx, name, n))
	}
	return results, nil
}

// History returns up to limit entries, newest first. An empty userID
// returns every user's entries.
func (c *Center) History(userID string, limit int) []HistoryEntry {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	out := make([]HistoryEntry, 0, len(c.history))
	for i := len(c.history) - 1; i >= 0; i-- {
		e := c.history[i]
		if userID != "" && e.UserID != userID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (c *Center) prepare(n Notification) Notification {
	if n.ID == "" {
		n.ID = id.NewNotificationID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = c.now()
	}
	if n.Priority == 0 {
		n.Priority = PriorityNormal
	}
	return n
}

func (c *Center) fanOut(ctx context.Context, n Notification, skip string) {
	c.mu.RLock()
	names := make([]string, 0, len(c.channels))
	for name, rc := range c.channels {
		if name == skip || !rc.cfg.Enabled || !rc.channel.Supports(n.Priority) {
			continue
		}
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)
	for _, name := range names {
		c.deliver(ctx, name, n)
	}
}

func (c *Center) deliver(ctx context.Context, name string, n Notification) DeliveryResult {
	result := DeliveryResult{NotificationID: n.ID, Channel: name, Status: StatusFailed}

	c.mu.RLock()
	rc, ok := c.channels[name]
	c.mu.RUnlock()

	var err error
	switch {
	case !ok:
		err = fmt.Errorf("channel %q not found", name)
	case !rc.cfg.Enabled:
		err = fmt.Errorf("channel %q is disabled", name)
	case n.Priority < rc.cfg.MinPriority:
		err = fmt.Errorf("priority %s below channel %q minimum %s", n.Priority, name, rc.cfg.MinPriority)
	case !rc.channel.Supports(n.Priority):
		err = fmt.Errorf("channel %q does not support priority %s", name, n.Priority)
	default:
		err = rc.channel.Send(ctx, n)
	}

	result.At = c.now()
	if err != nil {
		result.Error = err.Error()
		c.logger.Warn("Notification %s via %s failed: %v", n.ID, name, err)
	} else {
		result.Status = StatusDelivered
	}
	c.record(n, result)
	if c.observer != nil {
		c.observer(result)
	}
	return result
}

func (c *Center) record(n Notification, result DeliveryResult) {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	c.history = append(c.history, HistoryEntry{DeliveryResult: result, UserID: n.UserID, Title: n.Title})
	if over := len(c.history) - c.historySize; over > 0 {
		c.history = append(c.history[:0:0], c.history[over:]...)
	}
}
