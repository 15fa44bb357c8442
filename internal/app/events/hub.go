package events

import (
	"sync"

	"georemind/internal/shared/logging"
)

const (
	defaultHistory = 200
	defaultBuffer  = 64
)

// Hub broadcasts events to per-user subscriber channels and keeps a bounded
// per-user history for late subscribers.
type Hub struct {
	mu      sync.RWMutex
	clients map[string][]chan Event

	historyMu  sync.RWMutex
	history    map[string][]Event
	maxHistory int

	logger  logging.Logger
	metrics hubMetrics
}

type hubMetrics struct {
	mu                sync.Mutex
	totalEventsSent   int64
	droppedEvents     int64
	activeConnections int64
}

// Stats is a snapshot of hub counters.
type Stats struct {
	TotalEventsSent   int64 `json:"total_events_sent"`
	DroppedEvents     int64 `json:"dropped_events"`
	ActiveConnections int64 `json:"active_connections"`
}

// HubOption customizes a Hub.
type HubOption func(*Hub)

// WithHistorySize bounds per-user history.
func WithHistorySize(n int) HubOption {
	return func(h *Hub) {
		if n >= 0 {
			h.maxHistory = n
		}
	}
}

// WithHubLogger sets the hub logger.
func WithHubLogger(logger logging.Logger) HubOption {
	return func(h *Hub) { h.logger = logging.OrNop(logger) }
}

// NewHub creates an empty Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:    make(map[string][]chan Event),
		history:    make(map[string][]Event),
		maxHistory: defaultHistory,
		logger:     logging.NewComponentLogger("EventHub"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish implements Sink. It never blocks; non-critical events are dropped
// for subscribers whose buffer is full.
func (h *Hub) Publish(e Event) {
	if e.UserID == "" {
		h.logger.Warn("Dropping %s event without user id (task=%s)", e.Type, e.TaskID)
		return
	}
	h.storeHistory(e)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for i, ch := range h.clients[e.UserID] {
		select {
		case ch <- e:
			h.metrics.sent()
		default:
			if e.Type.Critical() && deliverCritical(ch, e) {
				h.logger.Warn("Subscriber buffer saturated for %s; dropped oldest to deliver %s (client %d)", e.UserID, e.Type, i+1)
				h.metrics.sent()
				continue
			}
			h.logger.Warn("Subscriber buffer full for %s, dropping %s (client %d)", e.UserID, e.Type, i+1)
			h.metrics.dropped()
		}
	}
}

func deliverCritical(ch chan Event, e Event) bool {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- e:
		return true
	default:
		return false
	}
}

// Subscribe registers a new subscriber for userID and returns its channel
// with a cancel func that unregisters and closes it.
func (h *Hub) Subscribe(userID string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	h.clients[userID] = append(h.clients[userID], ch)
	total := len(h.clients[userID])
	h.mu.Unlock()
	h.metrics.connect(1)
	h.logger.Debug("Subscriber registered for %s (total: %d)", userID, total)

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.unsubscribe(userID, ch) })
	}
}

func (h *Hub) unsubscribe(userID string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.clients[userID]
	for i, client := range clients {
		if client != ch {
			continue
		}
		h.clients[userID] = append(clients[:i], clients[i+1:]...)
		close(ch)
		h.metrics.connect(-1)
		if len(h.clients[userID]) == 0 {
			delete(h.clients, userID)
		}
		return
	}
}

// SubscriberCount returns the number of live subscribers for userID.
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// History returns up to limit recent events for userID, oldest first.
// A non-positive limit returns everything kept.
func (h *Hub) History(userID string, limit int) []Event {
	h.historyMu.RLock()
	defer h.historyMu.RUnlock()
	events := h.history[userID]
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// Stats returns a snapshot of the hub counters.
func (h *Hub) Stats() Stats {
	h.metrics.mu.Lock()
	defer h.metrics.mu.Unlock()
	return Stats{
		TotalEventsSent:   h.metrics.totalEventsSent,
		DroppedEvents:     h.metrics.droppedEvents,
		ActiveConnections: h.metrics.activeConnections,
	}
}

func (h *Hub) storeHistory(e Event) {
	if h.maxHistory == 0 {
		return
	}
	h.historyMu.Lock()
	defer h.historyMu.Unlock()
	events := append(h.history[e.UserID], e)
	if len(events) > h.maxHistory {
		events = events[len(events)-h.maxHistory:]
	}
	h.history[e.UserID] = events
}

func (m *hubMetrics) sent() {
	m.mu.Lock()
	m.totalEventsSent++
	m.mu.Unlock()
}

func (m *hubMetrics) dropped() {
	m.mu.Lock()
	m.droppedEvents++
	m.mu.Unlock()
}

func (m *hubMetrics) connect(delta int64) {
	m.mu.Lock()
	m.activeConnections += delta
	m.mu.Unlock()
}
