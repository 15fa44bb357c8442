package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"georemind/internal/app/events"
	"georemind/internal/shared/async"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout   = 10 * time.Second
	wsPongTimeout    = 60 * time.Second
	wsPingInterval   = 25 * time.Second
	wsSubscriberSize = 64
	wsMaxReplay      = 100
)

func newUpgrader(origins []string) websocket.Upgrader {
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		allowed[strings.TrimRight(strings.TrimSpace(origin), "/")] = struct{}{}
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[strings.TrimRight(origin, "/")]
			return ok
		},
	}
}

// handleEvents upgrades to a websocket and streams the caller's session
// events. ?replay=N first sends up to N buffered events.
func (h *apiHandler) handleEvents(c *gin.Context) {
	if h.deps.Events == nil {
		writeError(c, http.StatusServiceUnavailable, "event stream disabled")
		return
	}
	replay := 0
	if raw := c.Query("replay"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "replay must be a non-negative integer")
			return
		}
		replay = min(n, wsMaxReplay)
	}

	user := currentUser(c)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed for %s: %v", user.UserID, err)
		return
	}
	defer conn.Close()

	stream, unsubscribe := h.deps.Events.Subscribe(user.UserID, wsSubscriberSize)
	defer unsubscribe()
	h.logger.Info("Event stream opened for %s", user.UserID)

	closed := make(chan struct{})
	async.Go(h.logger, "events.readPump", func() { readPump(conn, closed) })

	if replay > 0 {
		for _, e := range h.deps.Events.History(user.UserID, replay) {
			if err := writeEvent(conn, e); err != nil {
				return
			}
		}
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			h.logger.Debug("Event stream closed by %s", user.UserID)
			return
		case e, ok := <-stream:
			if !ok {
				return
			}
			if err := writeEvent(conn, e); err != nil {
				h.logger.Debug("Event stream write for %s failed: %v", user.UserID, err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so control messages are processed, and
// signals when the peer goes away.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(4 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, e events.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(e)
}
