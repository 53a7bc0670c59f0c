package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gregghy/sec-projet/eventbus"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	// Must be shorter than wsPongTimeout so the peer answers before the
	// read deadline fires.
	wsPingInterval = 45 * time.Second
	wsQueueSize    = 64
)

// Hub upgrades push connections and bridges event bus subscriptions onto
// them. Each connection gets its own bounded bus queue; a connection that
// cannot keep up is dropped by the bus and closed here, so a stalled client
// never delays a registry mutation.
type Hub struct {
	log      *slog.Logger
	bus      *eventbus.Bus
	upgrader websocket.Upgrader
}

// NewHub creates a hub over the given bus.
func NewHub(bus *eventbus.Bus, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log: log,
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The session header already gates this endpoint.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and streams events until the subscriber is
// dropped or the peer goes away. No replay: a reconnecting client re-fetches
// /auctions to resynchronize.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	// Subscribe before completing the upgrade so events published the
	// moment the client sees the 101 are already queued.
	sub := h.bus.Subscribe(wsQueueSize)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.bus.Unsubscribe(sub)
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	id := uuid.New().String()
	h.log.Info("push subscriber connected", "client_id", id)

	go h.readPump(conn, sub, id)
	go h.writePump(conn, sub, id)
}

// readPump discards client frames; its job is noticing disconnects and
// answering pings so the write side can rely on pong deadlines.
func (h *Hub) readPump(conn *websocket.Conn, sub *eventbus.Subscriber, id string) {
	defer h.bus.Unsubscribe(sub)

	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("push subscriber read error", "client_id", id, "err", err)
			}
			return
		}
	}
}

// writePump serializes bus events to the connection in subscription order.
func (h *Hub) writePump(conn *websocket.Conn, sub *eventbus.Subscriber, id string) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
		h.log.Info("push subscriber disconnected", "client_id", id)
	}()

	for {
		select {
		case ev, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				// Dropped by the bus (backpressure) or unsubscribed.
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscriber dropped"))
				return
			}

			frame, err := json.Marshal(ev)
			if err != nil {
				h.log.Error("marshal event", "err", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
