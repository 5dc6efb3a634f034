// Package ws forwards bus events to connected websocket clients.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"permitdesk/pkg/domain"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Subscriber yields a stream of events for one user; both the in-process and
// Redis buses satisfy it.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) <-chan domain.Event
}

// Hub upgrades HTTP connections and pumps the user's bus subscription onto
// each socket. Authentication happens upstream; the hub trusts the resolved
// user id it is handed.
type Hub struct {
	source   Subscriber
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]string
}

// NewHub wires a hub to an event source.
func NewHub(source Subscriber, log zerolog.Logger) *Hub {
	return &Hub{
		source: source,
		log:    log.With().Str("component", "ws.hub").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[*websocket.Conn]string),
	}
}

// ServeUser upgrades the request and streams userID's events until the
// client disconnects or the request context ends.
func (h *Hub) ServeUser(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("user", userID).Msg("websocket upgrade failed")
		return
	}
	h.track(conn, userID)
	defer h.drop(conn)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader goroutine exists only to observe close frames.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events := h.source.Subscribe(ctx, userID)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.log.Debug().Err(err).Str("user", userID).Msg("websocket write failed")
				return
			}
		}
	}
}

// ConnectionCount reports the number of live sockets; used by health checks.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) track(conn *websocket.Conn, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = userID
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	_ = conn.Close()
}
