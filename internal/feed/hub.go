// Package feed broadcasts protocol events to WebSocket observers. The feed
// is a read-only observation stream: dropping or missing events never affects
// the recorded state.
package feed

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event types published on the feed.
const (
	EventCheckIn  = "check-in"
	EventResponse = "response"
	EventRotation = "rotation"
	EventPayout   = "payout"
)

// Event is one protocol occurrence pushed to observers.
type Event struct {
	Type    string    `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// Hub fans events out to connected observers. Slow observers are dropped
// rather than allowed to block the broadcast path.
type Hub struct {
	log *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	send chan Event
}

const clientBuffer = 16

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*client]struct{}),
	}
}

// Broadcast pushes an event to every connected observer.
func (h *Hub) Broadcast(evtType string, at time.Time, payload any) {
	evt := Event{Type: evtType, At: at, Payload: payload}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- evt:
		default:
			// Observer cannot keep up; close its stream.
			close(c.send)
			delete(h.clients, c)
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the connection and streams events until the observer
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	c := &client{send: make(chan Event, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			close(c.send)
			delete(h.clients, c)
		}
		h.mu.Unlock()
	}()

	// Reader goroutine: its only job is detecting disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.log.Debug("websocket write failed", zap.Error(err))
				}
				return
			}
		case <-done:
			return
		}
	}
}
