package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Per-client send buffer; a browser that cannot drain this many events is
// dropped rather than allowed to stall the engine.
const eventBufferSize = 64

const eventWriteTimeout = 10 * time.Second

// EventMsg is one JSON frame pushed to browser clients.
type EventMsg struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// EventHub fans engine notifications out to connected WebSocket clients.
type EventHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte

	upgrader websocket.Upgrader
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[*websocket.Conn]chan []byte),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Broadcast queues one event to every client. Clients with a full buffer
// are disconnected; the browser reconnects and refetches.
func (h *EventHub) Broadcast(event string, payload interface{}) {
	data, err := json.Marshal(EventMsg{Type: event, Payload: payload})
	if err != nil {
		log.Printf("[events] marshal %s: %v", event, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- data:
		default:
			log.Printf("[events] dropping slow client %s", conn.RemoteAddr())
			delete(h.clients, conn)
			close(ch)
		}
	}
}

// ClientCount returns the number of connected browsers.
func (h *EventHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Handle upgrades one HTTP request and serves it until the peer goes away.
func (h *EventHub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[events] upgrade failed: %v", err)
		return
	}

	ch := make(chan []byte, eventBufferSize)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	log.Printf("[events] client connected from %s", conn.RemoteAddr())

	go h.writePump(conn, ch)

	// Read loop: the browser sends nothing we act on, but reading drains
	// control frames and detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(conn)
}

func (h *EventHub) writePump(conn *websocket.Conn, ch chan []byte) {
	for data := range ch {
		conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.drop(conn)
			return
		}
	}
	conn.Close()
}

func (h *EventHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(ch)
	}
	h.mu.Unlock()
	conn.Close()
}
