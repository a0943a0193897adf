package serve

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gigurra/mixdeck/cmd/mixer"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer = 64
	writeWait  = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Event is one message pushed to browser clients.
type Event struct {
	Type   string        `json:"type"`
	Client string        `json:"client,omitempty"`
	Change *mixer.Change `json:"change,omitempty"`
	Notice *mixer.Notice `json:"notice,omitempty"`
}

// Hub fans session changes and notices out to every connected websocket
// client. It implements mixer.Renderer and mixer.Notifier and never blocks
// the session: a client that falls behind loses messages.
type Hub struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[string]chan []byte
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, clients: map[string]chan []byte{}}
}

func (h *Hub) Render(c mixer.Change) {
	h.broadcast(Event{Type: "change", Change: &c})
}

func (h *Hub) Notify(n mixer.Notice) {
	h.broadcast(Event{Type: "notice", Notice: &n})
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("failed to encode event", "type", ev.Type, "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.clients {
		select {
		case ch <- data:
		default:
			h.log.Warn("dropping event for slow client", "client", id, "type", ev.Type)
		}
	}
}

func (h *Hub) register() (string, chan []byte) {
	id := uuid.NewString()
	ch := make(chan []byte, sendBuffer)
	h.mu.Lock()
	h.clients[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

// ServeWS upgrades the request and streams events until the client goes
// away. The first message carries the client's id.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	id, ch := h.register()
	defer h.unregister(id)
	h.log.Info("client connected", "client", id, "remote", r.RemoteAddr)

	hello, _ := json.Marshal(Event{Type: "hello", Client: id})
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		return
	}

	// Reads only detect disconnects; clients drive the mixer over the API.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			h.log.Info("client disconnected", "client", id)
			return
		case <-r.Context().Done():
			return
		case data := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Info("client write failed", "client", id, "error", err)
				return
			}
		}
	}
}
