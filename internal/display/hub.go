package display

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 256
)

// WSMessage is the envelope written to websocket clients.
type WSMessage struct {
	Type   string `json:"type"`
	GameID string `json:"game_id,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	gameID string
}

type outbound struct {
	gameID  string
	payload []byte
}

// Hub fans notifications out to websocket clients watching a game.
type Hub struct {
	logger     *zap.Logger
	upgrader   websocket.Upgrader
	clients    map[*client]bool
	broadcast  chan outbound
	register   chan *client
	unregister chan *client
}

// NewHub creates a hub. Call Run in its own goroutine.
func NewHub(logger *zap.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		logger:     logger,
		clients:    make(map[*client]bool),
		broadcast:  make(chan outbound, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		return set[r.Header.Get("Origin")]
	}
}

// Run owns the client set until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			if h.logger != nil {
				h.logger.Debug("display client registered", zap.String("game_id", c.gameID))
			}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				if c.gameID != msg.gameID {
					continue
				}
				select {
				case c.send <- msg.payload:
				default:
					// slow consumer
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

// Publish queues a notification for every client of its game. It never blocks the battle engine;
// notifications are dropped when the queue is full.
func (h *Hub) Publish(n Notification) {
	payload, err := json.Marshal(WSMessage{Type: n.Type, GameID: n.GameID, Data: n})
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("failed to encode notification", zap.Error(err))
		}
		return
	}
	select {
	case h.broadcast <- outbound{gameID: n.GameID, payload: payload}:
	default:
		if h.logger != nil {
			h.logger.Warn("display queue full, dropping notification",
				zap.String("game_id", n.GameID),
				zap.String("type", n.Type),
			)
		}
	}
}

// ServeWS upgrades the request and streams the game's notifications to it.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	if gameID == "" {
		gameID = r.URL.Query().Get("game")
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("websocket upgrade failed", zap.Error(err))
		}
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientSendSize), gameID: gameID}
	h.register <- c

	go c.writePump()
	go c.readPump(h)
}

// readPump only drains control frames; the display channel is one-way.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ListingFunc returns the pending battle listing of a game.
type ListingFunc func(gameID string) (any, bool)

// NewRouter exposes the websocket endpoint and a JSON listing of pending battles.
func NewRouter(h *Hub, listing ListingFunc) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", h.ServeWS)
	r.HandleFunc("/games/{id}/ws", h.ServeWS)
	r.HandleFunc("/games/{id}/battles", func(w http.ResponseWriter, req *http.Request) {
		id := mux.Vars(req)["id"]
		v, ok := listing(id)
		if !ok {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(v); err != nil && h.logger != nil {
			h.logger.Warn("failed to write listing", zap.String("game_id", id), zap.Error(err))
		}
	}).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}
