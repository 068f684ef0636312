// Package hub fans terminal output out to WebSocket clients and routes their
// input back to the session backend. It is transport only: text passes
// through untouched in both directions.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
)

const defaultBatchInterval = 50 * time.Millisecond

type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan hubBroadcast

	onInput  func(sessionID string, data string)
	onResize func(sessionID string, cols, rows int)

	token        string
	mu           sync.RWMutex
	batchEnabled bool
	batcher      *OutputBatcher
	ctx          atomic.Pointer[context.Context]
	running      atomic.Bool
}

type hubBroadcast struct {
	data      []byte
	sessionID string
}

// New creates a Hub. onInput receives raw keystroke data from clients;
// onResize receives terminal size changes. Both may be nil.
func New(token string, onInput func(string, string), onResize func(string, int, int)) *Hub {
	h := &Hub{
		clients:      make(map[string]*Client),
		register:     make(chan *Client, 16),
		unregister:   make(chan *Client, 16),
		broadcast:    make(chan hubBroadcast, 256),
		onInput:      onInput,
		onResize:     onResize,
		token:        token,
		batchEnabled: true,
	}
	h.batcher = NewOutputBatcher(defaultBatchInterval, func(msg OutputMessage) {
		h.sendBroadcast(msg)
	})
	return h
}

func (h *Hub) getContext() context.Context {
	if p := h.ctx.Load(); p != nil {
		return *p
	}
	return context.Background()
}

// Run owns the client set until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.ctx.Store(&ctx)
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			h.batcher.FlushAll()
			h.mu.Lock()
			for _, c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[string]*Client)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			go client.writePump(h.getContext())
			go client.readPump(h.getContext())
			log.Printf("client connected: %s (total: %d)", client.id, h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("client disconnected: %s (total: %d)", client.id, h.ClientCount())

		case msg := <-h.broadcast:
			h.broadcastToClients(msg)
		}
	}
}

func (h *Hub) broadcastToClients(msg hubBroadcast) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.wantsSession(msg.sessionID) {
			continue
		}
		select {
		case c.send <- msg.data:
		default:
			log.Printf("client %s send buffer full, dropping message", c.id)
		}
	}
}

// HandleWebSocket upgrades the request and registers the client. The token
// query parameter must match the hub's token.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" || token != h.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Printf("websocket accept error: %v", err)
		return
	}

	client := newClient(conn, h)
	select {
	case h.register <- client:
	default:
		log.Printf("hub not accepting connections")
		conn.Close(websocket.StatusTryAgainLater, "server busy")
	}
}

// BroadcastOutput queues a chunk of session output for delivery. Chunks for
// the same session are coalesced by the batcher before hitting the wire.
func (h *Hub) BroadcastOutput(sessionID string, data string) {
	msg := OutputMessage{
		Type:      "output",
		SessionID: sessionID,
		Data:      data,
		Ts:        time.Now().UnixMilli(),
	}
	if h.batchEnabled && h.batcher != nil {
		h.batcher.Add(msg)
	} else {
		h.sendBroadcast(msg)
	}
}

func (h *Hub) sendBroadcast(msg OutputMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("error marshaling output message: %v", err)
		return
	}
	select {
	case h.broadcast <- hubBroadcast{data: data, sessionID: msg.SessionID}:
	default:
		log.Printf("broadcast channel full, dropping message")
	}
}

// BroadcastSessions announces the current session list to all clients.
func (h *Hub) BroadcastSessions(list []SessionInfo) {
	data, err := json.Marshal(SessionsMessage{Type: "sessions", List: list})
	if err != nil {
		log.Printf("error marshaling sessions message: %v", err)
		return
	}
	select {
	case h.broadcast <- hubBroadcast{data: data}:
	default:
		log.Printf("broadcast channel full, dropping sessions message")
	}
}

// BroadcastStatus announces a session status change to all clients.
func (h *Hub) BroadcastStatus(sessionID string, status string) {
	data, err := json.Marshal(StatusMessage{Type: "status", SessionID: sessionID, Status: status})
	if err != nil {
		log.Printf("error marshaling status message: %v", err)
		return
	}
	select {
	case h.broadcast <- hubBroadcast{data: data}:
	default:
		log.Printf("broadcast channel full, dropping status message")
	}
}

// SendError sends an error message to a single client.
func (h *Hub) SendError(client *Client, message string) {
	data, err := json.Marshal(ErrorMessage{Type: "error", Message: message})
	if err != nil {
		log.Printf("error marshaling error message: %v", err)
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// FlushPendingOutput forces any batched output onto the wire.
func (h *Hub) FlushPendingOutput() {
	if h.batcher != nil {
		h.batcher.FlushAll()
	}
}

// SetBatchEnabled toggles output coalescing; mainly for tests.
func (h *Hub) SetBatchEnabled(enabled bool) {
	h.batchEnabled = enabled
}

func (h *Hub) handleInput(sessionID string, data string) {
	if h.onInput != nil {
		h.onInput(sessionID, data)
	}
}

func (h *Hub) handleResize(sessionID string, cols, rows int) {
	if h.onResize != nil {
		h.onResize(sessionID, cols, rows)
	}
}

func (h *Hub) isRunning() bool {
	return h.running.Load()
}

func (h *Hub) unregisterClient(c *Client) {
	if !h.isRunning() {
		c.conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	select {
	case h.unregister <- c:
	default:
		log.Printf("unregister channel full for client %s, forcing close", c.id)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}
}
