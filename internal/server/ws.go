package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/gyre/internal/app"
)

const writeWait = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// StateSource yields the engine state published by the last tick.
type StateSource interface {
	State() app.State
}

// StateHandler broadcasts engine state to websocket clients.
type StateHandler struct {
	source   StateSource
	interval time.Duration
	log      *slog.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool

	stop chan struct{}
	once sync.Once
	done chan struct{}
}

// NewStateHandler creates a StateHandler and starts its broadcast loop.
func NewStateHandler(source StateSource, interval time.Duration, log *slog.Logger) *StateHandler {
	if log == nil {
		log = slog.Default()
	}
	h := &StateHandler{
		source:   source,
		interval: interval,
		log:      log.With("component", "server.state"),
		clients:  make(map[*websocket.Conn]bool),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go h.broadcast()
	return h
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *StateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *StateHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops the broadcast loop.
func (h *StateHandler) Close() {
	h.once.Do(func() { close(h.stop) })
	<-h.done
}

// broadcast sends the engine state to all connected clients.
func (h *StateHandler) broadcast() {
	defer close(h.done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
		}

		if h.Clients() == 0 {
			continue
		}

		msg, err := json.Marshal(h.source.State())
		if err != nil {
			h.log.Error("marshal state failed", "error", err)
			continue
		}

		// Only this goroutine writes, so conns need no write lock.
		h.mu.RLock()
		for conn := range h.clients {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug("state write failed", "error", err)
				conn.Close()
			}
		}
		h.mu.RUnlock()
	}
}
