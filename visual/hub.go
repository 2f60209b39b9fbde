package visual

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/replica_sim/logging"
)

// Hub streams frames to websocket clients and collects their control
// commands. New clients receive the latest frame on connect.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *logging.Logger

	mu       sync.RWMutex
	clients  map[*websocket.Conn]bool
	latest   []byte
	headless bool

	commands  chan ControlCommand
	register  chan *websocket.Conn
	remove    chan *websocket.Conn
	broadcast chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub starts a hub. buffer bounds queued commands.
func NewHub(buffer int, logger *logging.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	h := &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:    logger.Named("hub"),
		clients:   make(map[*websocket.Conn]bool),
		commands:  make(chan ControlCommand, buffer),
		register:  make(chan *websocket.Conn),
		remove:    make(chan *websocket.Conn),
		broadcast: make(chan []byte, 16),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
			}
			h.clients = make(map[*websocket.Conn]bool)
			h.mu.Unlock()
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
		case conn := <-h.remove:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					h.logger.Warnf("failed to send frame to websocket client: %v", err)
					delete(h.clients, conn)
					conn.Close()
				}
			}
			h.mu.Unlock()
		}
	}
}

// ServeHTTP upgrades the request and serves one client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}

	h.mu.RLock()
	latest := h.latest
	h.mu.RUnlock()
	if latest != nil {
		if err := conn.WriteMessage(websocket.TextMessage, latest); err != nil {
			conn.Close()
			return
		}
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	go h.read(conn)
}

func (h *Hub) read(conn *websocket.Conn) {
	defer func() {
		select {
		case h.remove <- conn:
		case <-h.done:
		}
	}()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warnf("websocket error: %v", err)
			}
			return
		}
		var cmd ControlCommand
		if err := json.Unmarshal(message, &cmd); err != nil || cmd.Type == "" {
			h.logger.Debugf("ignoring malformed command %q", message)
			continue
		}
		if !h.Enqueue(cmd) {
			h.logger.Warnf("command queue full, dropping %s", cmd.Type)
		}
	}
}

// Enqueue queues a command without blocking.
func (h *Hub) Enqueue(cmd ControlCommand) bool {
	select {
	case h.commands <- cmd:
		return true
	default:
		return false
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) SetHeadless(headless bool) {
	h.mu.Lock()
	h.headless = headless
	h.mu.Unlock()
}

func (h *Hub) IsHeadless() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.headless
}

// PublishFrame records frame as the latest and fans it out to clients.
func (h *Hub) PublishFrame(frame *Frame) {
	if frame == nil {
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Errorf("failed to marshal frame: %v", err)
		return
	}
	h.mu.Lock()
	h.latest = data
	h.mu.Unlock()
	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		h.logger.Debugf("frame at %.2f skipped: clients are behind", frame.Time)
	}
}

func (h *Hub) NextCommand() (ControlCommand, bool) {
	select {
	case cmd := <-h.commands:
		return cmd, true
	default:
		return ControlCommand{Type: CommandNone}, false
	}
}

func (h *Hub) WaitCommand(ctx context.Context) (ControlCommand, bool) {
	select {
	case cmd := <-h.commands:
		return cmd, true
	case <-ctx.Done():
		return ControlCommand{Type: CommandNone}, false
	case <-h.done:
		return ControlCommand{Type: CommandNone}, false
	}
}

// Close disconnects every client and stops the hub.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

var _ Visualizer = (*Hub)(nil)
var _ Visualizer = (*NullVisualizer)(nil)
