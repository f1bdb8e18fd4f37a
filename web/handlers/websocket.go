package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/scrypster/forumlens/internal/notify"
)

// ErrHubFull is returned by Publish when the broadcast queue is saturated.
var ErrHubFull = errors.New("websocket broadcast queue full")

// WebSocketHub pushes upload events to connected dashboards. Each client
// only receives events about its own user's uploads.
type WebSocketHub struct {
	clients    map[clientInterface]bool
	broadcast  chan notify.Event
	register   chan clientInterface
	unregister chan clientInterface
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc

	logger         *zap.Logger
	userHeader     string
	originPatterns []string
}

// clientInterface allows for both real clients and mock clients.
type clientInterface interface {
	getSendChannel() chan []byte
	getUserID() int64
	close()
}

// Client represents a WebSocket connection.
type Client struct {
	hub    *WebSocketHub
	conn   *websocket.Conn //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	send   chan []byte
	userID int64
}

func (c *Client) getSendChannel() chan []byte { return c.send }

func (c *Client) getUserID() int64 { return c.userID }

func (c *Client) close() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}
}

// NewWebSocketHub creates a hub. originPatterns lists the cross-origin
// hosts (path.Match patterns such as "*.example.com") allowed to connect;
// same-host connections are always allowed.
func NewWebSocketHub(logger *zap.Logger, userHeader string, originPatterns []string) *WebSocketHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if userHeader == "" {
		userHeader = DefaultUserHeader
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketHub{
		clients:        make(map[clientInterface]bool),
		broadcast:      make(chan notify.Event, 256),
		register:       make(chan clientInterface),
		unregister:     make(chan clientInterface),
		ctx:            ctx,
		cancel:         cancel,
		logger:         logger,
		userHeader:     userHeader,
		originPatterns: originPatterns,
	}
}

// Run starts the hub's message processing loop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("WebSocket client connected", zap.Int64("user_id", client.getUserID()), zap.Int("total", count))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.getSendChannel())
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("WebSocket client disconnected", zap.Int("total", count))

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
				continue
			}

			// Full lock: slow clients are dropped from the map.
			h.mu.Lock()
			for client := range h.clients {
				if client.getUserID() != event.UserID {
					continue
				}
				sendChan := client.getSendChannel()
				select {
				case sendChan <- data:
				default:
					close(sendChan)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			return
		}
	}
}

// Stop disconnects every client and ends Run.
func (h *WebSocketHub) Stop() {
	h.cancel()

	h.mu.Lock()
	for client := range h.clients {
		close(client.getSendChannel())
		client.close()
	}
	h.clients = make(map[clientInterface]bool)
	h.mu.Unlock()
}

// Publish queues an event for the clients of event.UserID.
func (h *WebSocketHub) Publish(event notify.Event) error {
	select {
	case h.broadcast <- event:
		return nil
	default:
		h.logger.Warn("WebSocket broadcast channel full, dropping message", zap.String("type", event.Type))
		return ErrHubFull
	}
}

// ClientCount reports the connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a client to the hub.
func (h *WebSocketHub) Register(client clientInterface) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub.
func (h *WebSocketHub) Unregister(client clientInterface) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// allowedOrigin accepts requests without an Origin, same-host origins and
// origins whose host matches one of the configured patterns.
func (h *WebSocketHub) allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, pattern := range h.originPatterns {
		if ok, _ := path.Match(strings.ToLower(pattern), strings.ToLower(u.Host)); ok {
			return true
		}
	}
	return false
}

// ServeHTTP handles GET /api/events upgrade requests. Anonymous sessions
// are refused since every event belongs to a user.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.allowedOrigin(r) {
		respondError(w, http.StatusForbidden, "Forbidden: invalid origin", nil)
		return
	}
	session := SessionFromRequest(r, h.userHeader)
	if !session.Authenticated() {
		respondError(w, http.StatusForbidden, "Forbidden: not signed in", nil)
		return
	}

	// Long-lived connections outlive the server's read and write timeouts.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{ //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		// Origin was checked above.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: session.UserID,
	}

	h.Register(client)

	go client.writePump()
	go client.readPump()
}

// writePump sends messages to the WebSocket connection.
func (c *Client) writePump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}()

	for message := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, message) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		cancel()

		if err != nil {
			c.hub.logger.Debug("WebSocket write failed", zap.Error(err))
			return
		}
	}
}

// readPump drains client messages to detect disconnections.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}()

	for {
		if _, _, err := c.conn.Read(c.hub.ctx); err != nil { //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
			return
		}
	}
}

// MockClient is a mock client for testing.
type MockClient struct {
	SendChan chan []byte
	UserID   int64
}

func (m *MockClient) getSendChannel() chan []byte { return m.SendChan }

func (m *MockClient) getUserID() int64 { return m.UserID }

func (m *MockClient) close() {}
