// Package ws streams market events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256

	// replayLimit caps the backlog sent to a client reconnecting with ?since=.
	replayLimit = 500
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ConnMetrics tracks open connections.
type ConnMetrics interface {
	IncrementConnections(ctx context.Context)
	DecrementConnections(ctx context.Context)
}

// client represents a single WebSocket connection. A client with no market
// subscriptions receives every event; otherwise only events of the markets
// it asked for.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	markets map[string]bool
	mu      sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to narrow its feed.
//
//	{"action":"subscribe","markets":["0xabc..."]}
type subscribeMsg struct {
	Action  string   `json:"action"`
	Markets []string `json:"markets"`
}

// Hub manages connected WebSocket clients and forwards every message
// published on the events channel of the signal bus to them.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	done       chan struct{} // closed when Run returns
	bus        domain.SignalBus
	metrics    ConnMetrics
	mu         sync.RWMutex
	logger     *slog.Logger
	startedAt  time.Time
}

// NewHub creates a hub fed by bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		logger:     logger,
		startedAt:  time.Now().UTC(),
	}
}

// WithMetrics attaches a connection gauge.
func (h *Hub) WithMetrics(m ConnMetrics) *Hub {
	h.metrics = m
	return h
}

// Run subscribes to the bus and serves clients until ctx is cancelled. Run
// must be called at most once; connections arriving after it returns are
// refused.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	msgCh, err := h.bus.Subscribe(ctx, domain.ChannelEvents)
	if err != nil {
		return err
	}
	h.logger.Info("ws: subscribed to channel", slog.String("channel", domain.ChannelEvents))

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: channel subscription closed", slog.String("channel", domain.ChannelEvents))
				msgCh = nil
				continue
			}
			h.fanOut(marketOf(data), data)

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.IncrementConnections(ctx)
			}
			h.logger.Info("ws: client connected", slog.Int("total_clients", h.clientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[c]
			if ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			if ok && h.metrics != nil {
				h.metrics.DecrementConnections(ctx)
			}
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", h.clientCount()))
		}
	}
}

func (h *Hub) fanOut(market string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(market) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("ws: dropping message for slow client")
		}
	}
}

// marketOf extracts the market address of a bus message, lower-cased.
func marketOf(data []byte) string {
	var env struct {
		Market string `json:"market"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return ""
	}
	return strings.ToLower(env.Market)
}

// HandleWS upgrades the request and registers the client. The optional
// since query parameter replays stream entries after that stream ID, and
// market (repeatable) narrows the feed from the start.
// GET /ws?since=0&market=0xabc...
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "ws: hub stopped", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		markets: make(map[string]bool),
	}
	for _, m := range r.URL.Query()["market"] {
		c.markets[strings.ToLower(m)] = true
	}

	if !h.join(c) {
		conn.Close()
		return
	}
	c.sendHello()
	if since := r.URL.Query().Get("since"); since != "" {
		c.replay(r.Context(), since)
	}

	go c.writePump()
	go c.readPump()
}

// join hands c to Run. It reports false once the hub has stopped.
func (h *Hub) join(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave hands c back to Run for removal. After Run returns every client
// has already been dropped, so there is nothing to wait for.
func (h *Hub) leave(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, m := range msg.Markets {
			c.markets[strings.ToLower(m)] = true
		}
	case "unsubscribe":
		for _, m := range msg.Markets {
			delete(c.markets, strings.ToLower(m))
		}
	}
}

func (c *client) wants(market string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.markets) == 0 || c.markets[market]
}

// sendHello tells the client the connection is live before any event flows.
func (c *client) sendHello() {
	msg, err := json.Marshal(map[string]any{
		"type":           "hello",
		"uptime_seconds": int64(time.Since(c.hub.startedAt).Seconds()),
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// replay queues stream entries after lastID that match the client's filter.
func (c *client) replay(ctx context.Context, lastID string) {
	msgs, err := c.hub.bus.StreamRead(ctx, domain.StreamEvents, lastID, replayLimit)
	if err != nil {
		c.hub.logger.Warn("ws: replay failed", slog.String("since", lastID), slog.String("error", err.Error()))
		return
	}
	for _, m := range msgs {
		if !c.wants(marketOf(m.Payload)) {
			continue
		}
		select {
		case c.send <- m.Payload:
		default:
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
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
