// Package ws relays committed ledger events to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/parimarket/internal/domain"
	"github.com/alanyoungcy/parimarket/internal/events"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256

	// replayLimit caps the backlog sent to a reconnecting client.
	replayLimit = 200
)

// Topics a client can subscribe to. Every event is published on TopicAll and
// on the topic of its market, "market:<id>". A trailing '*' matches a prefix.
const (
	TopicAll    = "ledger"
	topicMarket = "market:"
)

// MarketTopic returns the topic carrying events of one market.
func MarketTopic(id uint64) string {
	return topicMarket + strconv.FormatUint(id, 10)
}

// frame is one outgoing websocket message.
type frame struct {
	kind int
	data []byte
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan frame
	subs map[string]bool
	mu   sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to change its topics:
// {"action":"subscribe","topics":["market:3"]}.
type subscribeMsg struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// broadcastMsg carries an encoded event along with the topics it belongs to.
type broadcastMsg struct {
	topics []string
	data   []byte
}

// Config captures runtime metadata sent to clients on connect.
type Config struct {
	Mode           string
	StartedAt      time.Time
	AllowedOrigins []string
}

// Hub manages connected WebSocket clients and fans ledger events out to
// them. Events are forwarded as binary frames in their protobuf encoding.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	bus        domain.EventBus
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
	logger     *slog.Logger
	mode       string
	startedAt  time.Time
}

// NewHub creates a hub that relays events published on bus.
func NewHub(bus domain.EventBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	h := &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		mode:       mode,
		startedAt:  startedAt,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Run starts the hub's main event loop. It handles client registration,
// unregistration, and message broadcasting, and returns when ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) error {
	msgCh, err := h.bus.Subscribe(ctx, events.Channel)
	if err != nil {
		return err
	}
	h.logger.Info("ws: subscribed to channel", slog.String("channel", events.Channel))

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

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.ClientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.ClientCount()),
			)

		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: event subscription closed")
				msgCh = nil
				continue
			}
			h.route(data)
		}
	}
}

// topicsOf decodes just enough of an event to find its topics.
func topicsOf(data []byte) ([]string, error) {
	ev, err := events.Decode(data)
	if err != nil {
		return nil, err
	}
	topics := []string{TopicAll}
	if ev.Entry.MarketID != 0 {
		topics = append(topics, MarketTopic(ev.Entry.MarketID))
	}
	return topics, nil
}

func (h *Hub) route(data []byte) {
	topics, err := topicsOf(data)
	if err != nil {
		h.logger.Warn("ws: dropping undecodable event", slog.String("error", err.Error()))
		return
	}
	h.deliver(broadcastMsg{topics: topics, data: data})
}

func (h *Hub) deliver(msg broadcastMsg) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.isSubscribedAny(msg.topics) {
			continue
		}
		select {
		case c.send <- frame{kind: websocket.BinaryMessage, data: msg.data}:
		default:
			// Client's send buffer is full; drop the message.
			h.logger.Warn("ws: dropping message for slow client")
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub. Clients start subscribed to every event; the
// ?topics= query narrows that to a comma-separated list. ?after=<stream id>
// first replays events recorded on the durable stream after that id ("0"
// for the oldest retained).
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan frame, sendBufferSize),
		subs: make(map[string]bool),
	}
	if raw := r.URL.Query().Get("topics"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				c.subs[t] = true
			}
		}
	} else {
		c.subs[TopicAll] = true
	}

	h.register <- c
	c.sendInitialStatus()
	if after := r.URL.Query().Get("after"); after != "" {
		c.replay(r.Context(), after)
	}

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump reads subscription changes (JSON text frames) from the client.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
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
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var sub subscribeMsg
		if jsonErr := json.Unmarshal(message, &sub); jsonErr == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

// handleSubscription processes subscribe/unsubscribe requests from the client.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, t := range msg.Topics {
			c.subs[t] = true
		}
	case "unsubscribe":
		for _, t := range msg.Topics {
			delete(c.subs, t)
		}
	}
}

// sendInitialStatus pushes a JSON text frame so clients can mark the
// connection healthy before any event flows.
func (c *client) sendInitialStatus() {
	uptime := max(int64(time.Since(c.hub.startedAt).Seconds()), 0)

	msg, err := json.Marshal(map[string]any{
		"type": "service_status",
		"payload": map[string]any{
			"mode":           c.hub.mode,
			"ws_connected":   true,
			"uptime_seconds": uptime,
		},
	})
	if err != nil {
		return
	}

	select {
	case c.send <- frame{kind: websocket.TextMessage, data: msg}:
	default:
	}
}

// replay queues stream entries after lastID. Events published while the
// backlog is read may be delivered twice; clients dedupe on seq.
func (c *client) replay(ctx context.Context, lastID string) {
	msgs, err := c.hub.bus.StreamRead(ctx, events.Stream, lastID, replayLimit)
	if err != nil {
		c.hub.logger.Warn("ws: replay failed",
			slog.String("after", lastID),
			slog.String("error", err.Error()),
		)
		return
	}
	for _, m := range msgs {
		topics, err := topicsOf(m.Payload)
		if err != nil || !c.isSubscribedAny(topics) {
			continue
		}
		select {
		case c.send <- frame{kind: websocket.BinaryMessage, data: m.Payload}:
		default:
			return
		}
	}
}

// isSubscribedAny reports whether the client follows any of topics.
func (c *client) isSubscribedAny(topics []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, topic := range topics {
		if c.subs[topic] {
			return true
		}
		// Wildcard match: "market:*" matches "market:12".
		for sub := range c.subs {
			if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(topic, prefix) {
				return true
			}
		}
	}
	return false
}

// writePump pumps frames from the hub to the WebSocket connection and sends
// periodic pings for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(f.kind, f.data); err != nil {
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
