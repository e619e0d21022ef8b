package websocket

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"opsboard/internal/feed"
	"opsboard/internal/middleware"
	"opsboard/internal/notify"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for dev simplicity
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Matches reports whether a subscription filter covers topic. An empty filter
// covers everything; a trailing '*' matches by prefix.
func Matches(filter, topic string) bool {
	if filter == "" || filter == topic {
		return true
	}
	if prefix, ok := strings.CutSuffix(filter, "*"); ok {
		return strings.HasPrefix(topic, prefix)
	}
	return false
}

func matchesAny(filters []string, topic string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if Matches(f, topic) {
			return true
		}
	}
	return false
}

// Client represents a single connected WebSocket client
type Client struct {
	Hub     *Hub
	Conn    *websocket.Conn
	Send    chan []byte
	ActorID string
	Topics  []string
}

// Receives reports whether the client gets topic. Notification topics reach only
// the actor they are addressed to, whatever the client's filters say.
func (c *Client) Receives(topic string) bool {
	if actor, ok := strings.CutPrefix(topic, notify.TopicPrefix); ok && actor != c.ActorID {
		return false
	}
	return matchesAny(c.Topics, topic)
}

// Subscription is an in-process listener on the hub.
type Subscription struct {
	C      chan feed.Envelope
	topics []string
}

type message struct {
	topic   string
	payload []byte
}

// Hub maintains the set of active clients and delivers published messages to the
// clients and in-process subscriptions whose filters match.
type Hub struct {
	clients    map[*Client]bool
	subs       map[*Subscription]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	log        *zap.Logger
}

// NewHub initializes a new WS Hub instance
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		subs:       make(map[*Subscription]bool),
		log:        log,
	}
}

// Run starts the core dispatch loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug("websocket client connected", zap.String("actor", client.ActorID), zap.Strings("topics", client.Topics))
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.log.Debug("websocket client disconnected", zap.String("actor", client.ActorID))
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.dispatch(msg)
		}
	}
}

func (h *Hub) dispatch(msg message) {
	frame, err := feed.Encode(msg.topic, msg.payload)
	if err != nil {
		h.log.Warn("dropping unencodable message", zap.String("topic", msg.topic), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.Receives(msg.topic) {
			continue
		}
		select {
		case client.Send <- frame:
		default:
			close(client.Send)
			delete(h.clients, client)
		}
	}

	for sub := range h.subs {
		if !matchesAny(sub.topics, msg.topic) {
			continue
		}
		select {
		case sub.C <- feed.Envelope{Topic: msg.topic, Payload: msg.payload}:
		default:
			h.log.Warn("subscription is full, dropping message", zap.String("topic", msg.topic))
		}
	}
}

// Publish queues payload for delivery on topic. It implements feed.Publisher.
func (h *Hub) Publish(ctx context.Context, topic string, payload []byte) error {
	select {
	case h.broadcast <- message{topic: topic, payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers an in-process listener for the given topic filters.
// Call Unsubscribe when done.
func (h *Hub) Subscribe(topics ...string) *Subscription {
	sub := &Subscription{C: make(chan feed.Envelope, 64), topics: topics}
	h.mu.Lock()
	h.subs[sub] = true
	h.mu.Unlock()
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.C)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected websocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
	defer func() {
		_ = c.Conn.Close()
	}()
	for message := range c.Send {
		w, err := c.Conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		_, _ = w.Write(message)

		// Fast track writing queued messages
		n := len(c.Send)
		for i := 0; i < n; i++ {
			_, _ = w.Write([]byte{'\n'})
			_, _ = w.Write(<-c.Send)
		}

		if err := w.Close(); err != nil {
			return
		}
	}
	_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		_ = c.Conn.Close()
	}()
	for {
		// Clients only listen; reading keeps the connection alive and notices closes.
		_, _, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Warn("websocket read failed", zap.Error(err))
			}
			break
		}
	}
}

// ServeWs handles websocket requests from the peer. The token comes from the
// query string; repeated topic parameters select what the client receives.
func ServeWs(hub *Hub, c *gin.Context, secret []byte) {
	tokenString := c.Query("token")
	if tokenString == "" {
		hub.log.Info("websocket connection rejected: missing token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	actor, err := middleware.ParseToken(tokenString, secret)
	if err != nil {
		hub.log.Info("websocket connection rejected", zap.Error(err))
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &Client{
		Hub:     hub,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		ActorID: actor.ID,
		Topics:  c.QueryArray("topic"),
	}
	select {
	case client.Hub.register <- client:
	case <-hub.done:
		_ = conn.Close()
		return
	}

	// Allow collection of memory referenced by the caller by doing all work in new goroutines
	go client.writePump()
	go client.readPump()
}
