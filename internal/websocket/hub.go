package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"clinical-dss-be/internal/constant"
	"clinical-dss-be/internal/dto"
	"clinical-dss-be/internal/pkg/logger"
)

const clusterChannel = "cluster_events"

// Hub owns the live websocket connections, keyed by session id. It
// implements the broadcaster's Deliverer contract and fans deliveries out
// to sibling instances over redis when a session is not connected locally.
type Hub struct {
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	rdb *redis.Client

	logger logger.ILogger

	// Lifecycle callbacks wired at bootstrap: session admission and buffer
	// flush on connect, session release on disconnect.
	onConnect    func(sessionId string)
	onDisconnect func(sessionId string)
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string]*Client),
		rdb:        rdb,
		logger:     log,
	}
}

// SetLifecycleHooks wires the connect/disconnect callbacks. Must be called
// before Run.
func (h *Hub) SetLifecycleHooks(onConnect, onDisconnect func(sessionId string)) {
	h.onConnect = onConnect
	h.onDisconnect = onDisconnect
}

func (h *Hub) Run() {
	if h.rdb != nil {
		go h.subscribeToRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.SessionId] = client
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"session_id": client.SessionId})

			client.sendWelcome()
			if h.onConnect != nil {
				h.onConnect(client.SessionId)
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.SessionId]; ok && current == client {
				delete(h.clients, client.SessionId)
				close(client.Send)
				h.logger.Info("Hub", "Client unregistered", map[string]interface{}{"session_id": client.SessionId})
			}
			h.mu.Unlock()

			if h.onDisconnect != nil {
				h.onDisconnect(client.SessionId)
			}
		}
	}
}

// Deliver pushes a payload to the session's connection. Returns false when
// the session is not connected to this instance, so the broadcaster
// buffers the event instead.
func (h *Hub) Deliver(sessionId string, payload []byte) bool {
	h.mu.RLock()
	client, ok := h.clients[sessionId]
	h.mu.RUnlock()

	if ok {
		select {
		case client.Send <- payload:
			return true
		default:
			h.logger.Warn("Hub", "Client send buffer full, dropping connection", map[string]interface{}{"session_id": sessionId})
			h.unregister <- client
			return false
		}
	}

	// Session may live on a sibling instance after a reconnect through a
	// different node. Our own subscription counts as one receiver, so a
	// sibling is present only when the count exceeds it; otherwise the
	// event must stay buffered here.
	if h.rdb != nil {
		envelope, _ := json.Marshal(map[string]interface{}{
			"target_session_id": sessionId,
			"message":           json.RawMessage(payload),
		})
		receivers, err := h.rdb.Publish(context.Background(), clusterChannel, envelope).Result()
		if err == nil && receivers > 1 {
			return true
		}
	}
	return false
}

// Connected reports whether a session has a live local connection.
func (h *Hub) Connected(sessionId string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[sessionId]
	return ok
}

// ConnectionCount is exposed on the health surface.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) subscribeToRedis() {
	ctx := context.Background()
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var payload struct {
			TargetSessionId string          `json:"target_session_id"`
			Message         json.RawMessage `json:"message"`
		}
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			h.logger.Warn("Hub", "Malformed cluster event", map[string]interface{}{"error": err.Error()})
			continue
		}

		h.mu.RLock()
		client, ok := h.clients[payload.TargetSessionId]
		h.mu.RUnlock()

		if ok {
			select {
			case client.Send <- payload.Message:
			default:
				h.unregister <- client
			}
		}
	}
}

func (c *Client) sendWelcome() {
	welcome, _ := json.Marshal(dto.WelcomeMessage{
		Type:       constant.EventTypeWelcome,
		SessionId:  c.SessionId,
		ServerTime: time.Now().UTC(),
		Capabilities: []string{
			constant.MessageTypeClinicalQuery,
			constant.MessageTypeLiteratureSearch,
			constant.MessageTypeCancel,
			constant.MessageTypePing,
		},
	})
	select {
	case c.Send <- welcome:
	default:
	}
}
