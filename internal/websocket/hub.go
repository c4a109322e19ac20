package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"daw-agent-be/internal/pkg/logger"
	"daw-agent-be/pkg/events"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	module = "WEBSOCKET"

	// ClusterChannel is the redis channel instances relay agent events on.
	ClusterChannel = "agent_events"
)

// Message is the frame sent to every websocket client.
type Message struct {
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurredAt"`
}

type clusterEnvelope struct {
	Origin  string          `json:"origin"`
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
}

type Hub struct {
	// Registered clients, keyed by connection id.
	clients map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	// Redis connection for cross-instance fan-out; nil runs single-instance.
	rdb        *redis.Client
	instanceID string

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[uuid.UUID]*Client),
		rdb:        rdb,
		instanceID: uuid.NewString(),
		logger:     log,
	}
}

// Run serves register/unregister requests until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.Send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.logger.Info(module, "Client registered", map[string]interface{}{"client_id": client.ID})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
				h.logger.Info(module, "Client unregistered", map[string]interface{}{"client_id": client.ID})
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount reports the number of local connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Listener returns an events.Listener that broadcasts every event.
func (h *Hub) Listener() events.Listener {
	return func(e events.Event) {
		h.Broadcast(Message{Type: e.EventType(), Data: e.Payload(), OccurredAt: e.Timestamp()})
	}
}

// Broadcast sends msg to all local clients and relays it to other instances.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(module, "Failed to encode event", map[string]interface{}{"type": msg.Type, "error": err.Error()})
		return
	}

	h.deliver(msg.Type, data)

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterEnvelope{Origin: h.instanceID, Type: msg.Type, Message: data})
		if err := h.rdb.Publish(context.Background(), ClusterChannel, payload).Err(); err != nil {
			h.logger.Warn(module, "Redis publish failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (h *Hub) deliver(msgType string, data []byte) {
	var slow []*Client

	h.mu.RLock()
	for _, client := range h.clients {
		if !client.Wants(msgType) {
			continue
		}
		select {
		case client.Send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn(module, "Client send buffer full, dropping client", map[string]interface{}{"client_id": client.ID})
		go func(c *Client) { h.unregister <- c }(client)
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, ClusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env clusterEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				h.logger.Warn(module, "Redis message parse error", map[string]interface{}{"error": err.Error()})
				continue
			}
			// Our own publishes were already delivered locally.
			if env.Origin == h.instanceID {
				continue
			}
			h.deliver(env.Type, env.Message)
		}
	}
}
