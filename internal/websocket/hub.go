package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"cancelflow-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clusterChannel = "cancelflow:push"

// Message is what a connected client receives.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type clusterEnvelope struct {
	TargetUserID string          `json:"target_user_id"`
	Origin       string          `json:"origin"`
	Message      json.RawMessage `json:"message"`
}

// Hub tracks connected clients per user. With Redis configured, pushes fan out
// to every instance and each delivers to its own local clients.
type Hub struct {
	clients map[uuid.UUID][]*Client
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	quit       chan struct{}

	rdb    redis.UniversalClient
	id     string
	logger logger.ILogger
}

func NewHub(rdb redis.UniversalClient, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client, 64),
		quit:       make(chan struct{}),
		clients:    make(map[uuid.UUID][]*Client),
		rdb:        rdb,
		id:         uuid.NewString(),
		logger:     log,
	}
}

// Run owns client registration until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			close(h.quit)
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.userID] = append(h.clients[client.userID], client)
			h.mu.Unlock()
			h.logger.Debug("Hub", "Client registered", map[string]interface{}{"user_id": client.userID.String()})

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// attach hands c to Run. It fails once the hub has stopped.
func (h *Hub) attach(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.clients[client.userID]
	for i, c := range clients {
		if c == client {
			h.clients[client.userID] = append(clients[:i], clients[i+1:]...)
			close(client.send)
			break
		}
	}
	if len(h.clients[client.userID]) == 0 {
		delete(h.clients, client.userID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, clients := range h.clients {
		for _, c := range clients {
			close(c.send)
		}
		delete(h.clients, userID)
	}
}

// Connected reports how many local connections a user has.
func (h *Hub) Connected(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Send pushes msg to every connection of userID on every instance.
func (h *Hub) Send(ctx context.Context, userID uuid.UUID, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.deliverLocal(userID, data)

	if h.rdb != nil {
		envelope, _ := json.Marshal(clusterEnvelope{TargetUserID: userID.String(), Origin: h.id, Message: data})
		if err := h.rdb.Publish(ctx, clusterChannel, envelope).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hub) deliverLocal(userID uuid.UUID, data []byte) {
	h.mu.RLock()
	var slow []*Client
	for _, client := range h.clients[userID] {
		select {
		case client.send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Hub", "Client send buffer full, dropping connection", map[string]interface{}{"user_id": userID.String()})
		h.detach(client)
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
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
			var envelope clusterEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				h.logger.Warn("Hub", "Dropping malformed cluster message", map[string]interface{}{"error": err.Error()})
				continue
			}
			if envelope.Origin == h.id {
				continue
			}
			uid, err := uuid.Parse(envelope.TargetUserID)
			if err != nil {
				continue
			}
			h.deliverLocal(uid, envelope.Message)
		}
	}
}
