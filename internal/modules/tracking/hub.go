package tracking

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"stride/internal/modules/session"
)

// Client is one live subscriber (e.g. a websocket) to a session's updates.
type Client struct {
	SessionID string
	Send      chan []byte
}

// Hub fans session updates out to local clients. With a store, updates travel
// through Redis pub/sub so clients on every API instance receive them.
type Hub struct {
	store   *Store
	pubsub  *redis.PubSub
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

// NewHub creates a hub. A nil store keeps delivery in-process.
func NewHub(ctx context.Context, store *Store) (*Hub, error) {
	h := &Hub{
		store:   store,
		clients: map[string]map[*Client]struct{}{},
	}
	if store != nil {
		ps, err := store.subscribeAll(ctx)
		if err != nil {
			return nil, err
		}
		h.pubsub = ps
		go h.relay()
	}
	return h, nil
}

func (h *Hub) Register(sessionID string) *Client {
	client := &Client{
		SessionID: sessionID,
		Send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = map[*Client]struct{}{}
	}
	h.clients[sessionID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessionClients, ok := h.clients[client.SessionID]; ok {
		if _, ok := sessionClients[client]; !ok {
			return
		}
		delete(sessionClients, client)
		if len(sessionClients) == 0 {
			delete(h.clients, client.SessionID)
		}
		close(client.Send)
	}
}

// Publish implements session.Publisher.
func (h *Hub) Publish(ctx context.Context, u session.Update) error {
	if h.store != nil {
		return h.store.Publish(ctx, u)
	}
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	h.broadcast(u.SessionID, payload)
	return nil
}

func (h *Hub) Close() error {
	if h.pubsub != nil {
		return h.pubsub.Close()
	}
	return nil
}

// broadcast drops the message for clients whose buffer is full.
func (h *Hub) broadcast(sessionID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[sessionID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) relay() {
	for msg := range h.pubsub.Channel() {
		sessionID := sessionFromChannel(msg.Channel)
		if sessionID == "" {
			log.Printf("tracking: ignoring message on %s", msg.Channel)
			continue
		}
		h.broadcast(sessionID, []byte(msg.Payload))
	}
}
