// Package websocket is one of the two room subscribers the Push Fanout
// serves (the other being the HTTP chunked-response writer). Rooms are
// addressed by the chat fingerprint string instead of the teacher's
// per-user uuid.UUID, but the Hub/Client/Redis-relay shape is carried
// over unchanged.
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"streamchat-orchestrator/internal/fanout"
	"streamchat-orchestrator/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Hub fans a room's events out to every locally-connected websocket client
// for that room. It bridges at most one Fanout subscription per room
// (shared across however many clients joined it) and relays across
// instances over Redis so a client connected to a different process than
// the one running the Coordinator still receives the stream.
type Hub struct {
	clients map[string][]*Client
	bridges map[string]context.CancelFunc

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	fanout *fanout.Fanout
	rdb    *redis.Client
	logger logger.ILogger
}

func NewHub(fo *fanout.Fanout, rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string][]*Client),
		bridges:    make(map[string]context.CancelFunc),
		fanout:     fo,
		rdb:        rdb,
		logger:     log,
	}
}

// SetFanout binds the Fanout a Hub bridges against. The Fanout's
// constructor takes the Hub as its Relay, so bootstrap must construct the
// Hub first with a nil Fanout and wire this in once the Fanout exists.
func (h *Hub) SetFanout(fo *fanout.Fanout) {
	h.mu.Lock()
	h.fanout = fo
	h.mu.Unlock()
}

func (h *Hub) Run() {
	if h.rdb != nil {
		go h.subscribeToRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			_, alreadyBridged := h.bridges[client.Room]
			h.clients[client.Room] = append(h.clients[client.Room], client)
			if !alreadyBridged {
				h.bridges[client.Room] = h.startBridge(client.Room)
			}
			h.mu.Unlock()
			h.logger.Info("Hub", "client joined room", map[string]interface{}{"room": client.Room})

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.Room]; ok {
				for i, c := range clients {
					if c == client {
						h.clients[client.Room] = append(clients[:i], clients[i+1:]...)
						close(client.Send)
						break
					}
				}
				if len(h.clients[client.Room]) == 0 {
					delete(h.clients, client.Room)
					if cancel, ok := h.bridges[client.Room]; ok {
						cancel()
						delete(h.bridges, client.Room)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// startBridge subscribes to the room's Fanout topic and relays every
// message to this process's locally-connected clients. Callers must hold
// h.mu. Ack is unconditional: a dropped push is not retried, the room's
// transcript already has the durable copy.
func (h *Hub) startBridge(room string) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := h.fanout.Subscribe(ctx, room)
	if err != nil {
		h.logger.Warn("Hub", "failed to bridge room", map[string]interface{}{"room": room, "error": err.Error()})
		return cancel
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				h.deliverLocal(room, msg.Payload)
				msg.Ack()
			}
		}
	}()
	return cancel
}

// Publish implements fanout.Relay: the Coordinator's own instance already
// delivered the event locally via the Fanout bridge above, so this only
// needs to reach other instances.
func (h *Hub) Publish(ctx context.Context, room string, payload []byte) error {
	if h.rdb == nil {
		return nil
	}
	envelope := map[string]interface{}{"room": room, "message": json.RawMessage(payload)}
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return h.rdb.Publish(ctx, "cluster_events", data).Err()
}

func (h *Hub) deliverLocal(room string, payload []byte) {
	h.mu.RLock()
	clients := h.clients[room]
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.Send <- payload:
		default:
			h.logger.Warn("Hub", "client send buffer full, dropping message", map[string]interface{}{"room": room})
			h.unregister <- client
		}
	}
}

// subscribeToRedis forwards cross-instance events straight to this
// process's local clients. It never touches the Fanout, which is the
// origin instance's job, so an event is never delivered twice on the same
// process.
func (h *Hub) subscribeToRedis() {
	ctx := context.Background()
	pubsub := h.rdb.Subscribe(ctx, "cluster_events")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var envelope struct {
			Room    string          `json:"room"`
			Message json.RawMessage `json:"message"`
		}
		if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
			h.logger.Warn("Hub", "failed to parse cluster event", map[string]interface{}{"error": err.Error()})
			continue
		}
		h.deliverLocal(envelope.Room, envelope.Message)
	}
}
