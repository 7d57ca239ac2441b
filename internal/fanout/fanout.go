// Package fanout is the Push Fanout: it decouples the Streaming Coordinator
// from whatever transport a client used to join a room. The Coordinator
// publishes one Event per room topic; the HTTP chunked-response writer and
// the websocket Hub both subscribe independently, exactly like the
// teacher's consumer_service subscribes to its own in-process topic.
package fanout

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"

	"streamchat-orchestrator/internal/domain"
	"streamchat-orchestrator/internal/pkg/logger"
)

// Fanout multiplexes Events onto room topics using an in-process
// watermill gochannel pub/sub, with an optional Redis relay for
// cross-instance delivery (a websocket client may be connected to a
// different process than the one driving the chat).
type Fanout struct {
	pubSub *gochannel.GoChannel
	relay  Relay
	logger logger.ILogger
}

// Relay is the cross-instance hop. In production this is backed by Redis
// pub/sub, keyed by room string instead of the teacher's per-user
// uuid.UUID; tests can substitute a no-op.
type Relay interface {
	Publish(ctx context.Context, room string, payload []byte) error
}

func New(log logger.ILogger, relay Relay) *Fanout {
	ps := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	return &Fanout{pubSub: ps, relay: relay, logger: log}
}

// Subscribe returns the channel of raw message payloads for room. Callers
// (the HTTP stream writer, the websocket Hub) range over it until the
// context is cancelled.
func (f *Fanout) Subscribe(ctx context.Context, room string) (<-chan *message.Message, error) {
	return f.pubSub.Subscribe(ctx, room)
}

// Publish delivers ev to room's local subscribers and, if a relay is
// configured, forwards it to other instances.
func (f *Fanout) Publish(ctx context.Context, room string, ev domain.Event) error {
	data, err := json.Marshal(ev.MarshalExtra())
	if err != nil {
		f.logger.Error("Fanout", "failed to marshal event", map[string]interface{}{"room": room, "error": err.Error()})
		return err
	}

	msg := message.NewMessage(uuid.NewString(), data)
	if err := f.pubSub.Publish(room, msg); err != nil {
		f.logger.Warn("Fanout", "local publish failed", map[string]interface{}{"room": room, "error": err.Error()})
	}

	if f.relay != nil {
		if err := f.relay.Publish(ctx, room, data); err != nil {
			f.logger.Warn("Fanout", "relay publish failed", map[string]interface{}{"room": room, "error": err.Error()})
		}
	}
	return nil
}

func (f *Fanout) Close() error {
	return f.pubSub.Close()
}
