// Package bus wraps the NATS JetStream connection shared across the process
// for both publishing chat requests' side effects and subscribing to the
// three queues the Consumer Manager pulls from (chat, session-index,
// session-history). One connection and one JetStream context are kept open
// for the process lifetime; subscriptions come and go per chat, but the
// underlying channel is never closed by a consumer cancellation.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	StreamName = "ORCHESTRATOR"

	QueueChat            = "chat"
	QueueSessionIndex    = "session-index"
	QueueSessionHistory  = "session-history"
)

// Bus is the process-wide connection. All Consumer Manager subscriptions
// and any ad-hoc publishes (e.g. forwarding a stop intent's side effects)
// share this one instance.
type Bus struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func Connect(url string) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("bus: jetstream: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{QueueChat + ".>", QueueSessionIndex + ".>", QueueSessionHistory + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("bus: ensure stream: %w", err)
	}

	return &Bus{nc: nc, js: js}, nil
}

// IsConnected reports whether the underlying connection is currently usable.
// The Consumer Manager consults this before every acquire; per the
// reliability requirements, acquiring on a dead connection must fail fast
// with UNAVAILABLE rather than block.
func (b *Bus) IsConnected() bool {
	return b != nil && b.nc != nil && b.nc.IsConnected()
}

func (b *Bus) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := b.js.Publish(ctx, subject, data)
	return err
}

// Msg is the minimal surface the Consumer Manager needs from a delivered
// JetStream message: payload bytes plus explicit ack/nack, so it never has
// to depend on jetstream.Msg directly outside this package.
type Msg interface {
	Data() []byte
	Subject() string
	Ack() error
	Nak() error
}

// Subscription is a live durable consumer. Stop tears down the consume loop
// without touching the shared connection.
type Subscription interface {
	Stop()
}

type jetstreamSubscription struct {
	consumer jetstream.ConsumeContext
}

func (s *jetstreamSubscription) Stop() {
	if s != nil && s.consumer != nil {
		s.consumer.Stop()
	}
}

// Subscribe creates (or reuses) a durable consumer filtered to subject and
// delivers every message to handler until Stop is called. durable must be
// unique per logical slot — the Consumer Manager derives it from the
// consumer tag.
func (b *Bus) Subscribe(ctx context.Context, subject, durable string, handler func(Msg)) (Subscription, error) {
	consumer, err := b.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("bus: create consumer: %w", err)
	}

	consumeCtx, err := consumer.Consume(func(m jetstream.Msg) {
		handler(jetstreamMsg{m})
	})
	if err != nil {
		return nil, fmt.Errorf("bus: consume: %w", err)
	}

	return &jetstreamSubscription{consumer: consumeCtx}, nil
}

type jetstreamMsg struct {
	m jetstream.Msg
}

func (j jetstreamMsg) Data() []byte    { return j.m.Data() }
func (j jetstreamMsg) Subject() string { return j.m.Subject() }
func (j jetstreamMsg) Ack() error      { return j.m.Ack() }
func (j jetstreamMsg) Nak() error      { return j.m.Nak() }

func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}
