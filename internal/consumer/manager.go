// Package consumer implements the Consumer Manager: it guarantees at most
// one live Bus subscription per (userId, sessionId) streaming slot and
// tears the prior occupant down before a new one is acquired.
package consumer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"streamchat-orchestrator/internal/apperr"
	"streamchat-orchestrator/internal/bus"
	"streamchat-orchestrator/internal/pkg/logger"
)

// Consumer is a handle to one acquired Bus subscription.
type Consumer struct {
	Tag       string
	UserID    string
	SessionID string
	ChatID    string

	sub bus.Subscription
}

// busConn is the slice of *bus.Bus the manager depends on. Declaring it
// locally (rather than importing a concrete type) lets tests substitute a
// fake connection without touching NATS.
type busConn interface {
	IsConnected() bool
	Subscribe(ctx context.Context, subject, durable string, handler func(bus.Msg)) (bus.Subscription, error)
}

type slotKey struct {
	UserID    string
	SessionID string
}

// Manager owns the mapping from (userId, sessionId) slots to the single
// live Consumer occupying each, plus the shared Bus connection every
// subscription rides on.
type Manager struct {
	b      busConn
	logger logger.ILogger

	mu    sync.Mutex
	slots map[slotKey]*Consumer

	epoch atomic.Int64
}

func NewManager(b busConn, log logger.ILogger) *Manager {
	return &Manager{
		b:      b,
		logger: log,
		slots:  make(map[slotKey]*Consumer),
	}
}

// Acquire subscribes connID's chat to queue, first cancelling any consumer
// already occupying the (userId, sessionId) slot. The consumer tag embeds
// all four identifiers so CancelFor can match by substring later.
func (m *Manager) Acquire(ctx context.Context, queue, connID, userID, sessionID, chatID string, handler func(bus.Msg)) (*Consumer, error) {
	if !m.b.IsConnected() {
		return nil, apperr.Unavailable("bus connection not usable")
	}

	key := slotKey{UserID: userID, SessionID: sessionID}
	epoch := m.epoch.Add(1)
	tag := fmt.Sprintf("socket_%s_%s_%s_%d", connID, sessionID, chatID, epoch)
	subject := fmt.Sprintf("%s.%s", queue, chatID)

	m.mu.Lock()
	if prior, ok := m.slots[key]; ok {
		m.cancelLocked(prior)
	}
	m.mu.Unlock()

	sub, err := m.b.Subscribe(ctx, subject, durableFromTag(tag), handler)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "acquire consumer", err)
	}

	c := &Consumer{Tag: tag, UserID: userID, SessionID: sessionID, ChatID: chatID, sub: sub}

	m.mu.Lock()
	m.slots[key] = c
	m.mu.Unlock()

	return c, nil
}

// durableFromTag produces a JetStream-safe durable name (no dots, which NATS
// durable names disallow when present in subjects) from a consumer tag.
func durableFromTag(tag string) string {
	return strings.ReplaceAll(tag, ".", "_")
}

// Cancel tears down c's subscription. It never closes the shared Bus
// connection. Errors are logged and swallowed: the slot is freed
// unconditionally regardless of what the underlying unsubscribe returned.
func (m *Manager) Cancel(c *Consumer) bool {
	if c == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelLocked(c)
}

func (m *Manager) cancelLocked(c *Consumer) bool {
	key := slotKey{UserID: c.UserID, SessionID: c.SessionID}
	current, ok := m.slots[key]
	if !ok || current.Tag != c.Tag {
		// Already superseded by a newer acquire; nothing to do.
		return false
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Warn("ConsumerManager", "panic stopping consumer", map[string]interface{}{"tag": c.Tag, "recover": r})
			}
		}()
		c.sub.Stop()
	}()
	delete(m.slots, key)
	return true
}

// CancelFor cancels the slot for (userId, sessionId) if its current
// occupant's tag matches chatId, when given. chatId == "" matches any chat.
func (m *Manager) CancelFor(userID, sessionID, chatID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := slotKey{UserID: userID, SessionID: sessionID}
	c, ok := m.slots[key]
	if !ok {
		return false
	}
	if chatID != "" && !strings.Contains(c.Tag, "_"+chatID+"_") {
		return false
	}
	return m.cancelLocked(c)
}

// ForceCleanupAll cancels every live consumer, used by process-wide shutdown.
func (m *Manager) ForceCleanupAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.slots {
		m.cancelLocked(c)
	}
}

// CancelForUser cancels every slot belonging to userID, the scope a single
// user's logout total flush needs rather than every connected user's.
func (m *Manager) CancelForUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.slots {
		if c.UserID == userID {
			m.cancelLocked(c)
		}
	}
}

// ActiveSlots reports how many (userId, sessionId) slots currently hold a
// live consumer. Nothing in the service logs this value.
func (m *Manager) ActiveSlots() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}
