// Package session binds a process-wide login/logout lifecycle to the
// components that hold per-user state, replacing the implicit mutable
// global the design note on current-user tracking flags. Authentication
// itself happens at the HTTP boundary (the JWT middleware); this package
// only owns what happens to in-memory state when a user logs in or out.
package session

import (
	"context"
	"fmt"
	"sync"

	"streamchat-orchestrator/internal/bus"
	"streamchat-orchestrator/internal/catalog"
	"streamchat-orchestrator/internal/consumer"
	"streamchat-orchestrator/internal/pkg/logger"
	"streamchat-orchestrator/internal/registry"
	"streamchat-orchestrator/internal/transcript"
)

// busIndexSubscriber is the slice of *bus.Bus this package needs: just
// enough to open the per-user session-index subscription at login and tear
// it down at logout, without importing the concrete NATS type into tests.
type busIndexSubscriber interface {
	IsConnected() bool
	Subscribe(ctx context.Context, subject, durable string, handler func(bus.Msg)) (bus.Subscription, error)
}

// Context wires the total-flush path: logout clears the Session Catalog,
// the Transcript Store, every live Bus consumer and any registered
// capability hook, all scoped to the one user logging out.
type Context struct {
	catalog    *catalog.Catalog
	transcript *transcript.Store
	consumers  *consumer.Manager
	registry   *registry.Registry
	bus        busIndexSubscriber
	logger     logger.ILogger

	mu        sync.Mutex
	indexSubs map[string]bus.Subscription
}

func New(cat *catalog.Catalog, ts *transcript.Store, cm *consumer.Manager, reg *registry.Registry, b busIndexSubscriber, log logger.ILogger) *Context {
	return &Context{
		catalog: cat, transcript: ts, consumers: cm, registry: reg, bus: b, logger: log,
		indexSubs: make(map[string]bus.Subscription),
	}
}

// Login seeds the Session Catalog's Upstream cursor for userID so locally
// minted session ids start strictly above whatever Upstream already has,
// and opens the long-lived subscription that keeps the catalog's titles in
// sync with Upstream's authoritative latest-10 publications (§6, scenario
// 6). The subscription outlives any single chat, unlike the Consumer
// Manager's per-(user,session) chat slots.
func (c *Context) Login(ctx context.Context, userID string, lastUpstreamSessionID int64) {
	c.catalog.SeedLogin(userID, lastUpstreamSessionID)

	if c.bus != nil && c.bus.IsConnected() {
		subject := fmt.Sprintf("%s.%s", bus.QueueSessionIndex, userID)
		sub, err := c.bus.Subscribe(ctx, subject, "session-index_"+userID, func(m bus.Msg) {
			entries, err := bus.DecodeSessionIndex(m.Data())
			if err != nil {
				m.Nak()
				return
			}
			c.catalog.SyncFromUpstream(userID, entries)
			m.Ack()
		})
		if err != nil {
			c.logger.Warn("SessionContext", "failed to subscribe to session index", map[string]interface{}{"user_id": userID, "error": err.Error()})
		} else {
			c.mu.Lock()
			c.indexSubs[userID] = sub
			c.mu.Unlock()
		}
	}

	c.logger.Info("SessionContext", "user logged in", map[string]interface{}{
		"user_id": userID, "last_upstream_session_id": lastUpstreamSessionID,
	})
}

// Logout performs the total flush (P8): every session, transcript, live
// consumer and registered capability's per-user state for userID is
// dropped. The session list is captured before the catalog is cleared so
// the Transcript Store knows exactly which sessions to drop with it.
func (c *Context) Logout(userID string) {
	sessions := c.catalog.List(userID)
	sessionIDs := make([]string, len(sessions))
	for i, s := range sessions {
		sessionIDs[i] = s.ID
	}

	c.consumers.CancelForUser(userID)

	c.mu.Lock()
	if sub, ok := c.indexSubs[userID]; ok {
		sub.Stop()
		delete(c.indexSubs, userID)
	}
	c.mu.Unlock()

	c.catalog.Flush(userID)
	c.transcript.FlushUser(userID, sessionIDs)
	c.registry.RunFlushHooks(userID)

	c.logger.Info("SessionContext", "user logged out, total flush complete", map[string]interface{}{
		"user_id": userID, "sessions_flushed": len(sessionIDs),
	})
}
