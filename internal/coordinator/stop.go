package coordinator

import (
	"context"
	"time"

	"streamchat-orchestrator/internal/domain"
)

// Stop implements the Stop Control contract. Upstream is notified
// best-effort: a timeout or error there never blocks local cleanup, which
// is the invariant that separates this from a naive proxy. It always
// completes local cleanup and reports success.
func (c *Coordinator) Stop(ctx context.Context, userID, sessionID, chatID, instanceID string) {
	if err := c.upstream.Stop(ctx, userID, sessionID, chatID); err != nil {
		c.logger.Warn("Coordinator", "upstream stop failed, continuing with local cleanup", map[string]interface{}{
			"user_id": userID, "session_id": sessionID, "chat_id": chatID, "error": err.Error(),
		})
	}

	key := slotKey{UserID: userID, SessionID: sessionID}
	c.mu.Lock()
	ac, ok := c.active[key]
	if ok {
		delete(c.active, key)
	}
	c.mu.Unlock()

	c.consumers.CancelFor(userID, sessionID, chatID)
	removed := c.transcript.Scrub(userID, sessionID, chatID)

	room := domain.Fingerprint{UserID: userID, SessionID: sessionID, ChatID: chatID, InstanceID: instanceID}.String()
	now := time.Now().UnixMilli()
	emitComplete := func() {
		c.fanout.Publish(ctx, room, domain.Event{
			Type: domain.EventComplete, ChatID: chatID, SessionID: sessionID, InstanceID: instanceID, Timestamp: now,
			Extra: map[string]interface{}{"completion_type": domain.CompletionUserStopped, "total_tokens": 0},
		})
	}

	// Only a chat this call actually stops gets a complete event here; a
	// chat that already finished has emitted its own.
	if ok && ac.chatID == chatID {
		ac.cancel()
		ac.once.Do(emitComplete)
	}
	c.fanout.Publish(ctx, room, domain.Event{
		Type: domain.EventCleanupGeneration, ChatID: chatID, SessionID: sessionID, InstanceID: instanceID, Timestamp: now,
		Extra: map[string]interface{}{"user_id": userID, "session_id": sessionID, "chat_id": chatID, "instance_id": instanceID, "reason": "stop"},
	})

	c.logger.Info("Coordinator", "stop cleanup completed", map[string]interface{}{
		"user_id": userID, "session_id": sessionID, "chat_id": chatID, "messages_scrubbed": removed,
	})
}
