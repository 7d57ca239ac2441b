// Package coordinator implements the Streaming Coordinator and its
// companion Stop Control: the per-chat state machine that drives a prompt
// from admission through Upstream's producer trigger, the Bus consumer,
// the Thinking Parser and the Push Fanout, to a single terminal complete
// event.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"streamchat-orchestrator/internal/apperr"
	"streamchat-orchestrator/internal/bus"
	"streamchat-orchestrator/internal/catalog"
	"streamchat-orchestrator/internal/config"
	"streamchat-orchestrator/internal/consumer"
	"streamchat-orchestrator/internal/domain"
	"streamchat-orchestrator/internal/fanout"
	"streamchat-orchestrator/internal/modelprofile"
	"streamchat-orchestrator/internal/pkg/logger"
	"streamchat-orchestrator/internal/thinking"
	"streamchat-orchestrator/internal/transcript"
	"streamchat-orchestrator/internal/upstream"
)

// maxChatsPerSession is the per-session prompt limit; the source enforces
// 15 in one place and documents 20 elsewhere, this spec takes 15 as
// authoritative.
const maxChatsPerSession = 15

type slotKey struct {
	UserID    string
	SessionID string
}

// activeChat is the live state for one (userId, sessionId) streaming slot.
// once guarantees P3: at most one complete event is ever emitted for the
// chat this activeChat was created for.
type activeChat struct {
	chatID   string
	cancel   context.CancelFunc
	consumer *consumer.Consumer
	once     sync.Once
}

type Coordinator struct {
	catalog    *catalog.Catalog
	transcript *transcript.Store
	consumers  *consumer.Manager
	upstream   *upstream.Client
	fanout     *fanout.Fanout
	profiles   modelprofile.Resolver
	timing     config.TimingConfig
	logger     logger.ILogger

	mu     sync.Mutex
	active map[slotKey]*activeChat
}

func New(
	cat *catalog.Catalog,
	ts *transcript.Store,
	cm *consumer.Manager,
	uc *upstream.Client,
	fo *fanout.Fanout,
	profiles modelprofile.Resolver,
	timing config.TimingConfig,
	log logger.ILogger,
) *Coordinator {
	return &Coordinator{
		catalog:    cat,
		transcript: ts,
		consumers:  cm,
		upstream:   uc,
		fanout:     fo,
		profiles:   profiles,
		timing:     timing,
		logger:     log,
		active:     make(map[slotKey]*activeChat),
	}
}

// Stream admits req, replays history, appends the user Message, upserts
// the Session, and launches the producer-trigger/consumer pair in the
// background. It returns as soon as those steps are scheduled: the Bus
// consumer is acquired by that background goroutine, before it fires the
// Upstream trigger, and may not be subscribed yet when Stream returns. The
// replayed and streamed Events arrive over the Fanout room, which the
// caller subscribes to before calling Stream, since the Fanout does not
// keep events for late subscribers.
func (c *Coordinator) Stream(ctx context.Context, req domain.ChatRequest) (catalog.UpsertResult, error) {
	if req.UserID == "" {
		return catalog.UpsertResult{}, apperr.Auth("no current user bound")
	}
	if existing, ok := c.catalog.Get(req.UserID, req.SessionID); ok && existing.TotalChats >= maxChatsPerSession {
		return catalog.UpsertResult{}, apperr.Limit("session chat count exceeds limit")
	}

	room := domain.Fingerprint{UserID: req.UserID, SessionID: req.SessionID, ChatID: req.ChatID, InstanceID: req.InstanceID}.String()

	c.replay(ctx, room, req)
	c.transcript.AppendUser(req.UserID, req.SessionID, req.ChatID, req.Prompt, "")

	sess := &domain.Session{
		ID:            req.SessionID,
		OwnerUserID:   req.UserID,
		CurrentChatID: req.ChatID,
		Source:        domain.SessionSourceLocal,
		TotalChats:    1,
	}
	if existing, ok := c.catalog.Get(req.UserID, req.SessionID); ok {
		sess.TotalChats = existing.TotalChats + 1
		sess.Title = existing.Title
		sess.CreatedAt = existing.CreatedAt
	}
	upsertRes := c.catalog.Upsert(sess)

	key := slotKey{UserID: req.UserID, SessionID: req.SessionID}
	ac := &activeChat{chatID: req.ChatID}

	c.mu.Lock()
	if prior, ok := c.active[key]; ok {
		// A second concurrent submission for the same session supersedes
		// the first: cancel it before this one subscribes, so crossed
		// token streams cannot occur.
		prior.cancel()
	}
	c.active[key] = ac
	c.mu.Unlock()

	go c.runChat(ctx, req, room, ac)

	return upsertRes, nil
}

func (c *Coordinator) replay(ctx context.Context, room string, req domain.ChatRequest) {
	history := c.transcript.History(req.UserID, req.SessionID)

	now := time.Now().UnixMilli()
	c.fanout.Publish(ctx, room, domain.Event{Type: domain.EventHistoryStart, ChatID: req.ChatID, SessionID: req.SessionID, InstanceID: req.InstanceID, Timestamp: now})
	for _, m := range history {
		c.fanout.Publish(ctx, room, domain.Event{
			Type: domain.EventHistory, Content: m.Content, ChatID: m.ChatID, SessionID: req.SessionID, InstanceID: req.InstanceID, Timestamp: now,
			Extra: map[string]interface{}{"role": string(m.Role), "temp_file_name": m.TempFileName},
		})
	}
	c.fanout.Publish(ctx, room, domain.Event{Type: domain.EventHistoryEnd, ChatID: req.ChatID, SessionID: req.SessionID, InstanceID: req.InstanceID, Timestamp: now})
}

// runChat is the per-chat state machine: it owns the consumer acquire, the
// producer-trigger goroutine, the Thinking Parser buffer, and the
// idle/quiescence/safety gates from the concurrency model, terminating on
// the first qualifying condition.
func (c *Coordinator) runChat(parentCtx context.Context, req domain.ChatRequest, room string, ac *activeChat) {
	ctx, cancel := context.WithCancel(parentCtx)
	ac.cancel = cancel
	defer cancel()

	msgCh := make(chan bus.Msg, 64)
	cons, err := c.consumers.Acquire(ctx, bus.QueueChat, req.InstanceID, req.UserID, req.SessionID, req.ChatID, func(m bus.Msg) {
		select {
		case msgCh <- m:
		case <-ctx.Done():
		}
	})
	if err != nil {
		c.logger.Warn("Coordinator", "consumer acquire failed", map[string]interface{}{
			"user_id": req.UserID, "session_id": req.SessionID, "chat_id": req.ChatID, "error": err.Error(),
		})
		c.emitError(ctx, room, req, "consumer_unavailable")
		c.finish(ctx, req, room, ac, domain.CompletionError, 0)
		return
	}
	ac.consumer = cons

	upstreamDone := make(chan upstream.Result, 1)
	go func() {
		upstreamDone <- c.upstream.TriggerChat(ctx, req, room)
	}()

	var asst *domain.Message
	buf := thinking.NewBuffer(c.profiles.Resolve(req.ModelID))

	var upstreamSaidComplete, gotFirstMessage bool
	var totalTokens int

	idleTimer := time.NewTimer(c.timing.IdleBeforeFirstPending)
	defer idleTimer.Stop()
	quiescenceTimer := time.NewTimer(c.timing.SafetyTimeout)
	quiescenceTimer.Stop()
	defer quiescenceTimer.Stop()
	safetyTimer := time.NewTimer(c.timing.SafetyTimeout)
	defer safetyTimer.Stop()

	quiescenceWindow := func() time.Duration {
		if upstreamSaidComplete {
			return c.timing.QuiescenceDone
		}
		return c.timing.QuiescenceNone
	}

	for {
		select {
		case <-ctx.Done():
			// Superseded or stopped elsewhere; that path owns the terminal
			// complete event (if any), this goroutine just exits.
			return

		case res := <-upstreamDone:
			if res.Err != nil {
				if errors.Is(res.Err, context.DeadlineExceeded) {
					c.logger.Warn("Coordinator", "upstream chat call timed out, waiting on bus for tokens", map[string]interface{}{
						"user_id": req.UserID, "session_id": req.SessionID, "chat_id": req.ChatID,
					})
					continue
				}
				c.emitError(ctx, room, req, "upstream_unavailable")
				select {
				case <-time.After(c.timing.ErrorDrain):
				case <-ctx.Done():
				}
				c.finish(ctx, req, room, ac, domain.CompletionError, totalTokens)
				return
			}

			upstreamSaidComplete = res.IsComplete
			if req.ChatID == "1" && res.SessionName != "" {
				c.reconcileFirstChat(req.UserID, req.SessionID, res.SessionName)
			}
			if !gotFirstMessage && upstreamSaidComplete {
				resetTimer(idleTimer, c.timing.IdleBeforeFirstDone)
			} else if gotFirstMessage && upstreamSaidComplete {
				resetTimer(quiescenceTimer, c.timing.QuiescenceDone)
			}

		case m := <-msgCh:
			payload, decodeErr := bus.DecodeChatMessage(m.Data())
			_ = m.Ack()
			if decodeErr != nil || payload.Kind == bus.KindUnknown {
				continue // PROTOCOL: malformed payload, ignored silently
			}
			if payload.ChatID != "" && payload.ChatID != req.ChatID {
				continue // message filtering by chatId
			}

			if payload.Kind == bus.KindStatusDone {
				c.finish(ctx, req, room, ac, domain.CompletionNormal, totalTokens)
				return
			}

			if !gotFirstMessage {
				gotFirstMessage = true
				idleTimer.Stop()
				resetTimer(quiescenceTimer, quiescenceWindow())
			} else {
				resetTimer(quiescenceTimer, quiescenceWindow())
			}
			totalTokens++
			if asst == nil {
				asst = c.transcript.EnsureAssistant(req.UserID, req.SessionID, req.ChatID)
			}
			c.emitThinking(ctx, room, req, asst, buf.Feed(payload.Text))

		case <-idleTimer.C:
			if !gotFirstMessage {
				c.finish(ctx, req, room, ac, domain.CompletionTimeoutStopped, totalTokens)
				return
			}

		case <-quiescenceTimer.C:
			c.finish(ctx, req, room, ac, domain.CompletionTimeoutStopped, totalTokens)
			return

		case <-safetyTimer.C:
			c.finish(ctx, req, room, ac, domain.CompletionTimeoutStopped, totalTokens)
			return
		}
	}
}

// emitThinking turns one Feed() call's emissions into push-channel Events
// and the corresponding Transcript Store mutations: plain stream tokens
// grow the assistant Message's content, a move_to_thinking sets its
// thinkingContent, pending-thinking tokens are surfaced to the client but
// never written to content (they are retroactively relocated).
func (c *Coordinator) emitThinking(ctx context.Context, room string, req domain.ChatRequest, asst *domain.Message, emissions []thinking.Emission) {
	now := time.Now().UnixMilli()
	for _, e := range emissions {
		switch e.Kind {
		case thinking.EmitStream:
			if e.IsPendingThinking {
				c.fanout.Publish(ctx, room, domain.Event{
					Type: domain.EventStream, Content: e.Text, ChatID: req.ChatID, SessionID: req.SessionID, InstanceID: req.InstanceID, Timestamp: now,
					Extra: map[string]interface{}{"messageId": e.MessageID, "isPendingThinking": true},
				})
				continue
			}
			c.transcript.AppendToken(asst, e.Text)
			c.fanout.Publish(ctx, room, domain.Event{Type: domain.EventStream, Content: e.Text, ChatID: req.ChatID, SessionID: req.SessionID, InstanceID: req.InstanceID, Timestamp: now})

		case thinking.EmitMoveToThinking:
			c.transcript.SetThinking(asst, e.Text)
			c.fanout.Publish(ctx, room, domain.Event{
				Type: domain.EventMoveToThinking, ChatID: req.ChatID, SessionID: req.SessionID, InstanceID: req.InstanceID, Timestamp: now,
				Extra: map[string]interface{}{"messageId": e.MessageID, "pendingTokens": e.PendingTokens},
			})

		case thinking.EmitThinkingComplete:
			c.fanout.Publish(ctx, room, domain.Event{
				Type: domain.EventThinkingComplete, ChatID: req.ChatID, SessionID: req.SessionID, InstanceID: req.InstanceID, Timestamp: now,
				Extra: map[string]interface{}{"messageId": e.MessageID},
			})
		}
	}
}

func (c *Coordinator) emitError(ctx context.Context, room string, req domain.ChatRequest, code string) {
	c.fanout.Publish(ctx, room, domain.Event{
		Type: domain.EventError, ChatID: req.ChatID, SessionID: req.SessionID, InstanceID: req.InstanceID, Timestamp: time.Now().UnixMilli(),
		Extra: map[string]interface{}{"error_code": code},
	})
}

// finish seals the chat exactly once: marks the assistant/user Message
// pair complete, cancels the consumer, emits the terminal complete Event,
// and releases the (userId, sessionId) slot.
func (c *Coordinator) finish(ctx context.Context, req domain.ChatRequest, room string, ac *activeChat, completionType domain.CompletionType, totalTokens int) {
	ac.once.Do(func() {
		c.transcript.MarkComplete(req.UserID, req.SessionID, req.ChatID, totalTokens)
		if ac.consumer != nil {
			c.consumers.Cancel(ac.consumer)
		}

		reason := ""
		if completionType == domain.CompletionTimeoutStopped {
			reason = "timeout"
		}
		c.fanout.Publish(ctx, room, domain.Event{
			Type: domain.EventComplete, ChatID: req.ChatID, SessionID: req.SessionID, InstanceID: req.InstanceID, Timestamp: time.Now().UnixMilli(),
			Extra: map[string]interface{}{"completion_type": completionType, "total_tokens": totalTokens, "reason": reason},
		})

		c.deactivate(req.UserID, req.SessionID, ac)
	})
}

// FlushUser cancels every chat still running for userID, so no runChat
// goroutine keeps writing to the Transcript Store or publishing to the
// Fanout after session.Context.Logout has cleared that user's
// process-memory state elsewhere. Registered as a registry.FlushHook by
// bootstrap. Like a superseded chat, a cancelled-on-logout chat emits no
// terminal event — the user is no longer subscribed to hear it.
func (c *Coordinator) FlushUser(userID string) {
	c.mu.Lock()
	var toCancel []*activeChat
	for key, ac := range c.active {
		if key.UserID == userID {
			toCancel = append(toCancel, ac)
			delete(c.active, key)
		}
	}
	c.mu.Unlock()

	for _, ac := range toCancel {
		if ac.cancel != nil {
			ac.cancel()
		}
	}
}

func (c *Coordinator) deactivate(userID, sessionID string, ac *activeChat) {
	key := slotKey{UserID: userID, SessionID: sessionID}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.active[key]; ok && cur == ac {
		delete(c.active, key)
	}
}

// reconcileFirstChat applies the first-chat title immediately and fires a
// non-blocking background re-sync against Upstream's authoritative
// session-index, per the open question on reconciliation blocking.
func (c *Coordinator) reconcileFirstChat(userID, sessionID, sessionName string) {
	if sess, ok := c.catalog.Get(userID, sessionID); ok {
		sess.Title = sessionName
		c.catalog.Upsert(sess)
	}
	go func() {
		if err := c.upstream.SessionName(context.Background(), userID); err != nil {
			c.logger.Warn("Coordinator", "background session resync failed", map[string]interface{}{"user_id": userID, "error": err.Error()})
		}
	}()
}

// resetTimer safely rearms t to fire after d, draining a pending-but-unread
// expiration first so two fires can never stack.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
