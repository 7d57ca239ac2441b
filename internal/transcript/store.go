// Package transcript implements the Transcript Store: the ordered message
// log per (userId, sessionId) and the completion/scrub bookkeeping the
// Streaming Coordinator and Stop Control rely on.
package transcript

import (
	"time"

	"streamchat-orchestrator/internal/domain"
	"streamchat-orchestrator/internal/pkg/logger"
	"streamchat-orchestrator/internal/repository/memory"
)

type Store struct {
	repo   *memory.TranscriptRepository
	logger logger.ILogger
}

func New(repo *memory.TranscriptRepository, log logger.ILogger) *Store {
	return &Store{repo: repo, logger: log}
}

// AppendUser records an incoming prompt as an incomplete user Message.
func (s *Store) AppendUser(userID, sessionID, chatID, content string, tempFileName string) *domain.Message {
	m := &domain.Message{
		Role:         domain.RoleUser,
		Content:      content,
		ChatID:       chatID,
		SessionID:    sessionID,
		UserID:       userID,
		Timestamp:    time.Now(),
		MessageType:  domain.MessageTypePlain,
		IsComplete:   false,
		TempFileName: tempFileName,
	}
	s.repo.Append(userID, sessionID, m)
	return m
}

// EnsureAssistant returns the chat's in-progress assistant Message,
// creating it if none exists yet. The Coordinator calls it at the first
// delivered token, per the data model's "created lazily at the first
// delivered token" lifecycle rule.
func (s *Store) EnsureAssistant(userID, sessionID, chatID string) *domain.Message {
	for _, m := range s.repo.Snapshot(userID, sessionID) {
		if m.Role == domain.RoleAssistant && m.ChatID == chatID && !m.IsComplete {
			return m
		}
	}
	m := &domain.Message{
		Role:        domain.RoleAssistant,
		ChatID:      chatID,
		SessionID:   sessionID,
		UserID:      userID,
		Timestamp:   time.Now(),
		MessageType: domain.MessageTypePlain,
		IsComplete:  false,
	}
	s.repo.Append(userID, sessionID, m)
	return m
}

// AppendToken grows the assistant Message's content in place and bumps its
// token count. The Message pointer is shared with whatever Snapshot
// returned earlier, matching the "created lazily, mutated until complete"
// rule — it's safe because only the Coordinator mutates it and readers take
// a snapshot.
func (s *Store) AppendToken(msg *domain.Message, text string) {
	msg.Content += text
	msg.TokenCount++
}

// SetThinking records the extracted thinking interior on the chat's
// assistant Message, per the thinking parser's persistence rule.
func (s *Store) SetThinking(msg *domain.Message, thinking string) {
	msg.ThinkingContent += thinking
	msg.HasThinking = true
}

// History returns the ordered transcript for replay.
func (s *Store) History(userID, sessionID string) []*domain.Message {
	return s.repo.Snapshot(userID, sessionID)
}

// LastAssistant returns the most recently appended assistant Message for
// (userId, sessionId), regardless of completion state.
func (s *Store) LastAssistant(userID, sessionID string) (*domain.Message, bool) {
	msgs := s.repo.Snapshot(userID, sessionID)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleAssistant {
			return msgs[i], true
		}
	}
	return nil, false
}

// findUnpairedUser walks backwards from the end of the transcript looking
// for the first user Message matching chatID that is not yet complete.
func (s *Store) findUnpairedUser(userID, sessionID, chatID string) (*domain.Message, bool) {
	msgs := s.repo.Snapshot(userID, sessionID)
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Role == domain.RoleUser && m.ChatID == chatID && !m.IsComplete {
			return m, true
		}
	}
	return nil, false
}

// MarkComplete finalizes the canonical completion for a chat: the chat's
// assistant Message is sealed with totalTokens and a completion timestamp,
// then its paired user Message (found by walking backwards) is sealed too.
// Per the invariant, a sealed Message is never mutated again after this.
func (s *Store) MarkComplete(userID, sessionID, chatID string, totalTokens int) {
	for _, m := range s.repo.Snapshot(userID, sessionID) {
		if m.Role == domain.RoleAssistant && m.ChatID == chatID && !m.IsComplete {
			m.IsComplete = true
			m.MessageType = domain.MessageTypeCompleteResponse
			m.CompletionTimestamp = time.Now()
			m.TokenCount = totalTokens
			break
		}
	}
	if userMsg, ok := s.findUnpairedUser(userID, sessionID, chatID); ok {
		userMsg.IsComplete = true
	}
}

// Scrub removes every incomplete Message for chatID — the stop/timeout
// cleanup path. Returns how many were removed, for logging.
func (s *Store) Scrub(userID, sessionID, chatID string) int {
	n := s.repo.ScrubIncomplete(userID, sessionID, chatID)
	if n > 0 {
		s.logger.Info("TranscriptStore", "scrubbed incomplete messages", map[string]interface{}{
			"user_id": userID, "session_id": sessionID, "chat_id": chatID, "removed": n,
		})
	}
	return n
}

// OnSessionEvicted implements catalog.EvictionHook: a session falling out
// of the sliding window takes its transcript with it.
func (s *Store) OnSessionEvicted(userID, sessionID string) {
	s.repo.Delete(userID, sessionID)
}

// FlushUser deletes every transcript in sessionIDs, part of the logout
// total flush. The caller (the session package) supplies the set of
// session ids the catalog held for this user just before clearing it.
func (s *Store) FlushUser(userID string, sessionIDs []string) {
	s.repo.DeleteUser(userID, sessionIDs)
}
