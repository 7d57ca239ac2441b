package dto

import "streamchat-orchestrator/internal/domain"

// SessionView is the client-facing projection of a domain.Session.
type SessionView struct {
	SessionID     string `json:"session_id"`
	Title         string `json:"title"`
	CurrentChatID string `json:"current_chat_id"`
	TotalChats    int    `json:"total_chats"`
	TitleSource   string `json:"title_source"`
}

func NewSessionView(s *domain.Session) SessionView {
	return SessionView{
		SessionID:     s.ID,
		Title:         s.Title,
		CurrentChatID: s.CurrentChatID,
		TotalChats:    s.TotalChats,
		TitleSource:   string(s.Source),
	}
}

// CreateSessionRequest is the wire shape of POST /chatsession.
type CreateSessionRequest struct {
	Title string `json:"title"`
}

// CreateSessionResponse reports the minted session id plus any
// sliding-window side effect the mint triggered (scenario 4).
type CreateSessionResponse struct {
	SessionID        string            `json:"session_id"`
	WindowManagement *WindowManagement `json:"window_management,omitempty"`
}

// SessionHistoryRequest is the wire shape of POST /sessionhistory.
type SessionHistoryRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// MessageView is the client-facing projection of a domain.Message.
type MessageView struct {
	Role            string `json:"role"`
	Content         string `json:"content"`
	ThinkingContent string `json:"thinking_content,omitempty"`
	HasThinking     bool   `json:"has_thinking,omitempty"`
	ChatID          string `json:"chat_id"`
	IsComplete      bool   `json:"is_complete"`
	TokenCount      int    `json:"token_count,omitempty"`
	TempFileName    string `json:"temp_file_name,omitempty"`
}

func NewMessageView(m *domain.Message) MessageView {
	return MessageView{
		Role:            string(m.Role),
		Content:         m.Content,
		ThinkingContent: m.ThinkingContent,
		HasThinking:     m.HasThinking,
		ChatID:          m.ChatID,
		IsComplete:      m.IsComplete,
		TokenCount:      m.TokenCount,
		TempFileName:    m.TempFileName,
	}
}
