// Package domain holds the data model shared by every component of the
// orchestrator: sessions, chats, messages, transcripts and the small set of
// value objects used to address a push-channel room.
package domain

import "time"

// SessionSource records where a Session's current title came from, so the
// catalog can apply Upstream-wins-on-conflict precedence deterministically.
type SessionSource string

const (
	SessionSourceLocal               SessionSource = "local"
	SessionSourceUpstream            SessionSource = "upstream"
	SessionSourceLocalUpdatedUpstream SessionSource = "local_updated_from_upstream"
)

// Session is one FIFO-windowed conversation container for a user.
type Session struct {
	ID            string
	Title         string
	OwnerUserID   string
	CurrentChatID string
	TotalChats    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Source        SessionSource
}

// MessageRole distinguishes the two transcript lanes.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// MessageType mirrors the completion/partial distinction clients key off of.
type MessageType string

const (
	MessageTypePlain          MessageType = "plain"
	MessageTypeCompleteResponse MessageType = "complete_response"
)

// Message is one entry of a chat transcript. Once IsComplete is true a
// Message is never mutated again.
type Message struct {
	Role                MessageRole
	Content             string
	ThinkingContent     string
	HasThinking         bool
	ChatID              string
	SessionID           string
	UserID              string
	Timestamp           time.Time
	CompletionTimestamp time.Time
	MessageType         MessageType
	IsComplete          bool
	TokenCount          int
	TempFileName        string
}

// TranscriptKey identifies a transcript by its owning user and session.
type TranscriptKey struct {
	UserID    string
	SessionID string
}

// Fingerprint is the room-addressing unit for push delivery:
// chat_{userId}_{sessionId}_{chatId}[_{instanceId}].
type Fingerprint struct {
	UserID     string
	SessionID  string
	ChatID     string
	InstanceID string
}

// String renders the canonical room name.
func (f Fingerprint) String() string {
	s := "chat_" + f.UserID + "_" + f.SessionID + "_" + f.ChatID
	if f.InstanceID != "" {
		s += "_" + f.InstanceID
	}
	return s
}

// UpstreamCursor is the per-user watermark recorded at login: locally-minted
// session ids must start strictly above it.
type UpstreamCursor struct {
	UserID                string
	LastUpstreamSessionID  int64
	LocalCounter           int64
}

// ModelProfile maps a model id to its thinking-tag vocabulary. When
// SupportsThinking is false all four tag strings are empty and the thinking
// parser degrades to a pass-through.
type ModelProfile struct {
	ModelID          string
	SupportsThinking bool
	ThinkStart       string
	ThinkEnd         string
	ResponseStart    string
	ResponseEnd      string
	// SpecialProfile marks model families (e.g. "gpt-oss") where the
	// ResponseStart marker itself terminates the thinking region instead of
	// ThinkEnd.
	SpecialProfile string
}

// PromptFlags is the boolean flag set forwarded verbatim to Upstream on a
// chat request.
type PromptFlags struct {
	SummarizeFlag       bool
	CodebaseSearchFlag  bool
	PersonalizeFlag     bool
	TempFileFlag        bool
	FirstChatFlag       bool
	WebSearchFlag       bool
}

// ChatRequest is the input to the Streaming Coordinator.
type ChatRequest struct {
	Prompt         string
	UserID         string
	SessionID      string
	ChatID         string
	InstanceID     string
	ModelID        string
	Flags          PromptFlags
	TempFilePaths  []string
}

// CompletionType distinguishes how a chat's terminal complete event arose.
type CompletionType string

const (
	CompletionNormal        CompletionType = "normal"
	CompletionUserStopped   CompletionType = "user_stopped"
	CompletionTimeoutStopped CompletionType = "timeout_stopped"
	CompletionError         CompletionType = "error"
)
