package dto

// ChatRequest is the wire shape of POST /chat. SessionId is optional: an
// empty value asks the handler to mint a fresh session via the catalog
// before admitting the chat.
type ChatRequest struct {
	Prompt             string   `json:"prompt" validate:"required"`
	SessionID          string   `json:"session_id"`
	ChatID             string   `json:"chat_id" validate:"required"`
	InstanceID         string   `json:"instance_id"`
	ModelID            string   `json:"model_id" validate:"required"`
	SummarizeFlag      bool     `json:"summarize_flag"`
	CodebaseSearchFlag bool     `json:"codebase_search_flag"`
	PersonalizeFlag    bool     `json:"personalize_flag"`
	TempFileFlag       bool     `json:"temp_file_flag"`
	FirstChatFlag      bool     `json:"first_chat_flag"`
	WebSearchFlag      bool     `json:"web_search_flag"`
	TempFilePaths      []string `json:"temp_file_paths"`
}

// ChatAdmittedResponse is the first line of the chunked /chat reply: the
// window-management side effects of admission, before any token arrives.
type ChatAdmittedResponse struct {
	SessionID        string            `json:"session_id"`
	ChatID           string            `json:"chat_id"`
	WindowManagement *WindowManagement `json:"window_management,omitempty"`
}

type WindowManagement struct {
	DeletedSession  *DeletedSession `json:"deleted_session,omitempty"`
	NearLimitWarning bool           `json:"near_limit_warning,omitempty"`
}

type DeletedSession struct {
	SessionID string `json:"session_id"`
}

// StopRequest is the wire shape of POST /stop.
type StopRequest struct {
	SessionID  string `json:"session_id" validate:"required"`
	ChatID     string `json:"chat_id" validate:"required"`
	InstanceID string `json:"instance_id"`
}

// StopResponse always reports success once local cleanup has completed,
// per §4.2: Upstream's own failure never blocks this from being true.
type StopResponse struct {
	CleanupCompleted bool `json:"cleanup_completed"`
}
