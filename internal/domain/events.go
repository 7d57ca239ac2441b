package domain

// EventType enumerates the push-channel event vocabulary from the external
// interfaces section: history replay, streaming, thinking relocation and
// termination.
type EventType string

const (
	EventHistoryStart     EventType = "history_start"
	EventHistory          EventType = "history"
	EventHistoryEnd       EventType = "history_end"
	EventThinking         EventType = "thinking"
	EventThinkingComplete EventType = "thinking_complete"
	EventMoveToThinking   EventType = "move_to_thinking"
	EventStream           EventType = "stream"
	EventError            EventType = "error"
	EventComplete         EventType = "complete"
	EventCleanupGeneration EventType = "cleanup-generation"
)

// Event is the envelope delivered to a room. Fields beyond the common
// envelope are event-type specific and left as the loosely-typed Extra map
// so the wire encoder can omit empties per event kind, matching the
// envelope described in the external interfaces section.
type Event struct {
	Type       EventType              `json:"type"`
	Content    string                 `json:"content,omitempty"`
	ChatID     string                 `json:"chat_id,omitempty"`
	SessionID  string                 `json:"session_id,omitempty"`
	InstanceID string                 `json:"instance_id,omitempty"`
	Timestamp  int64                  `json:"timestamp"`
	Extra      map[string]interface{} `json:"-"`
}

// MarshalExtra flattens Extra into a generic map for JSON encoding, since
// Go's json package can't merge a struct and a map in one pass.
func (e Event) MarshalExtra() map[string]interface{} {
	out := map[string]interface{}{
		"type":       e.Type,
		"chat_id":    e.ChatID,
		"session_id": e.SessionID,
		"timestamp":  e.Timestamp,
	}
	if e.Content != "" {
		out["content"] = e.Content
	}
	if e.InstanceID != "" {
		out["instance_id"] = e.InstanceID
	}
	for k, v := range e.Extra {
		out[k] = v
	}
	return out
}
