package bus

import "encoding/json"

// PayloadKind discriminates the dynamic shapes that share the chat and
// session-index queues, per the design note on dynamic payload shapes: do
// not try to unify these into one struct, decode structurally instead.
type PayloadKind string

const (
	KindToken      PayloadKind = "token"
	KindContent    PayloadKind = "content"
	KindStatusDone PayloadKind = "status_done"
	KindIndex      PayloadKind = "index"
	KindUnknown    PayloadKind = "unknown"
)

// ChatPayload is the normalized result of decoding one message off the chat
// queue, regardless of which of the three wire shapes it arrived in.
type ChatPayload struct {
	Kind   PayloadKind
	Text   string
	ChatID string
}

// IndexEntry is one (sessionId, title) pair out of an Upstream
// session-index publication.
type IndexEntry struct {
	SessionID string
	Title     string
	CreatedAt string
}

type rawChatMessage struct {
	Type   string `json:"type"`
	Data   string `json:"data"`
	Status string `json:"status"`
	Token  string `json:"token"`
	Content string `json:"content"`
	ChatID string `json:"chat_id"`
}

// DecodeChatMessage structurally classifies a chat-queue payload: tokens
// carry "data", content fragments carry "content", and both status shapes
// ({type:"status",token:"done"} and {type:"completion",status:"done"})
// signal canonical completion.
func DecodeChatMessage(raw []byte) (ChatPayload, error) {
	var m rawChatMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return ChatPayload{}, err
	}

	if (m.Type == "status" && m.Token == "done") || (m.Type == "completion" && m.Status == "done") {
		return ChatPayload{Kind: KindStatusDone, ChatID: m.ChatID}, nil
	}
	if m.Type == "token" && m.Data != "" {
		return ChatPayload{Kind: KindToken, Text: m.Data, ChatID: m.ChatID}, nil
	}
	if m.Content != "" {
		return ChatPayload{Kind: KindContent, Text: m.Content, ChatID: m.ChatID}, nil
	}
	if m.Data != "" {
		return ChatPayload{Kind: KindToken, Text: m.Data, ChatID: m.ChatID}, nil
	}
	return ChatPayload{Kind: KindUnknown, ChatID: m.ChatID}, nil
}

type rawIndexObject struct {
	UserID   string `json:"user_id"`
	Sessions []struct {
		SID       string `json:"s_id"`
		SName     string `json:"s_name"`
		CreatedAt string `json:"created_at"`
	} `json:"sessions"`
}

// DecodeSessionIndex accepts any of the three documented session-index
// shapes: a direct array of [sid, title] pairs, a single {user_id, sessions}
// object, or an array of such objects.
func DecodeSessionIndex(raw []byte) ([]IndexEntry, error) {
	// Shape 1: array of [sid, title] pairs.
	var pairs [][2]string
	if err := json.Unmarshal(raw, &pairs); err == nil && len(pairs) > 0 {
		entries := make([]IndexEntry, 0, len(pairs))
		for _, p := range pairs {
			entries = append(entries, IndexEntry{SessionID: p[0], Title: p[1]})
		}
		return entries, nil
	}

	// Shape 3: array of {user_id, sessions} objects.
	var objs []rawIndexObject
	if err := json.Unmarshal(raw, &objs); err == nil && len(objs) > 0 {
		var entries []IndexEntry
		for _, o := range objs {
			for _, s := range o.Sessions {
				entries = append(entries, IndexEntry{SessionID: s.SID, Title: s.SName, CreatedAt: s.CreatedAt})
			}
		}
		return entries, nil
	}

	// Shape 2: single object.
	var obj rawIndexObject
	if err := json.Unmarshal(raw, &obj); err == nil && len(obj.Sessions) > 0 {
		entries := make([]IndexEntry, 0, len(obj.Sessions))
		for _, s := range obj.Sessions {
			entries = append(entries, IndexEntry{SessionID: s.SID, Title: s.SName, CreatedAt: s.CreatedAt})
		}
		return entries, nil
	}

	return nil, nil
}
