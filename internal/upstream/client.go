// Package upstream is the HTTP client for the LLM inference service this
// gateway fronts. TriggerChat translates a failure into an explicit Result
// rather than letting callers catch an error ad hoc, per the design note on
// exception-driven control flow; the session-name, history, stop and
// delete calls return a plain error.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"streamchat-orchestrator/internal/domain"
)

// Result is the outcome of one Upstream call. IsComplete/Content surface
// the chat-call's own completion signal, which the Streaming Coordinator
// folds into its idle-timeout gates; Err is non-nil only on a transport or
// protocol failure, never on a well-formed "not complete yet" reply.
type Result struct {
	IsComplete bool
	Content    string
	SessionName string
	Err        error
}

type Client struct {
	baseURL string
	http    *http.Client

	metadataTimeout time.Duration
	historyTimeout  time.Duration
	chatTimeout     time.Duration
	stopTimeout     time.Duration
}

func New(baseURL string, metadataTimeout, historyTimeout, chatTimeout, stopTimeout time.Duration) *Client {
	return &Client{
		baseURL:         baseURL,
		http:            &http.Client{},
		metadataTimeout: metadataTimeout,
		historyTimeout:  historyTimeout,
		chatTimeout:     chatTimeout,
		stopTimeout:     stopTimeout,
	}
}

type chatRequestPayload struct {
	UserID             string   `json:"user_id"`
	ChatID             string   `json:"chat_id"`
	SessionID          string   `json:"session_id"`
	LLMModelID         string   `json:"llm_model_id"`
	SummarizeFlag      bool     `json:"summarize_flag"`
	CodebaseSearchFlag bool     `json:"codebase_search_flag"`
	PersonalizeFlag    bool     `json:"personalize_flag"`
	TempFileFlag       bool     `json:"temp_file_flag"`
	FirstChatFlag      bool     `json:"first_chat_flag"`
	WebSearchFlag      bool     `json:"web_search_flag"`
	Prompt             string   `json:"prompt"`
	TempFilePaths      []string `json:"temp_file_paths"`
	RoomID             string   `json:"room_id"`
}

type chatReplyPayload struct {
	IsComplete  bool   `json:"is_complete"`
	Content     string `json:"content"`
	SessionName string `json:"session_name"`
}

// TriggerChat POSTs the prompt envelope to Upstream's /chat producer
// trigger. A transport error does not necessarily mean the chat failed —
// the Bus may still deliver tokens from Upstream's background worker — so
// the caller decides how to react, this just reports what happened.
func (c *Client) TriggerChat(ctx context.Context, req domain.ChatRequest, roomID string) Result {
	ctx, cancel := context.WithTimeout(ctx, c.chatTimeout)
	defer cancel()

	body := chatRequestPayload{
		UserID:             req.UserID,
		ChatID:             req.ChatID,
		SessionID:          req.SessionID,
		LLMModelID:         req.ModelID,
		SummarizeFlag:      req.Flags.SummarizeFlag,
		CodebaseSearchFlag: req.Flags.CodebaseSearchFlag,
		PersonalizeFlag:    req.Flags.PersonalizeFlag,
		TempFileFlag:       req.Flags.TempFileFlag,
		FirstChatFlag:      req.Flags.FirstChatFlag,
		WebSearchFlag:      req.Flags.WebSearchFlag,
		Prompt:             req.Prompt,
		TempFilePaths:      req.TempFilePaths,
		RoomID:             roomID,
	}

	var reply chatReplyPayload
	if err := c.postJSON(ctx, "/chat", body, &reply); err != nil {
		return Result{Err: err}
	}
	return Result{IsComplete: reply.IsComplete, Content: reply.Content, SessionName: reply.SessionName}
}

// SessionName triggers the FIFO re-sync: Upstream publishes the
// authoritative latest-10 session list to the session-index queue as a
// side effect of this call.
func (c *Client) SessionName(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.metadataTimeout)
	defer cancel()
	return c.postJSON(ctx, "/sessionName", map[string]string{"user_id": userID}, nil)
}

// History fetches a session's transcript from Upstream when the process
// memory copy is absent (memory-first cache policy).
func (c *Client) History(ctx context.Context, userID, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.historyTimeout)
	defer cancel()
	return c.postJSON(ctx, "/sessionhistory", map[string]string{"user_id": userID, "session_id": sessionID}, nil)
}

// Stop forwards the stop intent. Per the stop semantics, a transport error
// or timeout here must never block the caller's local cleanup — it is the
// caller's responsibility to proceed regardless of this return value.
func (c *Client) Stop(ctx context.Context, userID, sessionID, chatID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.stopTimeout)
	defer cancel()
	return c.postJSON(ctx, "/stop", map[string]string{"user_id": userID, "session_id": sessionID, "chat_id": chatID}, nil)
}

// DeleteSession removes a session on Upstream.
func (c *Client) DeleteSession(ctx context.Context, userID, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.metadataTimeout)
	defer cancel()
	url := fmt.Sprintf("%s/deletesession/%s", c.baseURL, sessionID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("X-User-Id", userID)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("upstream delete session: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("upstream: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("upstream: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("upstream: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("upstream: %s: status %d", path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("upstream: %s: decode reply: %w", path, err)
	}
	return nil
}
