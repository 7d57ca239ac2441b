package controller

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"streamchat-orchestrator/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatController_SessionCount_RequiresAuth(t *testing.T) {
	h := newTestHarness(t)
	c := NewChatController(h.Coordinator, h.Catalog, h.Fanout, h.Registry)

	app := newTestApp()
	c.RegisterRoutes(app.Group("/api"))

	req := httptest.NewRequest(http.MethodGet, "/api/chat/v1/sessioncount", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestChatController_SessionCount_ReflectsCatalog(t *testing.T) {
	h := newTestHarness(t)
	c := NewChatController(h.Coordinator, h.Catalog, h.Fanout, h.Registry)
	h.Catalog.Upsert(&domain.Session{ID: "s1", OwnerUserID: "u1", Source: domain.SessionSourceLocal})

	app := newTestApp()
	c.RegisterRoutes(app.Group("/api"))

	req := httptest.NewRequest(http.MethodGet, "/api/chat/v1/sessioncount", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "u1"))
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			Count int `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Data.Count)
}

func TestChatController_NextChatID_ReturnsDistinctIDs(t *testing.T) {
	h := newTestHarness(t)
	c := NewChatController(h.Coordinator, h.Catalog, h.Fanout, h.Registry)

	app := newTestApp()
	c.RegisterRoutes(app.Group("/api"))

	get := func() string {
		req := httptest.NewRequest(http.MethodPost, "/api/chat/v1/nextchatid", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, "u1"))
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		var body struct {
			Data struct {
				ChatID string `json:"chat_id"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return body.Data.ChatID
	}

	a, b := get(), get()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

// TestChatController_Chat_StreamsAdmittedThenCompleteEvent drives the one
// endpoint implementing the core streaming contract end to end: it must
// observe the admitted envelope first, never lose the history brackets
// replay() publishes before the caller's subscription existed, and end on
// exactly one complete event. The harness's Upstream points at an
// unreachable address, so the chat fails fast through the
// consumer/upstream-unavailable path rather than waiting on a real Bus.
func TestChatController_Chat_StreamsAdmittedThenCompleteEvent(t *testing.T) {
	h := newTestHarness(t)
	c := NewChatController(h.Coordinator, h.Catalog, h.Fanout, h.Registry)

	app := newTestApp()
	c.RegisterRoutes(app.Group("/api"))

	body := strings.NewReader(`{"prompt":"hi","chat_id":"1","model_id":"plain-model"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat/v1", body)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "u1"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())
	require.NotEmpty(t, lines)

	assert.Contains(t, lines[0], "session_id")
	assert.Contains(t, lines[0], "chat_id")

	var sawHistoryStart, sawHistoryEnd bool
	for _, ev := range lines[1:] {
		switch ev["type"] {
		case string(domain.EventHistoryStart):
			sawHistoryStart = true
		case string(domain.EventHistoryEnd):
			sawHistoryEnd = true
		}
	}
	assert.True(t, sawHistoryStart, "history_start must survive the race with the caller's subscription")
	assert.True(t, sawHistoryEnd, "history_end must survive the race with the caller's subscription")

	last := lines[len(lines)-1]
	assert.Equal(t, string(domain.EventComplete), last["type"])
}

func TestChatController_Stop_RejectsMissingFields(t *testing.T) {
	h := newTestHarness(t)
	c := NewChatController(h.Coordinator, h.Catalog, h.Fanout, h.Registry)

	app := newTestApp()
	c.RegisterRoutes(app.Group("/api"))

	req := httptest.NewRequest(http.MethodPost, "/api/chat/v1/stop", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "u1"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
