package controller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionController_CreateSession_SeedsCatalog(t *testing.T) {
	h := newTestHarness(t)
	c := NewSessionController(h.Catalog, h.Transcript, h.Upstream, h.Logger)

	app := newTestApp()
	c.RegisterRoutes(app.Group("/api"))

	body := strings.NewReader(`{"title":"My First Chat"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/session/v1/chatsession", body)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "u1"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var decoded struct {
		Data struct {
			SessionID string `json:"session_id"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.NotEmpty(t, decoded.Data.SessionID)

	assert.Len(t, h.Catalog.List("u1"), 1)
}

func TestSessionController_DeleteSession_RequiresAuth(t *testing.T) {
	h := newTestHarness(t)
	c := NewSessionController(h.Catalog, h.Transcript, h.Upstream, h.Logger)

	app := newTestApp()
	c.RegisterRoutes(app.Group("/api"))

	req := httptest.NewRequest(http.MethodDelete, "/api/session/v1/deletesession/s1", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
