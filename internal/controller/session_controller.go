package controller

import (
	"streamchat-orchestrator/internal/apperr"
	"streamchat-orchestrator/internal/catalog"
	"streamchat-orchestrator/internal/domain"
	"streamchat-orchestrator/internal/dto"
	"streamchat-orchestrator/internal/pkg/logger"
	"streamchat-orchestrator/internal/pkg/serverutils"
	"streamchat-orchestrator/internal/transcript"
	"streamchat-orchestrator/internal/upstream"

	"github.com/gofiber/fiber/v2"
)

// SessionController owns the Session Catalog's HTTP surface: §6's
// POST /sessionName, POST /sessionhistory, POST /chatsession,
// DELETE /deletesession/{id}.
type SessionController struct {
	catalog    *catalog.Catalog
	transcript *transcript.Store
	upstream   *upstream.Client
	logger     logger.ILogger
}

func NewSessionController(cat *catalog.Catalog, ts *transcript.Store, uc *upstream.Client, log logger.ILogger) *SessionController {
	return &SessionController{catalog: cat, transcript: ts, upstream: uc, logger: log}
}

func (c *SessionController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/session/v1")
	h.Use(serverutils.NewJwtMiddleware(jwtSecret))
	h.Post("/sessionName", c.SessionName)
	h.Post("/sessionhistory", c.SessionHistory)
	h.Post("/chatsession", c.CreateSession)
	h.Delete("/deletesession/:id", c.DeleteSession)
}

// SessionName triggers Upstream's FIFO re-sync and returns whatever the
// catalog holds right now. The re-sync itself lands asynchronously through
// the session-index Bus subscription opened at login — callers that need
// the freshly merged list should watch the push channel rather than expect
// this call to block for it (scenario 6 is eventually, not immediately,
// consistent).
func (c *SessionController) SessionName(ctx *fiber.Ctx) error {
	userID := userIDFrom(ctx)
	if userID == "" {
		return apperr.Auth("no bound current user")
	}

	if err := c.upstream.SessionName(ctx.Context(), userID); err != nil {
		c.logger.Warn("SessionController", "upstream sessionName call failed, serving cached list", map[string]interface{}{
			"user_id": userID, "error": err.Error(),
		})
	}

	return ctx.JSON(serverutils.SuccessResponse("session list", viewSessions(c.catalog.List(userID))))
}

func (c *SessionController) SessionHistory(ctx *fiber.Ctx) error {
	var req dto.SessionHistoryRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperr.Wrap(apperr.KindValidation, "malformed request body", err)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	userID := userIDFrom(ctx)
	if userID == "" {
		return apperr.Auth("no bound current user")
	}

	// Memory-first cache policy: fall back to Upstream only when this
	// session has never been populated locally.
	if _, ok := c.catalog.Get(userID, req.SessionID); !ok {
		if err := c.upstream.History(ctx.Context(), userID, req.SessionID); err != nil {
			return apperr.Wrap(apperr.KindUnavailable, "upstream history fetch failed", err)
		}
	}

	msgs := c.transcript.History(userID, req.SessionID)
	views := make([]dto.MessageView, len(msgs))
	for i, m := range msgs {
		views[i] = dto.NewMessageView(m)
	}
	return ctx.JSON(serverutils.SuccessResponse("session history", views))
}

func (c *SessionController) CreateSession(ctx *fiber.Ctx) error {
	var req dto.CreateSessionRequest
	_ = ctx.BodyParser(&req) // title is optional

	userID := userIDFrom(ctx)
	if userID == "" {
		return apperr.Auth("no bound current user")
	}

	id := c.catalog.NextLocalID(userID)
	res := c.catalog.Upsert(&domain.Session{
		ID:          id,
		Title:       req.Title,
		OwnerUserID: userID,
		Source:      domain.SessionSourceLocal,
	})

	resp := dto.CreateSessionResponse{SessionID: id}
	if res.EvictedSessionID != "" || res.NearLimitWarning {
		resp.WindowManagement = &dto.WindowManagement{NearLimitWarning: res.NearLimitWarning}
		if res.EvictedSessionID != "" {
			resp.WindowManagement.DeletedSession = &dto.DeletedSession{SessionID: res.EvictedSessionID}
		}
	}
	return ctx.JSON(serverutils.SuccessResponse("session created", resp))
}

func (c *SessionController) DeleteSession(ctx *fiber.Ctx) error {
	sessionID := ctx.Params("id")
	userID := userIDFrom(ctx)
	if userID == "" {
		return apperr.Auth("no bound current user")
	}

	if err := c.upstream.DeleteSession(ctx.Context(), userID, sessionID); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "upstream delete session failed", err)
	}
	c.catalog.Delete(userID, sessionID)
	return ctx.JSON(serverutils.SuccessResponse[any]("session deleted", nil))
}

func viewSessions(sessions []*domain.Session) []dto.SessionView {
	views := make([]dto.SessionView, len(sessions))
	for i, s := range sessions {
		views[i] = dto.NewSessionView(s)
	}
	return views
}
