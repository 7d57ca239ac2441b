package controller

import (
	"streamchat-orchestrator/internal/apperr"
	"streamchat-orchestrator/internal/pkg/serverutils"
	"streamchat-orchestrator/internal/session"

	"github.com/gofiber/fiber/v2"
)

// AuthController supplements §6 with the login/logout endpoints the total
// flush (§9, P8) needs a trigger for: Upstream owns actual authentication,
// this only binds/unbinds the in-memory state the session package tracks.
type AuthController struct {
	session *session.Context
}

func NewAuthController(s *session.Context) *AuthController {
	return &AuthController{session: s}
}

func (c *AuthController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/auth/v1")
	h.Post("/login", c.Login)
	h.Post("/logout", serverutils.NewJwtMiddleware(jwtSecret), c.Logout)
}

type loginRequest struct {
	UserID                string `json:"user_id" validate:"required"`
	LastUpstreamSessionID int64  `json:"last_upstream_session_id"`
}

// Login is deliberately unauthenticated at this boundary: the bearer token
// itself is what Upstream mints after its own auth flow, not something this
// endpoint issues. It only seeds the Session Catalog's Upstream cursor.
func (c *AuthController) Login(ctx *fiber.Ctx) error {
	var req loginRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperr.Wrap(apperr.KindValidation, "malformed request body", err)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	c.session.Login(ctx.Context(), req.UserID, req.LastUpstreamSessionID)
	return ctx.JSON(serverutils.SuccessResponse[any]("logged in", nil))
}

func (c *AuthController) Logout(ctx *fiber.Ctx) error {
	userID := userIDFrom(ctx)
	if userID == "" {
		return apperr.Auth("no bound current user")
	}
	c.session.Logout(userID)
	return ctx.JSON(serverutils.SuccessResponse[any]("logged out", nil))
}
