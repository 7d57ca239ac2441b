package controller

import (
	"strconv"

	"streamchat-orchestrator/internal/apperr"
	"streamchat-orchestrator/internal/pkg/logger"
	"streamchat-orchestrator/internal/pkg/serverutils"

	"github.com/gofiber/fiber/v2"
)

// AdminController exposes the ILogger's own log-reading surface, the
// teacher's admin-log-dashboard feature, over the orchestrator's routes
// instead of letting it sit unreached behind the logging package.
type AdminController struct {
	logger logger.ILogger
}

func NewAdminController(log logger.ILogger) *AdminController {
	return &AdminController{logger: log}
}

func (c *AdminController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/admin/v1")
	h.Use(serverutils.NewJwtMiddleware(jwtSecret))
	h.Get("/logs", c.ListLogs)
	h.Get("/logs/:id", c.GetLog)
}

func (c *AdminController) ListLogs(ctx *fiber.Ctx) error {
	level := ctx.Query("level")
	limit, err := strconv.Atoi(ctx.Query("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	offset, err := strconv.Atoi(ctx.Query("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	logs, err := c.logger.GetLogs(level, limit, offset)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to read logs", err)
	}
	return ctx.JSON(serverutils.SuccessResponse("logs", logs))
}

func (c *AdminController) GetLog(ctx *fiber.Ctx) error {
	entry, err := c.logger.GetLogById(ctx.Params("id"))
	if err != nil {
		return apperr.New(apperr.KindValidation, "log entry not found")
	}
	return ctx.JSON(serverutils.SuccessResponse("log entry", entry))
}
