package serverutils

import (
	"streamchat-orchestrator/internal/apperr"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware runs every handler under Next(), then maps whatever
// error comes back through the apperr taxonomy to an HTTP status, so
// controllers never format a status code themselves.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err == nil {
			return nil
		}

		status := fiber.StatusInternalServerError
		switch apperr.KindOf(err) {
		case apperr.KindAuth:
			status = fiber.StatusUnauthorized
		case apperr.KindValidation:
			status = fiber.StatusBadRequest
		case apperr.KindLimit:
			status = fiber.StatusTooManyRequests
		case apperr.KindUnavailable:
			status = fiber.StatusServiceUnavailable
		case apperr.KindTimeout:
			status = fiber.StatusGatewayTimeout
		case apperr.KindProtocol:
			status = fiber.StatusBadGateway
		}

		return c.Status(status).JSON(fiber.Map{"message": err.Error()})
	}
}

// Recovery guards every handler against a panic escaping to fasthttp,
// turning it into a 500 instead of dropping the connection.
func Recovery() fiber.Handler {
	return func(c *fiber.Ctx) error {
		defer func() {
			if r := recover(); r != nil {
				c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "internal error"})
			}
		}()
		return c.Next()
	}
}
