package serverutils

import (
	"streamchat-orchestrator/internal/registry"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// NewJwtMiddleware decodes the opaque bearer token Upstream mints and stores
// the recovered user id both in ctx.Locals (for gofiber/websocket/v2's
// post-upgrade Conn.Locals) and in the request's UserContext via
// registry.WithUserID, so anything holding a plain context.Context further
// down the call graph can recover it through registry.CtxUserGetter instead
// of needing a *fiber.Ctx threaded in.
func NewJwtMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		authHeader := ctx.Get("Authorization")
		if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "missing token"})
		}
		tokenStr := authHeader[7:]

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "invalid token"})
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "invalid claims"})
		}

		userID, _ := claims["user_id"].(string)
		if userID == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "missing user_id claim"})
		}

		ctx.Locals("user_id", userID)
		ctx.SetUserContext(registry.WithUserID(ctx.UserContext(), userID))
		return ctx.Next()
	}
}
