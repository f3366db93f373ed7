package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/booklet-evaluation/utils/auth"
	"github.com/sahilchouksey/booklet-evaluation/utils/response"
)

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	jwtManager *auth.JWTManager
	disabled   bool
}

// NewAuthMiddleware creates a new auth middleware. With disabled set every
// request passes as an admin, for local development.
func NewAuthMiddleware(jwtManager *auth.JWTManager, disabled bool) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
		disabled:   disabled,
	}
}

// Required is middleware that requires a valid JWT token
func (m *AuthMiddleware) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m.disabled {
			c.Locals("user_id", uint(0))
			c.Locals("user_role", auth.RoleAdmin)
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			// EventSource cannot set headers.
			if token := c.Query("token"); token != "" {
				authHeader = "Bearer " + token
			} else {
				return response.Unauthorized(c, "Missing authorization token")
			}
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return response.Unauthorized(c, "Invalid authorization format")
		}

		claims, err := m.jwtManager.ValidateToken(parts[1])
		if err != nil {
			if err == auth.ErrExpiredToken {
				return response.Unauthorized(c, "Token has expired")
			}
			return response.Unauthorized(c, "Invalid token")
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("user_role", claims.Role)
		c.Locals("claims", claims)

		return c.Next()
	}
}

// RequireRole allows the request only when the authenticated role is one of
// roles. It must run after Required.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("user_role").(string)
		for _, r := range roles {
			if role == r {
				return c.Next()
			}
		}
		return response.Forbidden(c, "Insufficient permissions")
	}
}

// UserID returns the authenticated user's id, or 0.
func UserID(c *fiber.Ctx) uint {
	id, _ := c.Locals("user_id").(uint)
	return id
}
