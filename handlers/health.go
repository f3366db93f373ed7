package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/booklet-evaluation/database"
	"github.com/sahilchouksey/booklet-evaluation/utils/cache"
	"github.com/sahilchouksey/booklet-evaluation/utils/response"
)

// HealthDeps are the backends /ping reports on. Cache is nil when Redis is
// not configured.
type HealthDeps struct {
	Store database.Storage
	Cache *cache.RedisCache
}

// HandleCheckHealth handles GET /ping
func HandleCheckHealth(c *fiber.Ctx, deps HealthDeps) error {
	checks := fiber.Map{"database": "ok"}
	healthy := true

	if err := deps.Store.HealthCheck(); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}

	if deps.Cache != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		checks["redis"] = "ok"
		if err := deps.Cache.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
	}

	if !healthy {
		return response.ErrorWithDetails(c, fiber.StatusServiceUnavailable, "Service unavailable", "SERVICE_UNAVAILABLE", checks)
	}
	return c.JSON(fiber.Map{"status": "ok", "checks": checks})
}
