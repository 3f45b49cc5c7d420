package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// Pinger is an optional readiness dependency such as the message broker.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisterHealthRoutes mounts the liveness and readiness routes. broker may be nil when the
// command consumer is disabled.
func RegisterHealthRoutes(app fiber.Router, sqlDB *sql.DB, rdb *redis.Client, broker Pinger) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(sqlDB, rdb, broker))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(sqlDB *sql.DB, rdb *redis.Client, broker Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		ready := true
		check := func(err error) string {
			if err != nil {
				ready = false
				return "down"
			}
			return "ok"
		}

		checks := fiber.Map{
			"postgres": check(sqlDB.PingContext(ctx)),
			"redis":    check(rdb.Ping(ctx).Err()),
		}
		if broker != nil {
			checks["rabbitmq"] = check(broker.Ping(ctx))
		} else {
			checks["rabbitmq"] = "disabled"
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if !ready {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}
