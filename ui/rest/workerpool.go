package rest

import (
	"github.com/AzielCF/az-autopost/pkg/workerpool"
	"github.com/gofiber/fiber/v2"
)

// workerPoolStats reports counters of the notification pool.
func workerPoolStats(pool *workerpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if pool == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "notification worker pool not initialized",
			})
		}
		return c.JSON(pool.Stats())
	}
}
