package metrics

import (
	"time"

	"github.com/rashdiman/ridepulse/internal/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, cache *Cache, store *Store, authMiddleware fiber.Handler) {
	r.Get("/:riderId", authMiddleware, func(c *fiber.Ctx) error {
		snapshot, ok := cache.Snapshot(c.Params("riderId"))
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "metrics not found")
		}
		return c.JSON(snapshot)
	})

	r.Get("/:sessionId/aggregated", authMiddleware, func(c *fiber.Ctx) error {
		period := time.Duration(c.QueryInt("period", 60)) * time.Second
		agg, err := store.Aggregated(c.Context(), c.Params("sessionId"), period)
		if err != nil {
			return fiber.NewError(apperr.StatusCode(err), err.Error())
		}
		if agg.DataPoints == 0 {
			return fiber.NewError(fiber.StatusNotFound, "metrics not found")
		}
		return c.JSON(agg)
	})
}
