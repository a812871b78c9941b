package session

import (
	"github.com/rashdiman/ridepulse/internal/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, registry *Registry, authMiddleware fiber.Handler) {
	r.Get("/active", authMiddleware, func(c *fiber.Ctx) error {
		return c.JSON(registry.ListActive())
	})

	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		sessions, err := registry.ListClosed(c.Context(), c.QueryInt("limit", 100))
		if err != nil {
			return fiber.NewError(apperr.StatusCode(err), err.Error())
		}
		if sessions == nil {
			sessions = []ClosedSession{}
		}
		return c.JSON(sessions)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		if s, ok := registry.Get(c.Params("id")); ok {
			return c.JSON(s)
		}
		s, err := registry.Fetch(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(apperr.StatusCode(err), err.Error())
		}
		return c.JSON(s)
	})
}
