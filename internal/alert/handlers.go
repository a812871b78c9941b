package alert

import (
	"github.com/rashdiman/ridepulse/internal/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, evaluator *Evaluator, authMiddleware, coachMiddleware fiber.Handler) {
	r.Get("/:riderId", authMiddleware, func(c *fiber.Ctx) error {
		alerts, err := evaluator.Recent(c.Context(), c.Params("riderId"), c.QueryInt("limit", 50))
		if err != nil {
			return fiber.NewError(apperr.StatusCode(err), err.Error())
		}
		if alerts == nil {
			alerts = []Alert{}
		}
		return c.JSON(alerts)
	})

	r.Put("/:alertId/acknowledge", authMiddleware, coachMiddleware, func(c *fiber.Ctx) error {
		by, _ := c.Locals("user_id").(string)
		if err := evaluator.Acknowledge(c.Context(), c.Params("alertId"), by); err != nil {
			return fiber.NewError(apperr.StatusCode(err), err.Error())
		}
		return c.JSON(fiber.Map{"success": true})
	})
}

func RegisterThresholdRoutes(r fiber.Router, evaluator *Evaluator, authMiddleware, coachMiddleware fiber.Handler) {
	r.Get("/:riderId", authMiddleware, func(c *fiber.Ctx) error {
		return c.JSON(evaluator.ThresholdsFor(c.Context(), c.Params("riderId")))
	})

	r.Put("/:riderId", authMiddleware, coachMiddleware, func(c *fiber.Ctx) error {
		var t Thresholds
		if err := c.BodyParser(&t); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		t.RiderID = c.Params("riderId")
		if err := evaluator.SaveThresholds(c.Context(), t); err != nil {
			return fiber.NewError(apperr.StatusCode(err), err.Error())
		}
		return c.JSON(fiber.Map{"success": true})
	})
}
