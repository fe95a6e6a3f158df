package tracking

import (
	"errors"

	"backend-miletrack/internal/position"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, mgr *Manager, authMiddleware fiber.Handler) {
	r.Post("/start", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Purpose Purpose `json:"purpose"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if !body.Purpose.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "valid purpose required")
		}

		st, err := mgr.Start(c.Context(), userID(c), body.Purpose)
		if err != nil {
			return trackingError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(st)
	})

	r.Post("/pause", authMiddleware, func(c *fiber.Ctx) error {
		st, err := mgr.Pause(c.Context(), userID(c))
		if err != nil {
			return trackingError(err)
		}
		return c.JSON(st)
	})

	r.Post("/resume", authMiddleware, func(c *fiber.Ctx) error {
		st, err := mgr.Resume(c.Context(), userID(c))
		if err != nil {
			return trackingError(err)
		}
		return c.JSON(st)
	})

	r.Post("/stop", authMiddleware, func(c *fiber.Ctx) error {
		finalized, err := mgr.Stop(c.Context(), userID(c))
		if err != nil {
			return trackingError(err)
		}
		return c.JSON(finalized)
	})

	r.Post("/cancel", authMiddleware, func(c *fiber.Ctx) error {
		if err := mgr.Cancel(c.Context(), userID(c)); err != nil {
			return trackingError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/state", authMiddleware, func(c *fiber.Ctx) error {
		return c.JSON(mgr.State(c.Context(), userID(c)))
	})

	r.Get("/detection", authMiddleware, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"driving_detected": mgr.Detected(userID(c))})
	})
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

func trackingError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidState):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, position.ErrPermissionDenied):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, position.ErrLocationUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
