package trip

import (
	"backend-miletrack/internal/tracking"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		trips, err := svc.History(c.Context(), userID(c))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(trips)
	})

	r.Get("/summary", authMiddleware, func(c *fiber.Ctx) error {
		summaries, err := svc.Summary(c.Context(), userID(c))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(summaries)
	})

	r.Post("/sync", authMiddleware, func(c *fiber.Ctx) error {
		flushed, err := svc.FlushPending(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		remaining, err := svc.PendingCount(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"flushed": flushed, "pending": remaining})
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		t, err := svc.GetTrip(c.Context(), userID(c), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "trip not found")
		}
		return c.JSON(t)
	})

	r.Patch("/:id/purpose", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Purpose tracking.Purpose `json:"purpose"`
		}
		if err := c.BodyParser(&body); err != nil || !body.Purpose.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "valid purpose required")
		}
		t, err := svc.UpdatePurpose(c.Context(), userID(c), c.Params("id"), body.Purpose)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(t)
	})

	r.Get("/:id/deduction", authMiddleware, func(c *fiber.Ctx) error {
		est, err := svc.Estimate(c.Context(), userID(c), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "trip not found")
		}
		return c.JSON(est)
	})
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}
