package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/eaidavid/sistema-sub001/internal/service"
	"github.com/eaidavid/sistema-sub001/internal/utils"
)

type ReportsHandler struct {
	service *service.PostbackService
}

func NewReportsHandler(svc *service.PostbackService) *ReportsHandler {
	return &ReportsHandler{service: svc}
}

func (h *ReportsHandler) GetAffiliateStats(c *fiber.Ctx) error {
	username := c.Params("username")

	stats, err := h.service.GetAffiliateStats(c.Context(), username)
	if err != nil {
		var validationErr *utils.ValidationError
		if errors.As(err, &validationErr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": validationErr.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch affiliate stats",
		})
	}

	return c.JSON(fiber.Map{
		"data": stats,
	})
}

func (h *ReportsHandler) ListHouses(c *fiber.Ctx) error {
	houses, err := h.service.ListHouses(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch houses",
		})
	}

	return c.JSON(fiber.Map{
		"data": houses,
	})
}

func HealthCheck(c *fiber.Ctx) error {
	return c.SendString("OK")
}
