package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/eaidavid/sistema-sub001/internal/models"
	"github.com/eaidavid/sistema-sub001/internal/service"
	"github.com/eaidavid/sistema-sub001/internal/utils"
)

type PostbackHandler struct {
	service *service.PostbackService
}

func NewPostbackHandler(svc *service.PostbackService) *PostbackHandler {
	return &PostbackHandler{service: svc}
}

// HandlePostback serves GET /webhook/:house/:event. Partner houses
// retry on 5xx, so only backend faults return one; every resolvable
// event is acknowledged with 2xx even when it earns nothing.
func (h *PostbackHandler) HandlePostback(c *fiber.Ctx) error {
	pb := requestFromCtx(c)

	result, err := h.service.ProcessPostback(c.Context(), pb)
	if err != nil {
		var validationErr *utils.ValidationError
		switch {
		case errors.As(err, &validationErr):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": validationErr.Error(),
			})
		case errors.Is(err, service.ErrHouseNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "house not found",
			})
		case errors.Is(err, service.ErrAffiliateNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "affiliate not found",
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal processing error",
			})
		}
	}

	if result.Duplicate {
		return c.JSON(fiber.Map{
			"success":   true,
			"duplicate": true,
			"timestamp": result.Timestamp.Format(time.RFC3339),
		})
	}

	commissions := make([]fiber.Map, 0, len(result.Items))
	for _, item := range result.Items {
		entry := fiber.Map{
			"type":  item.Kind,
			"value": item.Value,
		}
		if item.Percentage != nil {
			entry["percentage"] = *item.Percentage
		}
		commissions = append(commissions, entry)
	}

	return c.JSON(fiber.Map{
		"success":         true,
		"affiliate":       result.Affiliate,
		"house":           result.House,
		"evento":          result.EventType,
		"amount":          result.Amount.StringFixed(2),
		"totalCommission": result.Total.StringFixed(2),
		"commissions":     commissions,
		"timestamp":       result.Timestamp.Format(time.RFC3339),
	})
}

func requestFromCtx(c *fiber.Ctx) *models.PostbackRequest {
	return &models.PostbackRequest{
		HouseIdentifier: c.Params("house"),
		EventType:       c.Params("event"),
		SubID:           c.Query("subid"),
		RawAmount:       c.Query("amount"),
		CustomerID:      c.Query("customer_id"),
	}
}
