package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"genslides/internal/services"
)

// respondError maps service errors to the API's error taxonomy
func respondError(c *fiber.Ctx, err error) error {
	var notFound *services.NotFoundError
	var validation *services.ValidationError
	var provider *services.ProviderError

	switch {
	case errors.Is(err, services.ErrAlreadyGenerating):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "ALREADY_GENERATING",
			"message": err.Error(),
		})
	case errors.As(err, &notFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &validation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &provider):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
