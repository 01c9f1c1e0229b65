package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"leadcrm/services"
	"leadcrm/utils"
	"leadcrm/worker"
)

// statusFor maps an engine error onto an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrDuplicateEmail),
		errors.Is(err, services.ErrCampaignLocked):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrEmptyAudience):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrQueueStopped):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// serviceError writes err with its mapped status. Unexpected errors are
// reported to Sentry.
func serviceError(c *fiber.Ctx, err error, message string) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		utils.LogError("request_failed", err, map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
		})
	}
	return utils.ErrorResponse(c, status, message, err)
}

func invalidBody(c *fiber.Ctx, err error) error {
	return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
}
