package controller

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"

	"leadcrm/services"
	"leadcrm/worker"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: name is required", services.ErrInvalidInput), fiber.StatusBadRequest},
		{fmt.Errorf("contact x: %w", services.ErrNotFound), fiber.StatusNotFound},
		{services.ErrInvalidTransition, fiber.StatusConflict},
		{services.ErrDuplicateEmail, fiber.StatusConflict},
		{services.ErrCampaignLocked, fiber.StatusConflict},
		{services.ErrEmptyAudience, fiber.StatusUnprocessableEntity},
		{fmt.Errorf("queue campaign delivery: %w", worker.ErrQueueFull), fiber.StatusServiceUnavailable},
		{errors.New("connection reset"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
