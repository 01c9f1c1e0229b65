package controller

import (
	"github.com/gofiber/fiber/v2"
)

// SendCampaign marks the campaign sent and hands delivery to the task queue.
// Progress is available at /system/tasks/:task_id and over /ws/tasks.
func (cc *CampaignController) SendCampaign(c *fiber.Ctx) error {
	dispatch, err := cc.Campaigns.SendCampaign(c.UserContext(), c.Params("id"))
	if err != nil {
		return serviceError(c, err, "Failed to send campaign")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"message": "Campaign sending started",
		"data":    dispatch,
	})
}
