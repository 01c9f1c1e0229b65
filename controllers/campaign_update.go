package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"leadcrm/services"
	"leadcrm/utils"
)

// UpdateCampaign edits a campaign that has not been sent yet
func (cc *CampaignController) UpdateCampaign(c *fiber.Ctx) error {
	var input services.CampaignUpdate
	if err := c.BodyParser(&input); err != nil {
		return invalidBody(c, err)
	}

	campaign, err := cc.Campaigns.UpdateCampaign(c.UserContext(), c.Params("id"), input)
	if err != nil {
		return serviceError(c, err, "Failed to update campaign")
	}
	return c.JSON(utils.SuccessResponse(campaign))
}

// ScheduleCampaign sets the time the scheduler will send the campaign
func (cc *CampaignController) ScheduleCampaign(c *fiber.Ctx) error {
	var input struct {
		ScheduledAt *time.Time `json:"scheduled_at"`
	}
	if err := c.BodyParser(&input); err != nil {
		return invalidBody(c, err)
	}
	if input.ScheduledAt == nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "scheduled_at is required", nil)
	}

	campaign, err := cc.Campaigns.ScheduleCampaign(c.UserContext(), c.Params("id"), *input.ScheduledAt)
	if err != nil {
		return serviceError(c, err, "Failed to schedule campaign")
	}
	return c.JSON(utils.SuccessResponse(campaign))
}
