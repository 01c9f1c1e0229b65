package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"leadcrm/services"
	"leadcrm/utils"
)

// CreateCampaign stores a draft, or a scheduled campaign when scheduled_at
// is given, with its audience size at creation time
func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	var input services.CampaignInput
	if err := c.BodyParser(&input); err != nil {
		return invalidBody(c, err)
	}

	campaign, err := cc.Campaigns.CreateCampaign(c.UserContext(), input)
	if err != nil {
		return serviceError(c, err, "Failed to create campaign")
	}

	cc.Logger.WithFields(logrus.Fields{
		"campaign_id": campaign.ID,
		"status":      campaign.Status,
		"recipients":  campaign.TotalRecipients,
	}).Info("Campaign created")
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(campaign))
}
