package controller

import (
	"github.com/gofiber/fiber/v2"

	"leadcrm/utils"
)

// GetCampaignStats returns delivery counters and rates for a campaign
func (cc *CampaignController) GetCampaignStats(c *fiber.Ctx) error {
	stats, err := cc.Campaigns.CampaignStats(c.UserContext(), c.Params("id"))
	if err != nil {
		return serviceError(c, err, "Failed to fetch campaign stats")
	}
	return c.JSON(utils.SuccessResponse(stats))
}
