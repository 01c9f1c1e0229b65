package controller

import (
	"github.com/gofiber/fiber/v2"
)

// DeleteCampaign deletes a campaign
func (cc *CampaignController) DeleteCampaign(c *fiber.Ctx) error {
	campaignID := c.Params("id")
	if err := cc.Campaigns.DeleteCampaign(c.UserContext(), campaignID); err != nil {
		return serviceError(c, err, "Failed to delete campaign")
	}

	cc.Logger.WithField("campaign_id", campaignID).Info("Campaign deleted")
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Campaign deleted successfully",
	})
}
