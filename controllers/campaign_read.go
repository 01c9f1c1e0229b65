package controller

import (
	"github.com/gofiber/fiber/v2"

	"leadcrm/utils"
)

// GetCampaigns returns a page of campaigns, newest first
func (cc *CampaignController) GetCampaigns(c *fiber.Ctx) error {
	skip := utils.QueryInt(c, "skip", 0, 0)
	limit := utils.QueryInt(c, "limit", 100, 1000)

	campaigns, total, err := cc.Campaigns.ListCampaigns(c.UserContext(), skip, limit)
	if err != nil {
		return serviceError(c, err, "Failed to fetch campaigns")
	}
	return c.JSON(utils.SuccessResponse(utils.PaginatedResponse{
		Data:  campaigns,
		Total: total,
		Skip:  skip,
		Limit: limit,
	}))
}

func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	campaign, err := cc.Campaigns.GetCampaign(c.UserContext(), c.Params("id"))
	if err != nil {
		return serviceError(c, err, "Campaign not found")
	}
	return c.JSON(utils.SuccessResponse(campaign))
}
