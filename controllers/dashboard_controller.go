package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"leadcrm/services"
	"leadcrm/utils"
)

type DashboardController struct {
	CRM    *services.CRMService
	Logger *logrus.Entry
}

func NewDashboardController(svc *services.Services, logger *logrus.Entry) *DashboardController {
	return &DashboardController{
		CRM:    svc.CRM,
		Logger: logger,
	}
}

// GetDashboardStats returns the summary numbers for the dashboard cards
func (dc *DashboardController) GetDashboardStats(c *fiber.Ctx) error {
	stats, err := dc.CRM.DashboardStats(c.UserContext())
	if err != nil {
		return serviceError(c, err, "Failed to get dashboard stats")
	}
	return c.JSON(utils.SuccessResponse(stats))
}

// GetLeadSourceStats returns contact counts and share per lead source
func (dc *DashboardController) GetLeadSourceStats(c *fiber.Ctx) error {
	stats, err := dc.CRM.LeadSourceStats(c.UserContext())
	if err != nil {
		return serviceError(c, err, "Failed to get lead source stats")
	}
	return c.JSON(utils.SuccessResponse(stats))
}

func (dc *DashboardController) GetContactStatusStats(c *fiber.Ctx) error {
	stats, err := dc.CRM.ContactStatusStats(c.UserContext())
	if err != nil {
		return serviceError(c, err, "Failed to get contact status stats")
	}
	return c.JSON(utils.SuccessResponse(stats))
}

// GetRecentActivity returns the latest interactions across all contacts
func (dc *DashboardController) GetRecentActivity(c *fiber.Ctx) error {
	activity, err := dc.CRM.RecentActivity(c.UserContext(), utils.QueryInt(c, "limit", 10, 100))
	if err != nil {
		return serviceError(c, err, "Failed to get recent activity")
	}
	return c.JSON(utils.SuccessResponse(activity))
}
