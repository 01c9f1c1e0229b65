package controller

import (
	"github.com/sirupsen/logrus"

	"leadcrm/services"
)

type CampaignController struct {
	Campaigns *services.CampaignService
	Logger    *logrus.Entry
}

func NewCampaignController(svc *services.Services, logger *logrus.Entry) *CampaignController {
	return &CampaignController{
		Campaigns: svc.Campaigns,
		Logger:    logger,
	}
}
