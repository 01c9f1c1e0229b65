package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"leadcrm/services"
	"leadcrm/utils"
)

type TemplateController struct {
	Templates *services.TemplateService
	Logger    *logrus.Entry
}

func NewTemplateController(svc *services.Services, logger *logrus.Entry) *TemplateController {
	return &TemplateController{
		Templates: svc.Templates,
		Logger:    logger,
	}
}

func (tc *TemplateController) CreateTemplate(c *fiber.Ctx) error {
	var input services.TemplateInput
	if err := c.BodyParser(&input); err != nil {
		return invalidBody(c, err)
	}

	tmpl, err := tc.Templates.CreateTemplate(c.UserContext(), input)
	if err != nil {
		return serviceError(c, err, "Failed to create template")
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(tmpl))
}

func (tc *TemplateController) GetTemplates(c *fiber.Ctx) error {
	list, err := tc.Templates.ListTemplates(c.UserContext())
	if err != nil {
		return serviceError(c, err, "Failed to fetch templates")
	}
	return c.JSON(utils.SuccessResponse(list))
}

func (tc *TemplateController) GetTemplate(c *fiber.Ctx) error {
	tmpl, err := tc.Templates.GetTemplate(c.UserContext(), c.Params("id"))
	if err != nil {
		return serviceError(c, err, "Template not found")
	}
	return c.JSON(utils.SuccessResponse(tmpl))
}

func (tc *TemplateController) UpdateTemplate(c *fiber.Ctx) error {
	var input services.TemplateUpdate
	if err := c.BodyParser(&input); err != nil {
		return invalidBody(c, err)
	}

	tmpl, err := tc.Templates.UpdateTemplate(c.UserContext(), c.Params("id"), input)
	if err != nil {
		return serviceError(c, err, "Failed to update template")
	}
	return c.JSON(utils.SuccessResponse(tmpl))
}

func (tc *TemplateController) DeleteTemplate(c *fiber.Ctx) error {
	if err := tc.Templates.DeleteTemplate(c.UserContext(), c.Params("id")); err != nil {
		return serviceError(c, err, "Failed to delete template")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Template deleted successfully",
	})
}

// SendTestEmail sends the welcome or follow-up template to a single address
func (tc *TemplateController) SendTestEmail(c *fiber.Ctx) error {
	var input services.TestEmailInput
	if err := c.BodyParser(&input); err != nil {
		return invalidBody(c, err)
	}

	result, err := tc.Templates.SendTestEmail(c.UserContext(), input)
	if err != nil {
		return serviceError(c, err, "Failed to send test email")
	}
	if !result.Success {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"error":   "Test email could not be delivered",
			"data":    result,
		})
	}
	return c.JSON(utils.SuccessResponse(result))
}
