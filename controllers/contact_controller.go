package controller

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"leadcrm/models"
	"leadcrm/services"
	"leadcrm/store"
	"leadcrm/utils"
)

type ContactController struct {
	CRM       *services.CRMService
	Sequences *services.SequenceService
	Logger    *logrus.Entry
}

func NewContactController(svc *services.Services, logger *logrus.Entry) *ContactController {
	return &ContactController{
		CRM:       svc.CRM,
		Sequences: svc.Sequences,
		Logger:    logger,
	}
}

// CreateContact scores the new contact, runs sequence triggers and queues
// the welcome email
func (cc *ContactController) CreateContact(c *fiber.Ctx) error {
	var input services.ContactInput
	if err := c.BodyParser(&input); err != nil {
		return invalidBody(c, err)
	}

	contact, err := cc.CRM.CreateContact(c.UserContext(), input)
	if err != nil {
		return serviceError(c, err, "Failed to create contact")
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(contact))
}

// GetContacts returns a page of contacts, newest first
func (cc *ContactController) GetContacts(c *fiber.Ctx) error {
	q := services.ContactQuery{
		Skip:   utils.QueryInt(c, "skip", 0, 0),
		Limit:  utils.QueryInt(c, "limit", 100, 1000),
		Search: c.Query("search"),
	}

	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseContactStatus(raw)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid status filter", err)
		}
		q.Status = status
	}
	if raw := c.Query("lead_source"); raw != "" {
		source, err := models.ParseLeadSource(raw)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid lead source filter", err)
		}
		q.LeadSource = source
	}
	if raw := c.Query("tag"); raw != "" {
		q.Tags = strings.Split(raw, ",")
	}

	contacts, total, err := cc.CRM.ListContacts(c.UserContext(), q)
	if err != nil {
		return serviceError(c, err, "Failed to fetch contacts")
	}
	return c.JSON(utils.SuccessResponse(utils.PaginatedResponse{
		Data:  contacts,
		Total: total,
		Skip:  q.Skip,
		Limit: q.Limit,
	}))
}

func (cc *ContactController) SearchContacts(c *fiber.Ctx) error {
	contacts, err := cc.CRM.SearchContacts(c.UserContext(), c.Query("q"), utils.QueryInt(c, "limit", 50, 500))
	if err != nil {
		return serviceError(c, err, "Failed to search contacts")
	}
	return c.JSON(utils.SuccessResponse(contacts))
}

func (cc *ContactController) GetContact(c *fiber.Ctx) error {
	contact, err := cc.CRM.GetContact(c.UserContext(), c.Params("id"))
	if err != nil {
		return serviceError(c, err, "Contact not found")
	}
	return c.JSON(utils.SuccessResponse(contact))
}

func (cc *ContactController) UpdateContact(c *fiber.Ctx) error {
	var input services.ContactUpdate
	if err := c.BodyParser(&input); err != nil {
		return invalidBody(c, err)
	}

	contact, err := cc.CRM.UpdateContact(c.UserContext(), c.Params("id"), input)
	if err != nil {
		return serviceError(c, err, "Failed to update contact")
	}
	return c.JSON(utils.SuccessResponse(contact))
}

func (cc *ContactController) DeleteContact(c *fiber.Ctx) error {
	if err := cc.CRM.DeleteContact(c.UserContext(), c.Params("id")); err != nil {
		return serviceError(c, err, "Failed to delete contact")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Contact deleted successfully",
	})
}

func (cc *ContactController) GetContactInteractions(c *fiber.Ctx) error {
	list, err := cc.CRM.ListInteractions(c.UserContext(), c.Params("id"), utils.QueryInt(c, "limit", 50, 500))
	if err != nil {
		return serviceError(c, err, "Failed to fetch interactions")
	}
	return c.JSON(utils.SuccessResponse(list))
}

func (cc *ContactController) GetContactEnrollments(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := cc.CRM.GetContact(c.UserContext(), id); err != nil {
		return serviceError(c, err, "Contact not found")
	}
	list, err := cc.Sequences.ListEnrollments(c.UserContext(), store.EnrollmentFilter{
		ContactID:  id,
		ActiveOnly: c.QueryBool("active_only"),
	})
	if err != nil {
		return serviceError(c, err, "Failed to fetch enrollments")
	}
	return c.JSON(utils.SuccessResponse(list))
}

// GetContactAnalytics returns the daily engagement rows for the last ?days
func (cc *ContactController) GetContactAnalytics(c *fiber.Ctx) error {
	rows, err := cc.CRM.GetContactAnalytics(c.UserContext(), c.Params("id"), utils.QueryInt(c, "days", 30, 365))
	if err != nil {
		return serviceError(c, err, "Failed to fetch contact analytics")
	}
	return c.JSON(utils.SuccessResponse(rows))
}

// CreateInteraction records an engagement event and rescores the contact
func (cc *ContactController) CreateInteraction(c *fiber.Ctx) error {
	var input services.InteractionInput
	if err := c.BodyParser(&input); err != nil {
		return invalidBody(c, err)
	}
	if input.CreatedBy == "" {
		if client, ok := c.Locals("client").(string); ok {
			input.CreatedBy = client
		}
	}

	interaction, err := cc.CRM.RecordInteraction(c.UserContext(), input)
	if err != nil {
		return serviceError(c, err, "Failed to record interaction")
	}

	cc.Logger.WithFields(logrus.Fields{
		"contact_id": interaction.ContactID,
		"type":       interaction.Type,
	}).Debug("Interaction recorded")
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(interaction))
}
