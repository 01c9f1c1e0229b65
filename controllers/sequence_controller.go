package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"leadcrm/services"
	"leadcrm/store"
	"leadcrm/utils"
)

type SequenceController struct {
	Sequences *services.SequenceService
	Logger    *logrus.Entry
}

func NewSequenceController(svc *services.Services, logger *logrus.Entry) *SequenceController {
	return &SequenceController{
		Sequences: svc.Sequences,
		Logger:    logger,
	}
}

func (sc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	var input services.SequenceInput
	if err := c.BodyParser(&input); err != nil {
		return invalidBody(c, err)
	}

	seq, err := sc.Sequences.CreateSequence(c.UserContext(), input)
	if err != nil {
		return serviceError(c, err, "Failed to create sequence")
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(seq))
}

// GetSequences lists sequences; ?active_only=true limits to active ones
func (sc *SequenceController) GetSequences(c *fiber.Ctx) error {
	list, err := sc.Sequences.ListSequences(c.UserContext(), c.QueryBool("active_only"))
	if err != nil {
		return serviceError(c, err, "Failed to fetch sequences")
	}
	return c.JSON(utils.SuccessResponse(list))
}

func (sc *SequenceController) GetSequence(c *fiber.Ctx) error {
	seq, err := sc.Sequences.GetSequence(c.UserContext(), c.Params("id"))
	if err != nil {
		return serviceError(c, err, "Sequence not found")
	}
	return c.JSON(utils.SuccessResponse(seq))
}

func (sc *SequenceController) UpdateSequence(c *fiber.Ctx) error {
	var input services.SequenceUpdate
	if err := c.BodyParser(&input); err != nil {
		return invalidBody(c, err)
	}

	seq, err := sc.Sequences.UpdateSequence(c.UserContext(), c.Params("id"), input)
	if err != nil {
		return serviceError(c, err, "Failed to update sequence")
	}
	return c.JSON(utils.SuccessResponse(seq))
}

func (sc *SequenceController) DeleteSequence(c *fiber.Ctx) error {
	if err := sc.Sequences.DeleteSequence(c.UserContext(), c.Params("id")); err != nil {
		return serviceError(c, err, "Failed to delete sequence")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Sequence deleted successfully",
	})
}

// EnrollContact is idempotent: an existing active enrollment comes back
// with 200 instead of 201
func (sc *SequenceController) EnrollContact(c *fiber.Ctx) error {
	enrollment, created, err := sc.Sequences.EnrollContact(c.UserContext(), c.Params("contactId"), c.Params("id"))
	if err != nil {
		return serviceError(c, err, "Failed to enroll contact")
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(utils.SuccessResponse(enrollment))
}

func (sc *SequenceController) GetSequenceEnrollments(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := sc.Sequences.GetSequence(c.UserContext(), id); err != nil {
		return serviceError(c, err, "Sequence not found")
	}
	list, err := sc.Sequences.ListEnrollments(c.UserContext(), store.EnrollmentFilter{
		SequenceID: id,
		ActiveOnly: c.QueryBool("active_only"),
	})
	if err != nil {
		return serviceError(c, err, "Failed to fetch enrollments")
	}
	return c.JSON(utils.SuccessResponse(list))
}
