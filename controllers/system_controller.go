package controller

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"leadcrm/services"
	"leadcrm/utils"
	"leadcrm/worker"
)

const apiVersion = "1.0.0"

type SystemController struct {
	Services *services.Services
	Tasks    *worker.TaskQueue
	Logger   *logrus.Entry
}

func NewSystemController(svc *services.Services, tasks *worker.TaskQueue, logger *logrus.Entry) *SystemController {
	return &SystemController{
		Services: svc,
		Tasks:    tasks,
		Logger:   logger,
	}
}

func (sc *SystemController) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message":   "OpsVantage CRM & Email Marketing API",
		"status":    "operational",
		"version":   apiVersion,
		"timestamp": time.Now().UTC(),
	})
}

// Initialize seeds the default templates and sequences. Running it again
// creates nothing.
func (sc *SystemController) Initialize(c *fiber.Ctx) error {
	report, err := sc.Services.InitializeDefaults(c.UserContext())
	if err != nil {
		return serviceError(c, err, "Failed to initialize system")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "System initialized successfully",
		"data":    report,
	})
}

// ProcessSequences queues a sequence sweep and returns its task id without
// waiting for it
func (sc *SystemController) ProcessSequences(c *fiber.Ctx) error {
	task, err := sc.Tasks.Submit("sequence_sweep", func(ctx context.Context, t *worker.Task) error {
		report, err := sc.Services.Sequences.ProcessDueEnrollments(ctx)
		t.SetResult(report)
		return err
	})
	if err != nil {
		return serviceError(c, err, "Failed to queue sequence processing")
	}

	sc.Logger.WithField("task_id", task.ID()).Info("Sequence sweep queued")
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"message": "Sequence processing started",
		"data":    fiber.Map{"task_id": task.ID()},
	})
}

func (sc *SystemController) GetTask(c *fiber.Ctx) error {
	task, ok := sc.Tasks.Get(c.Params("id"))
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Task not found", nil)
	}
	return c.JSON(utils.SuccessResponse(task.Snapshot()))
}

func (sc *SystemController) GetTasks(c *fiber.Ctx) error {
	return c.JSON(utils.SuccessResponse(sc.Tasks.List()))
}
