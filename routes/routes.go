package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"

	controller "leadcrm/controllers"
	"leadcrm/middleware"
	"leadcrm/services"
	"leadcrm/utils"
	"leadcrm/worker"
)

// Dependencies are the wired components the HTTP surface is built on
type Dependencies struct {
	Services *services.Services
	Tasks    *worker.TaskQueue

	// JWTSecret enables bearer-token auth on /api when set
	JWTSecret string

	SendRateLimit    int
	SendRateWindow   time.Duration
	RateLimitStorage fiber.Storage

	// AccessLog disables the request logger when false
	AccessLog bool
}

func SetupAPIRoutes(app *fiber.App, deps Dependencies) {
	log := utils.GetLogger("http")

	contactController := controller.NewContactController(deps.Services, log.WithField("component", "contacts"))
	templateController := controller.NewTemplateController(deps.Services, log.WithField("component", "templates"))
	campaignController := controller.NewCampaignController(deps.Services, log.WithField("component", "campaigns"))
	sequenceController := controller.NewSequenceController(deps.Services, log.WithField("component", "sequences"))
	dashboardController := controller.NewDashboardController(deps.Services, log.WithField("component", "analytics"))
	systemController := controller.NewSystemController(deps.Services, deps.Tasks, log.WithField("component", "system"))

	var handlers []fiber.Handler
	if deps.AccessLog {
		handlers = append(handlers, logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	if deps.JWTSecret != "" {
		handlers = append(handlers, middleware.Protected(deps.JWTSecret))
	}
	api := app.Group("/api", handlers...)

	api.Get("/", systemController.Health)

	// Contact routes
	contact := api.Group("/contacts")
	contact.Post("/", contactController.CreateContact)
	contact.Get("/", contactController.GetContacts)
	contact.Get("/search", contactController.SearchContacts)
	contact.Post("/import", contactController.ImportContacts)
	contact.Get("/export", contactController.ExportContacts)
	contact.Get("/:id", contactController.GetContact)
	contact.Put("/:id", contactController.UpdateContact)
	contact.Delete("/:id", contactController.DeleteContact)
	contact.Get("/:id/interactions", contactController.GetContactInteractions)
	contact.Get("/:id/enrollments", contactController.GetContactEnrollments)
	contact.Get("/:id/analytics", contactController.GetContactAnalytics)

	api.Post("/interactions", contactController.CreateInteraction)

	// Template routes
	template := api.Group("/templates")
	template.Post("/", templateController.CreateTemplate)
	template.Get("/", templateController.GetTemplates)
	template.Get("/:id", templateController.GetTemplate)
	template.Put("/:id", templateController.UpdateTemplate)
	template.Delete("/:id", templateController.DeleteTemplate)

	// Campaign routes
	campaign := api.Group("/campaigns")
	campaign.Post("/", campaignController.CreateCampaign)
	campaign.Get("/", campaignController.GetCampaigns)
	campaign.Get("/:id", campaignController.GetCampaign)
	campaign.Put("/:id", campaignController.UpdateCampaign)
	campaign.Delete("/:id", campaignController.DeleteCampaign)
	campaign.Post("/:id/send",
		middleware.SendRateLimiter(deps.SendRateLimit, deps.SendRateWindow, deps.RateLimitStorage),
		campaignController.SendCampaign)
	campaign.Post("/:id/schedule", campaignController.ScheduleCampaign)
	campaign.Get("/:id/stats", campaignController.GetCampaignStats)

	// Sequence routes
	sequence := api.Group("/sequences")
	sequence.Post("/", sequenceController.CreateSequence)
	sequence.Get("/", sequenceController.GetSequences)
	sequence.Get("/:id", sequenceController.GetSequence)
	sequence.Put("/:id", sequenceController.UpdateSequence)
	sequence.Delete("/:id", sequenceController.DeleteSequence)
	sequence.Post("/:id/enroll/:contactId", sequenceController.EnrollContact)
	sequence.Get("/:id/enrollments", sequenceController.GetSequenceEnrollments)

	// Analytics routes
	analytics := api.Group("/analytics")
	analytics.Get("/dashboard", dashboardController.GetDashboardStats)
	analytics.Get("/lead-sources", dashboardController.GetLeadSourceStats)
	analytics.Get("/contact-status", dashboardController.GetContactStatusStats)
	analytics.Get("/recent-activity", dashboardController.GetRecentActivity)

	// System routes
	system := api.Group("/system")
	system.Post("/initialize", systemController.Initialize)
	system.Post("/process-sequences", systemController.ProcessSequences)
	system.Get("/tasks", systemController.GetTasks)
	system.Get("/tasks/:id", systemController.GetTask)

	api.Post("/email/test", templateController.SendTestEmail)

	// WebSocket route for task progress
	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws/tasks", websocket.New(controller.HandleTaskProgressWS(deps.Tasks)))

	log.WithField("component", "routes").Info("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, deps Dependencies) {
	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupAPIRoutes(app, deps)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
